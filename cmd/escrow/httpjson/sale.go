package httpjson

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	web "github.com/escrowhq/escrow/http"
	"github.com/escrowhq/escrow/models"
)

func (h *handler) setupSaleRoutes(rg *gin.RouterGroup) {
	sale := rg.Group("/sale")

	sale.GET("/quote", h.readTimeout, h.getSaleQuote)
	sale.GET("/contribution", h.readTimeout, h.getContribution)
	sale.POST("/buy", h.buy)
	sale.POST("/claim", h.claimSaleTokens)
}

func (h *handler) getSaleQuote(c *gin.Context) {
	amount := c.Query("amount")
	if amount == "" {
		web.ErrBadRequest(c, errors.Wrap(ErrParamRequired, "amount"))
		return
	}

	tokens, err := h.deps.Sale.PriceQuote(c.Request.Context(), amount)
	if err != nil {
		web.ErrClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"amount": amount, "tokens": tokens})
}

// getContribution reads the position of ?account, or of the connected wallet.
func (h *handler) getContribution(c *gin.Context) {
	record, err := h.deps.Sale.Contribution(c.Request.Context(), c.Query("account"))
	if err != nil {
		web.ErrClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *handler) buy(c *gin.Context) {
	var req models.BuyRequest
	if !bindJSON(c, &req) {
		return
	}

	multiplier := decimal.NewFromFloat(req.Multiplier)

	web.Result(c, http.StatusOK, h.deps.Sale.Buy(c.Request.Context(), req.Referrer, req.Amount, multiplier))
}

func (h *handler) claimSaleTokens(c *gin.Context) {
	web.Result(c, http.StatusOK, h.deps.Sale.ClaimTokens(c.Request.Context()))
}
