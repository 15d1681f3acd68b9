package httpjson

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	web "github.com/escrowhq/escrow/http"
	"github.com/escrowhq/escrow/logging"
	"github.com/escrowhq/escrow/models"
)

func (h *handler) setupPurchaseRoutes(rg *gin.RouterGroup) {
	purchases := rg.Group("/purchases")

	purchases.POST("", h.createPurchase)
	purchases.GET(":id", h.readTimeout, h.getPurchase)
	purchases.POST(":id/confirm", h.transitionPurchase(h.deps.Escrow.Confirm))
	purchases.POST(":id/release", h.transitionPurchase(h.deps.Escrow.Release))
	purchases.POST(":id/abort", h.transitionPurchase(h.deps.Escrow.Abort))
}

func (h *handler) createPurchase(c *gin.Context) {
	var req models.CreatePurchaseRequest
	if !bindJSON(c, &req) {
		return
	}

	res := h.deps.Escrow.Create(c.Request.Context(), req.Seller, req.Price, req.Collateral, req.TokenAddress)
	if res.Success {
		h.logger.Debug().Str(logging.FieldPurchase, res.PurchaseID).Msg("Purchase created")
	}

	web.Result(c, http.StatusCreated, res)
}

func (h *handler) getPurchase(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		web.ErrBadRequest(c, errors.Wrap(ErrParamRequired, "purchase id"))
		return
	}

	h.logger.Debug().Str(logging.FieldPurchase, id).Msg("GetPurchase request received")

	record, err := h.deps.Escrow.GetDetails(c.Request.Context(), id)
	if err != nil {
		h.logger.Debug().Err(err).Str(logging.FieldPurchase, id).Msg("Error getting purchase")
		web.ErrClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// transitionPurchase serves confirm, release and abort, which share a shape.
func (h *handler) transitionPurchase(
	fn func(ctx context.Context, purchaseID string) *models.TransactionResult,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id == "" {
			web.ErrBadRequest(c, errors.Wrap(ErrParamRequired, "purchase id"))
			return
		}

		web.Result(c, http.StatusOK, fn(c.Request.Context(), id))
	}
}
