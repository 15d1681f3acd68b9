package httpjson

import (
	"net/http"

	"github.com/gin-gonic/gin"

	web "github.com/escrowhq/escrow/http"
	"github.com/escrowhq/escrow/logging"
)

func (h *handler) setupHistoryRoutes(rg *gin.RouterGroup) {
	rg.GET("/history/:wallet", h.readTimeout, h.getHistory)
}

func (h *handler) getHistory(c *gin.Context) {
	wallet := c.Param("wallet")

	entries, err := h.deps.History.GetHistory(c.Request.Context(), wallet)
	if err != nil {
		h.logger.Debug().Err(err).Str(logging.FieldAccount, wallet).Msg("Error getting history")
		web.ErrClassified(c, err)
		return
	}

	h.logger.Debug().Str(logging.FieldAccount, wallet).Int("entries", len(entries)).Msg("History scanned")

	c.JSON(http.StatusOK, gin.H{
		"wallet":  wallet,
		"entries": entries,
		"count":   len(entries),
	})
}
