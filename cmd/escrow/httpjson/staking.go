package httpjson

import (
	"net/http"

	"github.com/gin-gonic/gin"

	web "github.com/escrowhq/escrow/http"
	"github.com/escrowhq/escrow/models"
)

func (h *handler) setupStakingRoutes(rg *gin.RouterGroup) {
	staking := rg.Group("/staking")

	staking.GET("", h.readTimeout, h.getStakeInfo)
	staking.POST("/stake", h.newStake)
	staking.POST("/withdraw", h.claimAndWithdraw)
	staking.POST("/reset", h.claimAndReset)
}

func (h *handler) getStakeInfo(c *gin.Context) {
	info, err := h.deps.Staking.StakeInfo(c.Request.Context(), c.Query("account"))
	if err != nil {
		web.ErrClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

func (h *handler) newStake(c *gin.Context) {
	var req models.NewStakeRequest
	if !bindJSON(c, &req) {
		return
	}

	web.Result(c, http.StatusOK, h.deps.Staking.NewStake(c.Request.Context(), req.Amount, req.StakeTime))
}

func (h *handler) claimAndWithdraw(c *gin.Context) {
	web.Result(c, http.StatusOK, h.deps.Staking.ClaimAndWithdraw(c.Request.Context()))
}

func (h *handler) claimAndReset(c *gin.Context) {
	var req models.ResetStakeRequest
	if !bindJSON(c, &req) {
		return
	}

	web.Result(c, http.StatusOK, h.deps.Staking.ClaimAndReset(c.Request.Context(), req.StakeTime))
}
