package httpjson

import (
	"net/http"

	"github.com/gin-gonic/gin"

	web "github.com/escrowhq/escrow/http"
	"github.com/escrowhq/escrow/models"
)

func (h *handler) setupGovernanceRoutes(rg *gin.RouterGroup) {
	gov := rg.Group("/governance")

	gov.GET("/votes", h.readTimeout, h.getVotingPower)
	gov.GET("/delay", h.readTimeout, h.getMinDelay)
	gov.POST("/delegate", h.delegate)
	gov.POST("/proposals", h.propose)
	gov.POST("/votes", h.castVote)
}

func (h *handler) getVotingPower(c *gin.Context) {
	account := c.Query("account")

	votes, err := h.deps.Governance.VotingPower(c.Request.Context(), account)
	if err != nil {
		web.ErrClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account, "votes": votes})
}

func (h *handler) getMinDelay(c *gin.Context) {
	delay, err := h.deps.Governance.MinDelay(c.Request.Context())
	if err != nil {
		web.ErrClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"min_delay": delay})
}

func (h *handler) delegate(c *gin.Context) {
	var req models.DelegateRequest
	if !bindJSON(c, &req) {
		return
	}

	web.Result(c, http.StatusOK, h.deps.Governance.Delegate(c.Request.Context(), req.Delegatee))
}

func (h *handler) propose(c *gin.Context) {
	var req models.ProposeRequest
	if !bindJSON(c, &req) {
		return
	}

	res := h.deps.Governance.Propose(c.Request.Context(), req.Targets, req.Values, req.Calldatas, req.Description)

	web.Result(c, http.StatusCreated, res)
}

func (h *handler) castVote(c *gin.Context) {
	var req models.CastVoteRequest
	if !bindJSON(c, &req) {
		return
	}

	web.Result(c, http.StatusOK, h.deps.Governance.CastVote(c.Request.Context(), req.ProposalID, *req.Support))
}
