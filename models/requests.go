package models

// CreatePurchaseRequest represents the request body for creating a new purchase.
// Amounts are decimal strings in token units.
type CreatePurchaseRequest struct {
	Seller       string `json:"seller" binding:"required"`
	Price        string `json:"price" binding:"required"`
	Collateral   string `json:"collateral" binding:"required"`
	TokenAddress string `json:"token_address"`
}

// BuyRequest represents the request body for a token sale purchase
type BuyRequest struct {
	Referrer   string  `json:"referrer"`
	Amount     string  `json:"amount" binding:"required"`
	Multiplier float64 `json:"multiplier" binding:"required"`
}

// NewStakeRequest represents the request body for opening a stake
type NewStakeRequest struct {
	Amount    string `json:"amount" binding:"required"`
	StakeTime uint64 `json:"stake_time" binding:"required"`
}

// ResetStakeRequest represents the request body for claiming and restaking
type ResetStakeRequest struct {
	StakeTime uint64 `json:"stake_time" binding:"required"`
}

// DelegateRequest represents the request body for delegating votes
type DelegateRequest struct {
	Delegatee string `json:"delegatee" binding:"required"`
}

// ProposeRequest represents the request body for submitting a proposal.
// Calldatas are hex encoded.
type ProposeRequest struct {
	Targets     []string `json:"targets" binding:"required"`
	Values      []string `json:"values" binding:"required"`
	Calldatas   []string `json:"calldatas" binding:"required"`
	Description string   `json:"description" binding:"required"`
}

// CastVoteRequest represents the request body for voting on a proposal.
// Support follows the governor convention: 0 against, 1 for, 2 abstain.
type CastVoteRequest struct {
	ProposalID string `json:"proposal_id" binding:"required"`
	Support    *uint8 `json:"support" binding:"required"`
}
