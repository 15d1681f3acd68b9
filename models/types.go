package models

import (
	"time"
)

// PurchaseStatus is the human status of an escrow instance
type PurchaseStatus string

const (
	// PurchaseStatusInactive indicates the escrow instance has not been initialized yet
	PurchaseStatusInactive PurchaseStatus = "inactive"

	// PurchaseStatusCreated indicates the buyer funded the escrow and it awaits the seller
	PurchaseStatusCreated PurchaseStatus = "created"

	// PurchaseStatusConfirmed indicates the seller locked collateral
	PurchaseStatusConfirmed PurchaseStatus = "confirmed"

	// PurchaseStatusFailed indicates the purchase was aborted or failed
	PurchaseStatusFailed PurchaseStatus = "failed"
)

// Ledger state codes of an escrow instance.
const (
	StateInactive  uint8 = 0
	StateCreated   uint8 = 1
	StateConfirmed uint8 = 2
	StateFailed    uint8 = 3
)

// StatusFromState maps a ledger state code to a status. Unknown codes read as created.
func StatusFromState(state uint8) PurchaseStatus {
	switch state {
	case StateInactive:
		return PurchaseStatusInactive
	case StateCreated:
		return PurchaseStatusCreated
	case StateConfirmed:
		return PurchaseStatusConfirmed
	case StateFailed:
		return PurchaseStatusFailed
	default:
		return PurchaseStatusCreated
	}
}

// PurchaseRecord is a point-in-time projection of an escrow instance.
// Price and Collateral are formatted with the escrow token's decimals.
type PurchaseRecord struct {
	ID           string         `json:"id"`
	Seller       string         `json:"seller"`
	Buyer        string         `json:"buyer"`
	Price        string         `json:"price"`
	Collateral   string         `json:"collateral"`
	TokenAddress string         `json:"token_address"`
	Status       PurchaseStatus `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
}

// TransactionResult is the outcome envelope of every state-changing operation.
// A failed result always carries Error and never TxHash.
type TransactionResult struct {
	Success    bool      `json:"success"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Error      string    `json:"error,omitempty"`
	PurchaseID string    `json:"purchase_id,omitempty"`
	ProposalID string    `json:"proposal_id,omitempty"`
	Kind       ErrorKind `json:"kind,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(txHash string) *TransactionResult {
	return &TransactionResult{Success: true, TxHash: txHash}
}

// Failed converts err into a failed result.
func Failed(err error) *TransactionResult {
	return &TransactionResult{
		Success: false,
		Error:   err.Error(),
		Kind:    KindOf(err),
	}
}

// ContributionRecord is an account's position in the token sale, formatted in
// native units. WeightedContribution is never below Contribution.
type ContributionRecord struct {
	Contribution         string `json:"contribution"`
	WeightedContribution string `json:"weighted_contribution"`
	EthReceived          string `json:"eth_received"`
	TokenWithdrawn       string `json:"token_withdrawn"`
}

// StakePosition is a single stake slot of an account.
type StakePosition struct {
	Index       int     `json:"index"`
	Amount      string  `json:"amount"`
	StakeTime   uint64  `json:"stake_time"`
	StartTime   uint64  `json:"start_time"`
	Multiplier  float64 `json:"multiplier"`
	IsAvailable bool    `json:"is_available"`
}

// StakeInfo sums an account's stake slots.
type StakeInfo struct {
	TotalAmount     string          `json:"total_amount"`
	AvailableAmount string          `json:"available_amount"`
	Positions       []StakePosition `json:"positions"`
}

// LogStatus is the derived status of a history entry
type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusPending LogStatus = "pending"
	LogStatusFailed  LogStatus = "failed"
)

// TransactionLogEntry is a history entry reconstructed from a factory event.
type TransactionLogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	Status      LogStatus `json:"status"`
	TxHash      string    `json:"tx_hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      string    `json:"amount,omitempty"`
	GasUsed     uint64    `json:"gas_used,omitempty"`
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint      `json:"log_index"`
}
