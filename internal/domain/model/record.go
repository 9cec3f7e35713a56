package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stage identifies a pipeline stage.
type Stage string

const (
	StageIDAssigned    Stage = "ID_ASSIGNED"
	StageScreened      Stage = "SCREENED"
	StageVenueSelected Stage = "VENUE_SELECTED"
	StageAmountEncoded Stage = "AMOUNT_ENCODED"
	StageSettled       Stage = "SETTLED"
	StageFeeAllocated  Stage = "FEE_ALLOCATED"
)

func (s Stage) String() string {
	return string(s)
}

// TxStatus is the terminal status of a payment transaction.
type TxStatus string

const (
	TxStatusPending TxStatus = "PENDING"
	TxStatusSuccess TxStatus = "SUCCESS"
	TxStatusFailed  TxStatus = "FAILED"
)

// StageOutcome is one tagged entry of the transaction's stage log.
type StageOutcome struct {
	Stage     Stage
	Success   bool
	Detail    string
	Timestamp time.Time
}

// TransactionRecord is the orchestrator-owned, append-only account of one
// pipeline run. Stages appear in pipeline order; a failure outcome is always
// the last entry.
type TransactionRecord struct {
	TransactionID string
	Order         Order
	StageLog      []StageOutcome
	Status        TxStatus
}

// Append records a stage outcome. It must only be called by the orchestrator
// and never after the record has reached a terminal status.
func (r *TransactionRecord) Append(stage Stage, success bool, detail string) {
	r.StageLog = append(r.StageLog, StageOutcome{
		Stage:     stage,
		Success:   success,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

// VenueQuote is a venue's current snapshot for an asset. Ephemeral, produced
// per pricing request, never persisted.
type VenueQuote struct {
	VenueName  string
	Price      decimal.Decimal
	FeeRate    float64
	Liquidity  float64
	Volatility float64
}

// FraudAssessment is the screener verdict for a transaction request.
type FraudAssessment struct {
	Score        float64
	IsFraudulent bool
	Factors      map[string]float64
	// Err carries an internal scoring error under the fail-open policy; the
	// assessment is still usable (score 0, not fraudulent).
	Err string
}

// SettlementResult describes the external outcome of the settlement stage.
type SettlementResult struct {
	Rail          Rail
	ExternalRef   string // deposit address, tx hash, or network payment id
	SettledAmount decimal.Decimal
	Venue         string
}

// FeeAllocation splits the order amount into protocol fee and merchant net.
// Invariant: FeeAmount + NetAmount == order amount.
type FeeAllocation struct {
	FeeAmount     decimal.Decimal
	NetAmount     decimal.Decimal
	TreasuryTxRef string
}

// EncryptedAmount is an opaque, computable representation of an amount.
// Scale is the decimal-to-integer factor applied before encoding.
type EncryptedAmount struct {
	Ciphertext []byte
	Scale      int32
}
