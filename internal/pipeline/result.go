package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/domain/model"
)

// Result is the caller-visible, JSON-serializable outcome of one pipeline
// run. Every call receives one, success or failure.
type Result struct {
	Status        string           `json:"status"` // "SUCCESS" or "FAILURE"
	TransactionID string           `json:"transactionId,omitempty"`
	Rail          model.Rail       `json:"rail,omitempty"`
	ExternalRef   string           `json:"externalRef,omitempty"`
	FeeAmount     *decimal.Decimal `json:"feeAmount,omitempty"`
	NetAmount     *decimal.Decimal `json:"netAmount,omitempty"`
	Error         string           `json:"error,omitempty"`
	FailedStage   string           `json:"failedStage,omitempty"`
}

const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

func successResult(txID string, settlement model.SettlementResult, allocation model.FeeAllocation) Result {
	fee := allocation.FeeAmount
	net := allocation.NetAmount
	return Result{
		Status:        StatusSuccess,
		TransactionID: txID,
		Rail:          settlement.Rail,
		ExternalRef:   settlement.ExternalRef,
		FeeAmount:     &fee,
		NetAmount:     &net,
	}
}

func failureResult(txID string, stageErr *StageError) Result {
	return Result{
		Status:        StatusFailure,
		TransactionID: txID,
		Error:         stageErr.Error(),
		FailedStage:   stageErr.Stage.String(),
	}
}
