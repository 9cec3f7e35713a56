package pipeline

import (
	"errors"
	"fmt"

	"github.com/quantumpay/gateway/internal/config"
	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/venue"
)

// Kind is the closed set of caller-visible failure categories.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindConfiguration     Kind = "ConfigurationError"
	KindExternalService   Kind = "ExternalServiceError"
	KindFraudRejection    Kind = "FraudRejection"
	KindSettlementFailure Kind = "SettlementFailure"
)

// StageError tags a stage failure with its pipeline stage and kind. Stages
// return these instead of raising past the orchestrator.
type StageError struct {
	Stage model.Stage
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// newStageError classifies err for the given stage. Sentinel errors from
// lower layers keep their identity in the caller-visible kind.
func newStageError(stage model.Stage, err error) *StageError {
	kind := KindSettlementFailure
	switch {
	case errors.Is(err, config.ErrMissingChainConfig):
		kind = KindConfiguration
	case errors.Is(err, venue.ErrNoLiquidity):
		kind = KindSettlementFailure
	case stage == model.StageIDAssigned || stage == model.StageAmountEncoded:
		kind = KindExternalService
	case stage == model.StageScreened:
		kind = KindFraudRejection
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
