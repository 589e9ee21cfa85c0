package settlement

import (
	"errors"
	"fmt"

	"github.com/oiltrading/backoffice/internal/model"
)

var (
	ErrValidation              = errors.New("settlement: validation failed")
	ErrInvalidStatusTransition = errors.New("settlement: invalid status transition")
	ErrCannotCancelFinalized   = errors.New("settlement: cannot cancel a finalized settlement")
	ErrSettlementFinalized     = errors.New("settlement: settlement is finalized")
	ErrSettlementCancelled     = errors.New("settlement: settlement is cancelled")
	ErrUnresolvedCharges       = errors.New("settlement: charges with unresolved amounts")
	ErrNoChargesResolved       = errors.New("settlement: no resolved charge and no-charges not confirmed")
	ErrChargeNotFound          = errors.New("settlement: charge not found")
)

// ValidationError reports a request field rejected before computation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("settlement: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransitionError reports a rejected status change. Cause, when set, names
// the rule that forbids it (for example ErrSettlementFinalized).
type TransitionError struct {
	From  model.SettlementStatus
	To    model.SettlementStatus
	Cause error
}

func (e *TransitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("settlement: invalid status transition %s -> %s: %v", e.From, e.To, e.Cause)
	}
	return fmt.Sprintf("settlement: invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidStatusTransition }

func (e *TransitionError) Unwrap() error { return e.Cause }
