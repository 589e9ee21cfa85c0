package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/oiltrading/backoffice/internal/model"
)

// Action names a legal edge of the settlement state machine.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionFinalize Action = "finalize"
	ActionCancel   Action = "cancel"
)

type edge struct {
	from, to model.SettlementStatus
}

var edges = map[edge]Action{
	{model.StatusDraft, model.StatusPendingApproval}:     ActionSubmit,
	{model.StatusPendingApproval, model.StatusActive}:    ActionApprove,
	{model.StatusPendingApproval, model.StatusDraft}:     ActionReject,
	{model.StatusActive, model.StatusCompleted}:          ActionFinalize,
	{model.StatusDraft, model.StatusCancelled}:           ActionCancel,
	{model.StatusPendingApproval, model.StatusCancelled}: ActionCancel,
	{model.StatusActive, model.StatusCancelled}:          ActionCancel,
}

// Lookup returns the action moving from -> to, if the edge exists.
func Lookup(from, to model.SettlementStatus) (Action, bool) {
	a, ok := edges[edge{from, to}]
	return a, ok
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Target model.SettlementStatus `json:"target_status"`
	// Notes carries submission or approval notes, or the rejection or
	// cancellation reason.
	Notes              string `json:"notes"`
	NoChargesConfirmed bool   `json:"no_charges_confirmed"`
	Version            int64  `json:"version"`
	By                 string `json:"by"`
}

// CheckEditable fails when s no longer accepts charge or data edits.
func CheckEditable(s *model.ContractSettlement) error {
	switch s.Status {
	case model.StatusCompleted:
		return ErrSettlementFinalized
	case model.StatusCancelled:
		return ErrSettlementCancelled
	}
	if s.IsFinalized {
		return ErrSettlementFinalized
	}
	return nil
}

// Transition validates and applies req to s in place. It does not persist or
// recompute totals; callers recompute before finalizing.
func Transition(s *model.ContractSettlement, req TransitionRequest, now time.Time) (Action, error) {
	from, to := s.Status, req.Target

	switch from {
	case model.StatusCompleted:
		if to == model.StatusCancelled {
			return "", &TransitionError{From: from, To: to, Cause: ErrCannotCancelFinalized}
		}
		return "", &TransitionError{From: from, To: to, Cause: ErrSettlementFinalized}
	case model.StatusCancelled:
		return "", &TransitionError{From: from, To: to, Cause: ErrSettlementCancelled}
	}

	action, ok := Lookup(from, to)
	if !ok {
		return "", &TransitionError{From: from, To: to}
	}

	notes := strings.TrimSpace(req.Notes)
	switch action {
	case ActionSubmit:
		if !req.NoChargesConfirmed && !hasResolvedCharge(s.Charges) {
			return "", ErrNoChargesResolved
		}
	case ActionApprove:
		if notes == "" {
			return "", invalid("notes", "approval notes are required")
		}
	case ActionReject:
		if notes == "" {
			return "", invalid("notes", "rejection reason is required")
		}
	case ActionFinalize:
		if s.IsFinalized {
			return "", &TransitionError{From: from, To: to, Cause: ErrSettlementFinalized}
		}
		if n := unresolvedCharges(s.Charges); n > 0 {
			return "", fmt.Errorf("%w: %d charge(s)", ErrUnresolvedCharges, n)
		}
		s.IsFinalized = true
	case ActionCancel:
		if notes == "" {
			return "", invalid("notes", "cancellation reason is required")
		}
	default:
		return "", &TransitionError{From: from, To: to}
	}

	s.Status = to
	s.History = append(s.History, model.StatusNote{
		From:      from,
		To:        to,
		Notes:     notes,
		By:        req.By,
		Timestamp: now,
	})
	s.ModifiedBy = req.By
	s.ModifiedAt = now
	return action, nil
}

func hasResolvedCharge(charges []model.SettlementCharge) bool {
	for _, c := range charges {
		if c.Amount.Valid {
			return true
		}
	}
	return false
}

func unresolvedCharges(charges []model.SettlementCharge) int {
	n := 0
	for _, c := range charges {
		if !c.Amount.Valid {
			n++
		}
	}
	return n
}
