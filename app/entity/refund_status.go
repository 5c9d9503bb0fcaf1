package entity

import "strings"

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusAccepted   RefundStatus = "accepted"
	RefundStatusRefunded   RefundStatus = "refunded"
	RefundStatusDeclined   RefundStatus = "declined"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusRestricted RefundStatus = "restricted"
	RefundStatusRejected   RefundStatus = "rejected"
)

const (
	stagePending = iota
	stageAccepted
	stageTerminal
)

// Transition is the outcome of moving a refund from one status to another.
type Transition int

const (
	// TransitionApplied means the new status is a strictly later stage and must be stored.
	TransitionApplied Transition = iota
	// TransitionUnchanged means the same status was reported again.
	TransitionUnchanged
	// TransitionStale means the reported status belongs to an earlier or equal stage.
	TransitionStale
	// TransitionConflict means a terminal refund was reported with a different terminal status.
	TransitionConflict
)

func (t Transition) String() string {
	switch t {
	case TransitionApplied:
		return "applied"
	case TransitionUnchanged:
		return "unchanged"
	case TransitionStale:
		return "stale"
	case TransitionConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// ParseRefundStatus maps a raw gateway status onto a local refund status.
// Gateways report "succeeded" for what is stored as refunded.
func ParseRefundStatus(raw string) (RefundStatus, bool) {
	status := RefundStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case RefundStatusPending,
		RefundStatusAccepted,
		RefundStatusRefunded,
		RefundStatusDeclined,
		RefundStatusFailed,
		RefundStatusRestricted,
		RefundStatusRejected:
		return status, true
	case "succeeded":
		return RefundStatusRefunded, true
	case "initiated", "in_progress":
		return RefundStatusPending, true
	default:
		return "", false
	}
}

func (s RefundStatus) Valid() bool {
	parsed, ok := ParseRefundStatus(string(s))
	return ok && parsed == s
}

func (s RefundStatus) IsTerminal() bool {
	return s.stage() == stageTerminal
}

func (s RefundStatus) IsSuccess() bool {
	return s == RefundStatusRefunded
}

func (s RefundStatus) IsFailure() bool {
	return s.IsTerminal() && !s.IsSuccess()
}

func (s RefundStatus) stage() int {
	switch s {
	case RefundStatusAccepted:
		return stageAccepted
	case RefundStatusRefunded,
		RefundStatusDeclined,
		RefundStatusFailed,
		RefundStatusRestricted,
		RefundStatusRejected:
		return stageTerminal
	default:
		return stagePending
	}
}

// TransitionTo decides whether next may replace s.
// Terminal statuses are absorbing; only strictly later stages are applied.
func (s RefundStatus) TransitionTo(next RefundStatus) Transition {
	if s == next {
		return TransitionUnchanged
	}
	if s.IsTerminal() {
		if next.IsTerminal() {
			return TransitionConflict
		}
		return TransitionStale
	}
	if next.stage() > s.stage() {
		return TransitionApplied
	}
	return TransitionStale
}
