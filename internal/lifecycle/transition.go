package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"bountyexpo/internal/model"
)

// Transition names a requested bounty lifecycle change.
type Transition string

const (
	TransitionAccept   Transition = "accept"
	TransitionComplete Transition = "complete"
	TransitionArchive  Transition = "archive"
	TransitionCancel   Transition = "cancel"
	TransitionReopen   Transition = "reopen"
	TransitionDelete   Transition = "delete"
)

// Transitions lists every known transition name.
var Transitions = []Transition{
	TransitionAccept,
	TransitionComplete,
	TransitionArchive,
	TransitionCancel,
	TransitionReopen,
	TransitionDelete,
}

// Statuses lists every known bounty status.
var Statuses = []model.BountyStatus{
	model.BountyStatusOpen,
	model.BountyStatusInProgress,
	model.BountyStatusCompleted,
	model.BountyStatusArchived,
	model.BountyStatusDeleted,
}

// Result is the outcome of Validate. Exactly one of NewStatus or Reason is set.
type Result struct {
	Legal     bool               `json:"legal"`
	NewStatus model.BountyStatus `json:"newStatus,omitempty"`
	Reason    string             `json:"reason,omitempty"`
}

var table = map[model.BountyStatus]map[Transition]model.BountyStatus{
	model.BountyStatusOpen: {
		TransitionAccept:  model.BountyStatusInProgress,
		TransitionArchive: model.BountyStatusArchived,
		TransitionCancel:  model.BountyStatusArchived,
	},
	model.BountyStatusInProgress: {
		TransitionComplete: model.BountyStatusCompleted,
		TransitionArchive:  model.BountyStatusArchived,
		TransitionCancel:   model.BountyStatusArchived,
		TransitionReopen:   model.BountyStatusOpen,
	},
	model.BountyStatusCompleted: {
		TransitionArchive: model.BountyStatusArchived,
	},
	model.BountyStatusArchived: {},
	model.BountyStatusDeleted:  {},
}

// Validate decides whether transition t is legal from current.
// It never panics and answers for unknown statuses and transitions too.
func Validate(current model.BountyStatus, t Transition) Result {
	if t == TransitionDelete {
		return Result{Reason: "delete is not a lifecycle transition; hide the bounty instead"}
	}
	moves, ok := table[current]
	if !ok {
		return Result{Reason: fmt.Sprintf("unknown bounty status %q", current)}
	}
	if next, ok := moves[t]; ok {
		return Result{Legal: true, NewStatus: next}
	}
	if !isKnown(t) {
		return Result{Reason: fmt.Sprintf("unknown transition %q; %s", t, alternatives(current, moves))}
	}
	return Result{Reason: fmt.Sprintf("cannot %s a bounty that is %s; %s", t, current, alternatives(current, moves))}
}

// Allowed returns the legal transitions from current in a stable order.
func Allowed(current model.BountyStatus) []Transition {
	moves := table[current]
	out := make([]Transition, 0, len(moves))
	for t := range moves {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func alternatives(current model.BountyStatus, moves map[Transition]model.BountyStatus) string {
	if len(moves) == 0 {
		return fmt.Sprintf("%s is terminal and allows no further transitions", current)
	}
	names := make([]string, 0, len(moves))
	for _, t := range Allowed(current) {
		names = append(names, fmt.Sprintf("%s (-> %s)", t, moves[t]))
	}
	return fmt.Sprintf("valid from %s: %s", current, strings.Join(names, ", "))
}

func isKnown(t Transition) bool {
	for _, k := range Transitions {
		if k == t {
			return true
		}
	}
	return false
}
