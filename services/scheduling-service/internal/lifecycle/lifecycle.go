// Package lifecycle is the appointment status state machine.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ruralhealthconnect/telecare/services/scheduling-service/internal/model"
)

var (
	ErrAlreadyFinalized  = errors.New("appointment is already completed or cancelled")
	ErrIllegalTransition = errors.New("transition not allowed from current status")
)

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionConfirm, ActionStart, ActionComplete, ActionCancel:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// transitions lists every legal (from, action) pair. Terminal statuses have no entries.
var transitions = map[model.Status]map[Action]model.Status{
	model.StatusScheduled: {
		ActionConfirm:  model.StatusConfirmed,
		ActionComplete: model.StatusCompleted,
		ActionCancel:   model.StatusCancelled,
	},
	model.StatusConfirmed: {
		ActionStart:    model.StatusInProgress,
		ActionComplete: model.StatusCompleted,
		ActionCancel:   model.StatusCancelled,
	},
	model.StatusInProgress: {
		ActionComplete: model.StatusCompleted,
		ActionCancel:   model.StatusCancelled,
	},
}

// Next returns the status reached by applying a to from.
func Next(from model.Status, a Action) (model.Status, error) {
	if from.IsTerminal() {
		return "", ErrAlreadyFinalized
	}
	to, ok := transitions[from][a]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a %s appointment", ErrIllegalTransition, a, from)
	}
	return to, nil
}

// CanReschedule reports whether an appointment in from may move to a new slot.
// Once a consultation has started it stays where it is.
func CanReschedule(from model.Status) error {
	if from.IsTerminal() {
		return ErrAlreadyFinalized
	}
	if from == model.StatusInProgress {
		return fmt.Errorf("%w: cannot reschedule an appointment in progress", ErrIllegalTransition)
	}
	return nil
}

// CanEdit reports whether free-text fields may still change. Completed
// appointments accept notes and prescriptions; cancelled ones are frozen.
func CanEdit(from model.Status, reasonChanged bool) error {
	if from == model.StatusCancelled {
		return ErrAlreadyFinalized
	}
	if reasonChanged && from.IsTerminal() {
		return ErrAlreadyFinalized
	}
	return nil
}
