package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrStaleState means another writer changed the row between read and write.
	ErrStaleState   = errors.New("workflow state changed concurrently")
	ErrNotFound     = errors.New("workflow state not found")
	ErrUnknownState = errors.New("unknown workflow state")
)

type TransitionError struct {
	ReviewID uint
	From     State
	To       State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("review %d: %s from %s to %s", e.ReviewID, ErrIllegalTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
