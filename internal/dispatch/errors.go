package dispatch

import (
	"errors"
	"fmt"
)

// LifecycleState names the kind of lifecycle misuse
type LifecycleState string

const (
	AlreadyStarted LifecycleState = "already_started"
	NotRunning     LifecycleState = "not_running"
)

// LifecycleError reports starting a running dispatcher or using a stopped one.
// It is never fatal.
type LifecycleError struct {
	State LifecycleState
	Msg   string
}

func (e *LifecycleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare LifecycleError values by State
func (e *LifecycleError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*LifecycleError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrAlreadyStarted = &LifecycleError{State: AlreadyStarted}
	ErrNotRunning     = &LifecycleError{State: NotRunning}

	// ErrQueueFull is returned by Enqueue when the command was dropped
	ErrQueueFull = errors.New("command queue full")
)
