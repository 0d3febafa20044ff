package tm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error wraps a protocol-level failure with the replica context in effect
// when it was detected, mirroring the teacher's tss.Error (task/round/victim)
// but keyed on a replica id and the tm_state at the point of failure rather
// than a round number.
type Error struct {
	cause     error
	task      string
	replicaID uint32
	state     TMState
}

// NewError wraps cause with protocol context. cause is captured via
// github.com/pkg/errors so a stack trace is attached at the point of first
// detection, which is where these errors are almost always constructed.
func NewError(cause error, task string, replicaID uint32, state TMState) *Error {
	return &Error{cause: errors.WithStack(cause), task: task, replicaID: replicaID, state: state}
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Cause() error { return e.cause }

func (e *Error) Task() string { return e.task }

func (e *Error) ReplicaID() uint32 { return e.replicaID }

func (e *Error) State() TMState { return e.state }

func (e *Error) Error() string {
	if e == nil || e.cause == nil {
		return "tm: nil error"
	}
	return fmt.Sprintf("replica %d: task %s in state %s: %s", e.replicaID, e.task, e.state, e.cause.Error())
}
