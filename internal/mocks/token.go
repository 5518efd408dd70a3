package mocks

import (
	"time"
)

// CompletedToken is an mqtt.Token that has already finished with Err.
type CompletedToken struct {
	Err  error
	done chan struct{}
}

// NewCompletedToken returns a finished token carrying err.
func NewCompletedToken(err error) *CompletedToken {
	done := make(chan struct{})
	close(done)
	return &CompletedToken{Err: err, done: done}
}

func (t *CompletedToken) Wait() bool                     { return true }
func (t *CompletedToken) WaitTimeout(time.Duration) bool { return true }
func (t *CompletedToken) Done() <-chan struct{}          { return t.done }
func (t *CompletedToken) Error() error                   { return t.Err }

// PendingToken is an mqtt.Token that never completes.
type PendingToken struct {
	done chan struct{}
}

// NewPendingToken returns a token whose Done channel is never closed.
func NewPendingToken() *PendingToken {
	return &PendingToken{done: make(chan struct{})}
}

func (t *PendingToken) Wait() bool                     { <-t.done; return true }
func (t *PendingToken) WaitTimeout(time.Duration) bool { return false }
func (t *PendingToken) Done() <-chan struct{}          { return t.done }
func (t *PendingToken) Error() error                   { return nil }
