package utils

import (
	"sync"
	"sync/atomic"
)

// Job represents a task to be executed by the dispatcher.
type Job struct {
	Task func()
}

// Dispatcher runs each submitted job on its own goroutine so a slow job never
// holds up the caller, and tracks jobs until they return.
type Dispatcher struct {
	inFlight  atomic.Int64
	waitGroup sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Submit starts task without waiting for it.
func (d *Dispatcher) Submit(task func()) {
	job := Job{Task: task}

	d.waitGroup.Add(1)
	d.inFlight.Add(1)
	go func() {
		defer d.waitGroup.Done()
		defer d.inFlight.Add(-1)
		job.Task()
	}()
}

// InFlight returns the number of jobs that have not returned yet.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Wait blocks until every submitted job has returned.
func (d *Dispatcher) Wait() {
	d.waitGroup.Wait()
}
