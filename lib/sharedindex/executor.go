// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

package sharedindex

import "sync"

// Executor runs storage-mutating tasks. The Service funnels every
// download, archive append, sync, and load-triggered registration
// through one Executor so those mutations are linearized.
type Executor interface {
	// Execute schedules task and reports whether it was accepted.
	// Tasks submitted from one goroutine run in submission order.
	Execute(task func()) bool
}

// SameThreadExecutor runs each task inline on the caller's goroutine.
// For single-threaded hosts and deterministic tests.
type SameThreadExecutor struct{}

func (SameThreadExecutor) Execute(task func()) bool {
	task()
	return true
}

// SerialExecutor runs tasks one at a time on a dedicated background
// goroutine, in FIFO order.
type SerialExecutor struct {
	mu     sync.Mutex
	tasks  chan func()
	done   chan struct{}
	closed bool
}

// NewSerialExecutor starts the worker goroutine.
func NewSerialExecutor() *SerialExecutor {
	executor := &SerialExecutor{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go executor.run()
	return executor
}

func (e *SerialExecutor) run() {
	defer close(e.done)
	for task := range e.tasks {
		task()
	}
}

// Execute schedules task on the worker. Tasks submitted after Close
// are rejected.
func (e *SerialExecutor) Execute(task func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.tasks <- task
	return true
}

// Close stops accepting tasks, runs everything already queued, and
// waits for the worker to drain.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()
	<-e.done
}
