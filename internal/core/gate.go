package core

// gate.go implements concurrency control for workflow runs.
//
// The gate uses a semaphore pattern to restrict parallel workflows to a
// configurable maximum. When all slots are occupied, new requests wait up
// to maxWait before failing with ErrTooManyWorkflows. On top of that, a
// session may run only one workflow at a time; a second request from the
// same session fails immediately with ErrWorkflowActive.
//
// The gate also supports graceful shutdown via WaitForDrain, which blocks
// until all active workflows complete.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConcurrentWorkflows is the default limit for parallel workflows.
const DefaultMaxConcurrentWorkflows = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// WorkflowGate controls concurrent workflow runs.
type WorkflowGate struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu       sync.RWMutex
	active   int
	sessions map[string]struct{}
}

// NewWorkflowGate creates a gate that allows at most maxConcurrent simultaneous workflows.
// Requests that cannot acquire a slot within maxWait will receive ErrTooManyWorkflows.
func NewWorkflowGate(maxConcurrent int, maxWait time.Duration) *WorkflowGate {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentWorkflows
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &WorkflowGate{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		sessions:  make(map[string]struct{}),
	}
}

// claim marks session as running. An empty session is never tracked.
func (g *WorkflowGate) claim(session string) bool {
	if session == "" {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.sessions[session]; busy {
		return false
	}
	g.sessions[session] = struct{}{}
	return true
}

func (g *WorkflowGate) unclaim(session string) {
	if session == "" {
		return
	}
	g.mu.Lock()
	delete(g.sessions, session)
	g.mu.Unlock()
}

// Acquire reserves a slot for session.
// Returns ErrWorkflowActive if the session already runs a workflow,
// ErrTooManyWorkflows if no slot frees up within the wait time.
// The caller MUST call Release(session) when the workflow completes (use defer).
func (g *WorkflowGate) Acquire(ctx context.Context, session string) error {
	if !g.claim(session) {
		return ErrWorkflowActive
	}

	// Create timeout context for waiting
	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	select {
	case g.semaphore <- struct{}{}:
		g.mu.Lock()
		g.active++
		g.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		g.unclaim(session)
		// Check if original context was cancelled vs timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyWorkflows
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire.
func (g *WorkflowGate) Release(session string) {
	g.mu.Lock()
	g.active--
	if session != "" {
		delete(g.sessions, session)
	}
	g.mu.Unlock()

	<-g.semaphore
}

// Busy reports whether session currently runs a workflow.
func (g *WorkflowGate) Busy(session string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.sessions[session]
	return ok
}

// ActiveCount returns the number of currently running workflows.
func (g *WorkflowGate) ActiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// MaxConcurrent returns the maximum allowed concurrent workflows.
func (g *WorkflowGate) MaxConcurrent() int {
	return cap(g.semaphore)
}

// Available returns the number of available slots.
func (g *WorkflowGate) Available() int {
	return cap(g.semaphore) - len(g.semaphore)
}

// WaitForDrain blocks until all active workflows complete or context is cancelled.
// Used for graceful shutdown so runs finish before termination.
func (g *WorkflowGate) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if g.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GateStatus is a snapshot of the gate's current state.
type GateStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
	Sessions      int `json:"sessions"`
}

// Status returns the current gate state for monitoring/debugging.
func (g *WorkflowGate) Status() GateStatus {
	g.mu.RLock()
	active, sessions := g.active, len(g.sessions)
	g.mu.RUnlock()

	return GateStatus{
		Active:        active,
		Available:     cap(g.semaphore) - len(g.semaphore),
		MaxConcurrent: cap(g.semaphore),
		Sessions:      sessions,
	}
}
