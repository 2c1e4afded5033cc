package memory

import (
	"context"
	"sync"
)

// SubmissionGuard is an in-process implementation of app.SubmissionGuard.
type SubmissionGuard struct {
	mu    sync.Mutex
	taken map[string]struct{}
}

func NewSubmissionGuard() *SubmissionGuard {
	return &SubmissionGuard{taken: make(map[string]struct{})}
}

func (g *SubmissionGuard) Acquire(_ context.Context, attemptID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.taken[attemptID]; ok {
		return false, nil
	}
	g.taken[attemptID] = struct{}{}
	return true, nil
}

func (g *SubmissionGuard) Release(_ context.Context, attemptID string) error {
	g.mu.Lock()
	delete(g.taken, attemptID)
	g.mu.Unlock()
	return nil
}
