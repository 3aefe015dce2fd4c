package usecase

import (
	"context"
	"fmt"
	"sync"
)

// AgentLocker serializes read-modify-write updates of one agent record
// (metrics accumulation, skill and tool installation). Different agents
// never contend.
type AgentLocker struct {
	mu    sync.Mutex
	locks map[string]*agentMutex
}

type agentMutex struct {
	ch   chan struct{}
	refs int
}

// NewAgentLocker creates an empty locker.
func NewAgentLocker() *AgentLocker {
	return &AgentLocker{locks: make(map[string]*agentMutex)}
}

// Lock blocks until the agent's lock is held or ctx is done. The returned
// unlock must be called exactly once.
func (l *AgentLocker) Lock(ctx context.Context, agentID string) (unlock func(), err error) {
	l.mu.Lock()
	am, ok := l.locks[agentID]
	if !ok {
		am = &agentMutex{ch: make(chan struct{}, 1)}
		l.locks[agentID] = am
	}
	am.refs++
	l.mu.Unlock()

	select {
	case am.ch <- struct{}{}:
		return func() {
			<-am.ch
			l.release(agentID, am)
		}, nil
	case <-ctx.Done():
		l.release(agentID, am)
		return nil, fmt.Errorf("agent lock: %w", ctx.Err())
	}
}

func (l *AgentLocker) release(agentID string, am *agentMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	am.refs--
	if am.refs == 0 {
		delete(l.locks, agentID)
	}
}

// active returns the number of agents with a held or awaited lock.
func (l *AgentLocker) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
