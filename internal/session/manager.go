package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/workflow"
)

// Factory builds the workflow for a new session.
type Factory func(sessionID string) *workflow.Workflow

type entry struct {
	workflow *workflow.Workflow
	lastSeen time.Time
}

// Manager keeps one workflow per session and evicts idle ones.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	factory  Factory
	idleTTL  time.Duration
	now      func() time.Time
	onEvict  func(sessionID string)
	logger   *zap.Logger
}

// NewManager returns an empty manager.
func NewManager(factory Factory, idleTTL time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		factory:  factory,
		idleTTL:  idleTTL,
		now:      time.Now,
		logger:   logger.Named("session_manager"),
	}
}

// OnEvict registers fn to run after a session is swept.
func (m *Manager) OnEvict(fn func(sessionID string)) {
	m.mu.Lock()
	m.onEvict = fn
	m.mu.Unlock()
}

// Workflow returns the workflow of sessionID, creating it on first use.
func (m *Manager) Workflow(sessionID string) *workflow.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		e = &entry{workflow: m.factory(sessionID)}
		m.sessions[sessionID] = e
	}
	e.lastSeen = m.now()
	return e.workflow
}

// Lookup returns the workflow of sessionID without creating one.
func (m *Manager) Lookup(sessionID string) (*workflow.Workflow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.workflow, true
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle since before now-idleTTL and returns how many
// were evicted.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	var evicted []string
	var workflows []*workflow.Workflow
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) >= m.idleTTL {
			evicted = append(evicted, id)
			workflows = append(workflows, e.workflow)
			delete(m.sessions, id)
		}
	}
	onEvict := m.onEvict
	m.mu.Unlock()

	for i, wf := range workflows {
		wf.Close(ctx)
		if onEvict != nil {
			onEvict(evicted[i])
		}
	}
	if len(evicted) > 0 {
		m.logger.Info("evicted idle sessions", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx, m.now())
		}
	}
}
