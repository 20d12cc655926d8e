package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shuaige121/tool-gating-mcp/internal/apperr"
	"github.com/shuaige121/tool-gating-mcp/internal/logger"
)

// Manager owns every backend's Session, keyed by backend name. It is safe
// for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Connect spawns spec's subprocess and performs the MCP handshake, unless a
// healthy session for name already exists, in which case that session is
// returned unchanged (connect is idempotent).
func (m *Manager) Connect(ctx context.Context, name string, spec BackendSpec) (*Session, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[name]; ok && existing.Status() == StatusConnected {
		m.mu.Unlock()
		return existing, nil
	}
	s := newSession(name, spec)
	m.sessions[name] = s
	m.mu.Unlock()

	if err := s.start(ctx); err != nil {
		s.setStatus(StatusFailed)
		return nil, apperr.NewConnectError(fmt.Sprintf("failed to connect backend %q", name), err)
	}

	logger.Infof("session connected: backend=%s pid=%d", name, s.cmd.Process.Pid)
	return s, nil
}

// Get returns the session for name, if any.
func (m *Manager) Get(name string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[name]
	return s, ok
}

// ListTools issues tools/list on the named session, applying the same
// default handshake deadline as Connect: this runs on the startup path and
// must not block forever on a backend that accepts the connection but never
// answers.
func (m *Manager) ListTools(ctx context.Context, name string) ([]NativeTool, error) {
	s, ok := m.Get(name)
	if !ok {
		return nil, apperr.NewConnectError(fmt.Sprintf("no session for backend %q", name), nil)
	}

	ctx, cancel := withTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	tools, err := s.listTools(ctx)
	if err != nil {
		return nil, apperr.NewConnectError(fmt.Sprintf("failed to list tools for backend %q", name), err)
	}
	return tools, nil
}

// CallTool issues tools/call on the named session, applying the default
// per-call timeout if ctx carries no deadline of its own.
func (m *Manager) CallTool(ctx context.Context, name, nativeName string, args map[string]any) (*CallResult, error) {
	s, ok := m.Get(name)
	if !ok {
		return nil, apperr.NewCallError(apperr.CallKindSessionLost, fmt.Sprintf("no session for backend %q", name), nil)
	}

	ctx, cancel := withTimeout(ctx, defaultCallTimeout)
	defer cancel()

	return s.callTool(ctx, nativeName, args)
}

// Disconnect closes stdio, escalates SIGTERM->SIGKILL, and reaps the named
// backend's subprocess. It is idempotent: disconnecting an unknown or
// already-closed name is not an error.
func (m *Manager) Disconnect(name string) {
	m.mu.Lock()
	s, ok := m.sessions[name]
	if ok {
		delete(m.sessions, name)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	s.setStatus(StatusClosing)
	if err := s.terminate(); err != nil {
		logger.Warnf("session %s: terminate error: %v", name, err)
	}
	s.setStatus(StatusClosed)
}

// ShutdownAll disconnects every session in parallel, waiting for all of
// them to finish.
func (m *Manager) ShutdownAll() {
	m.mu.RLock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			m.Disconnect(name)
		}(name)
	}
	wg.Wait()
}

// Names returns every currently tracked backend name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	return names
}

// withTimeout applies d as ctx's deadline unless ctx already carries one,
// so a caller-supplied deadline is never overridden by a looser default.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
