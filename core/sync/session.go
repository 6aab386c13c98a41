package sync

import (
	"context"
	"sync"

	"github.com/faridzul/jadual/core"
)

// SessionManager owns the one upstream session of a pipeline run. The session
// is established lazily (authenticate, then elevate) and cached until
// Invalidate is called. It is shared mutable state scoped to a single
// sequential pipeline; two in-flight fetches must never share a manager.
type SessionManager struct {
	client Client
	conf   *core.Config

	mu  sync.Mutex
	sid SessionID
}

func NewSessionManager(client Client, conf *core.Config) *SessionManager {
	return &SessionManager{client: client, conf: conf}
}

// Current returns the cached session, authenticating and elevating on first
// use. After a rejected session, Invalidate must be called before Current to
// avoid reusing the dead handle.
func (m *SessionManager) Current(ctx context.Context) (SessionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sid != "" {
		return m.sid, nil
	}

	// credentials are read per attempt so a password supplied after
	// construction (e.g. prompted by the CLI) is picked up
	sid, err := m.client.Login(ctx, m.conf.TTMS.Login, m.conf.TTMS.Password)
	if err != nil {
		return "", err
	}
	sid, err = m.client.Elevate(ctx, sid)
	if err != nil {
		return "", err
	}

	m.sid = sid
	return sid, nil
}

// Invalidate drops the cached session so the next Current re-authenticates.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	m.sid = ""
	m.mu.Unlock()
}
