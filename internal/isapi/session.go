package isapi

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-access/internal/faults"
)

const (
	defaultSessionTTL        = 600 * time.Second
	defaultSessionMaxEntries = 256
)

// Session is a vendor secure session: a security token and identity key
// required by sensitive endpoints such as the face library.
type Session struct {
	SecurityToken string
	IdentityKey   string
	ExpiresAt     time.Time
}

// Valid reports whether the session is usable at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// SessionManager caches secure sessions per device.
//
// A cached, unexpired session is returned without network traffic. Concurrent
// callers racing on an absent or expired entry share one acquisition call.
// Failed acquisitions are never cached.
type SessionManager struct {
	client     *Client
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	group        singleflight.Group
	acquisitions atomic.Int64
}

// NewSessionManager creates a session cache. Non-positive ttl and maxEntries
// fall back to 600s and 256.
func NewSessionManager(client *Client, ttl time.Duration, maxEntries int) *SessionManager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultSessionMaxEntries
	}
	return &SessionManager{
		client:     client,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
}

// SetClock replaces the time source. Tests use it to force expiry.
func (m *SessionManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Get returns a valid session for t, acquiring one if needed.
func (m *SessionManager) Get(ctx context.Context, t Target) (*Session, error) {
	if s := m.cached(t.DeviceID); s != nil {
		return s, nil
	}

	ch := m.group.DoChan(t.DeviceID, func() (any, error) {
		// Another flight may have just stored a fresh session.
		if s := m.cached(t.DeviceID); s != nil {
			return s, nil
		}
		// The shared call must not die with whichever caller started it.
		return m.acquire(context.WithoutCancel(ctx), t)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil //nolint:errcheck // flight only returns *Session
	case <-ctx.Done():
		return nil, &faults.Error{Kind: faults.KindTimeout, Op: "acquire_session", DeviceID: t.DeviceID, Err: ctx.Err()}
	}
}

// Invalidate drops the cached session for deviceID.
func (m *SessionManager) Invalidate(deviceID string) {
	m.mu.Lock()
	delete(m.sessions, deviceID)
	m.mu.Unlock()
}

// Clear drops every cached session.
func (m *SessionManager) Clear() {
	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
}

// Len returns the number of cached sessions, expired ones included.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Acquisitions returns how many acquisition calls reached the network.
func (m *SessionManager) Acquisitions() int64 {
	return m.acquisitions.Load()
}

func (m *SessionManager) cached(deviceID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[deviceID]
	if !ok {
		return nil
	}
	if !s.Valid(m.now()) {
		delete(m.sessions, deviceID)
		return nil
	}
	cpy := *s
	return &cpy
}

func (m *SessionManager) acquire(ctx context.Context, t Target) (*Session, error) {
	const op = "acquire_session"
	m.acquisitions.Add(1)

	var key IdentityKey
	if err := m.client.DoJSON(ctx, t, http.MethodGet, PathIdentityKey, nil, &key); err != nil {
		return nil, &faults.Error{Kind: faults.KindSession, Op: op, DeviceID: t.DeviceID, Err: err}
	}
	if key.Security == "" || key.IdentityKey == "" {
		return nil, &faults.Error{
			Kind: faults.KindSession, Op: op, DeviceID: t.DeviceID,
			Message: "device returned an empty session",
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{SecurityToken: key.Security, IdentityKey: key.IdentityKey, ExpiresAt: m.now().Add(m.ttl)}
	m.sessions[t.DeviceID] = s
	m.evictLocked()

	cpy := *s
	return &cpy, nil
}

// evictLocked keeps the cache within maxEntries, dropping expired sessions
// first and then the ones closest to expiry.
func (m *SessionManager) evictLocked() {
	if len(m.sessions) <= m.maxEntries {
		return
	}
	now := m.now()
	for id, s := range m.sessions {
		if !s.Valid(now) {
			delete(m.sessions, id)
		}
	}
	for len(m.sessions) > m.maxEntries {
		var oldestID string
		var oldest time.Time
		for id, s := range m.sessions {
			if oldestID == "" || s.ExpiresAt.Before(oldest) {
				oldestID, oldest = id, s.ExpiresAt
			}
		}
		delete(m.sessions, oldestID)
	}
}
