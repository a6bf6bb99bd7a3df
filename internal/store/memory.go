package store

import (
	"context"
	"sync"
	"time"
)

// VerifierStore holds PKCE verifiers between issuing an authorization URL and
// its callback. Take must be an atomic read-then-delete so a state token can be
// redeemed at most once.
type VerifierStore interface {
	Put(ctx context.Context, state, verifier string) error
	Take(ctx context.Context, state string) (verifier string, ok bool, err error)
}

type pendingVerifier struct {
	Verifier  string
	CreatedAt time.Time
}

// MemoryStore keeps verifiers in process memory. Entries older than ttl are
// treated as absent and swept on writes.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]pendingVerifier
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		pending: make(map[string]pendingVerifier),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, state, verifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.pending[state] = pendingVerifier{Verifier: verifier, CreatedAt: m.now()}
	return nil
}

func (m *MemoryStore) Take(_ context.Context, state string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[state]
	if !ok {
		return "", false, nil
	}
	delete(m.pending, state)
	if m.expired(p) {
		return "", false, nil
	}
	return p.Verifier, true, nil
}

// Len reports how many entries are held, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *MemoryStore) expired(p pendingVerifier) bool {
	return m.ttl > 0 && m.now().Sub(p.CreatedAt) > m.ttl
}

func (m *MemoryStore) sweepLocked() {
	if m.ttl <= 0 {
		return
	}
	for state, p := range m.pending {
		if m.expired(p) {
			delete(m.pending, state)
		}
	}
}
