package lock

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
)

// MemoryLocker keeps advisory edit locks in process memory. Suitable for a
// single node and for tests.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[int64]entity.EditLock
	now   func() time.Time
}

// NewMemoryLocker creates an empty in-memory locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[int64]entity.EditLock),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// live returns the unexpired lock on processID. Caller holds mu.
func (m *MemoryLocker) live(processID int64) (entity.EditLock, bool) {
	l, ok := m.locks[processID]
	if !ok {
		return entity.EditLock{}, false
	}
	if !m.now().Before(l.ExpiresAt) {
		delete(m.locks, processID)
		return entity.EditLock{}, false
	}
	return l, true
}

// Acquire grants the lock, or extends it when the same session already holds it
func (m *MemoryLocker) Acquire(ctx context.Context, lock entity.EditLock, ttl time.Duration) (*entity.EditLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.live(lock.ProcessID); ok && held.SessionID != lock.SessionID {
		return nil, &port.LockHeldError{Holder: held}
	}

	lock.ExpiresAt = m.now().Add(ttl)
	m.locks[lock.ProcessID] = lock
	return &lock, nil
}

func (m *MemoryLocker) Renew(ctx context.Context, processID int64, sessionID string, ttl time.Duration) (*entity.EditLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.live(processID)
	if !ok || held.SessionID != sessionID {
		return nil, port.ErrLockNotHeld
	}

	held.ExpiresAt = m.now().Add(ttl)
	m.locks[processID] = held
	return &held, nil
}

func (m *MemoryLocker) Release(ctx context.Context, processID int64, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.live(processID)
	if !ok || held.SessionID != sessionID {
		return port.ErrLockNotHeld
	}
	delete(m.locks, processID)
	return nil
}

func (m *MemoryLocker) Status(ctx context.Context, processID int64) (*entity.EditLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.live(processID)
	if !ok {
		return nil, nil
	}
	return &held, nil
}
