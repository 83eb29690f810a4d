package memory

import (
	"context"
	"sync"

	"github.com/tibialore/boss-sync/internal/boss"
)

// LockStore is an in-memory sync lock with compare-and-set acquisition.
type LockStore struct {
	mu     sync.Mutex
	exists bool
	status boss.LockStatus
	clock  boss.Clock
}

// NewLockStore creates an in-memory lock backed by the given clock.
func NewLockStore(clock boss.Clock) *LockStore {
	return &LockStore{clock: clock}
}

// Ensure creates the lock in the idle state if it does not exist yet.
func (l *LockStore) Ensure(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.exists {
		l.exists = true
		l.status = boss.LockStatus{Status: boss.LockIdle}
	}
	return nil
}

// Acquire flips the lock from idle to running. It returns false when the
// lock is already held.
func (l *LockStore) Acquire(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.exists || l.status.Status != boss.LockIdle {
		return false, nil
	}
	now := l.clock.Now()
	l.status.Status = boss.LockRunning
	l.status.LockedAt = &now
	return true, nil
}

// Release returns the lock to idle and stamps the last run time.
func (l *LockStore) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.exists {
		return nil
	}
	now := l.clock.Now()
	l.status.Status = boss.LockIdle
	l.status.LockedAt = nil
	l.status.LastRunAt = &now
	return nil
}

// Status returns a snapshot of the lock.
func (l *LockStore) Status(_ context.Context) (boss.LockStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.exists {
		return boss.LockStatus{}, boss.ErrNotFound
	}
	snap := l.status
	if l.status.LockedAt != nil {
		t := *l.status.LockedAt
		snap.LockedAt = &t
	}
	if l.status.LastRunAt != nil {
		t := *l.status.LastRunAt
		snap.LastRunAt = &t
	}
	return snap, nil
}

var _ boss.Lock = (*LockStore)(nil)
