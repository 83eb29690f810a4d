package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/tibialore/boss-sync/internal/boss"
)

// LockStore implements the distributed sync lock on a singleton row.
// Acquire is a compare-and-set on status, which makes it safe across
// process instances sharing the database. There is no expiry: a crashed
// holder leaves the row running until cleared manually.
type LockStore struct {
	pool   dbPool
	clock  boss.Clock
	logger *zap.Logger
}

// NewLockStore builds a LockStore on an existing pool.
func NewLockStore(pool dbPool, clock boss.Clock, logger *zap.Logger) (*LockStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockStore{pool: pool, clock: clock, logger: logger}, nil
}

// Ensure idempotently creates the singleton lock row in the idle state.
func (s *LockStore) Ensure(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO sync_locks (id, status) VALUES ($1, $2)
ON CONFLICT (id) DO NOTHING`,
		boss.LockID, string(boss.LockIdle),
	)
	if err != nil {
		return fmt.Errorf("ensure sync lock: %w", err)
	}
	return nil
}

// Acquire attempts the idle -> running transition, stamping locked_at.
// It returns false without waiting when another holder has the lock.
func (s *LockStore) Acquire(ctx context.Context) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE sync_locks SET status = $2, locked_at = $3
WHERE id = $1 AND status = $4`,
		boss.LockID, string(boss.LockRunning), s.clock.Now(), string(boss.LockIdle),
	)
	if err != nil {
		return false, fmt.Errorf("acquire sync lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Info("sync lock already held, skipping run")
		return false, nil
	}
	s.logger.Info("sync lock acquired")
	return true, nil
}

// Release unconditionally returns the lock to idle, clearing locked_at and
// stamping last_run_at.
func (s *LockStore) Release(ctx context.Context) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE sync_locks SET status = $2, locked_at = NULL, last_run_at = $3
WHERE id = $1`,
		boss.LockID, string(boss.LockIdle), s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("release sync lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("release found no sync lock row")
		return nil
	}
	s.logger.Info("sync lock released")
	return nil
}

// Status returns a snapshot of the lock row, or boss.ErrNotFound when
// Ensure has never run.
func (s *LockStore) Status(ctx context.Context) (boss.LockStatus, error) {
	var (
		status string
		st     boss.LockStatus
	)
	err := s.pool.QueryRow(ctx, `
SELECT status, locked_at, last_run_at FROM sync_locks WHERE id = $1`,
		boss.LockID,
	).Scan(&status, &st.LockedAt, &st.LastRunAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return boss.LockStatus{}, boss.ErrNotFound
	}
	if err != nil {
		return boss.LockStatus{}, fmt.Errorf("read sync lock status: %w", err)
	}
	st.Status = boss.LockState(status)
	return st, nil
}
