package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tibialore/boss-sync/internal/boss"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestLockEnsureIsIdempotent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLockStore(mock, fixedClock{now: time.Now()}, nil)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO sync_locks").
		WithArgs(boss.LockID, string(boss.LockIdle)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Ensure(context.Background()))

	// Second ensure hits the conflict clause and affects nothing.
	mock.ExpectExec("INSERT INTO sync_locks").
		WithArgs(boss.LockID, string(boss.LockIdle)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	require.NoError(t, store.Ensure(context.Background()))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockMutualExclusion(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLockStore(mock, fixedClock{now: now}, nil)
	require.NoError(t, err)

	// Acquire succeeds while idle.
	mock.ExpectExec("UPDATE sync_locks SET status").
		WithArgs(boss.LockID, string(boss.LockRunning), now, string(boss.LockIdle)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// Second acquire without release finds no idle row.
	mock.ExpectExec("UPDATE sync_locks SET status").
		WithArgs(boss.LockID, string(boss.LockRunning), now, string(boss.LockIdle)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = store.Acquire(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	// Release returns the row to idle and stamps last_run_at.
	mock.ExpectExec("UPDATE sync_locks SET status").
		WithArgs(boss.LockID, string(boss.LockIdle), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.Release(context.Background()))

	// Acquire succeeds again after release.
	mock.ExpectExec("UPDATE sync_locks SET status").
		WithArgs(boss.LockID, string(boss.LockRunning), now, string(boss.LockIdle)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err = store.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockStatusSnapshot(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLockStore(mock, fixedClock{now: now}, nil)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT status, locked_at, last_run_at FROM sync_locks").
		WithArgs(boss.LockID).
		WillReturnRows(pgxmock.NewRows([]string{"status", "locked_at", "last_run_at"}).
			AddRow(string(boss.LockRunning), &now, (*time.Time)(nil)))

	st, err := store.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, boss.LockRunning, st.Status)
	require.NotNil(t, st.LockedAt)
	require.Nil(t, st.LastRunAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockStatusMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLockStore(mock, fixedClock{now: time.Now()}, nil)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT status, locked_at, last_run_at FROM sync_locks").
		WithArgs(boss.LockID).
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Status(context.Background())
	require.ErrorIs(t, err, boss.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
