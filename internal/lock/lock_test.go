package lock

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	ok, err := l.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.TryAcquire(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Release(ctx, 1))
	ok, err = l.TryAcquire(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresLocker_AcquireAndRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLocker(db)

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(DispatchLockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(DispatchLockID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := l.TryAcquire(context.Background(), DispatchLockID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Held by this process already.
	ok, err = l.TryAcquire(context.Background(), DispatchLockID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(context.Background(), DispatchLockID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLocker_HeldElsewhere(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := NewPostgresLocker(db).TryAcquire(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLocker_AcquireError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(int64(42)).
		WillReturnError(sql.ErrConnDone)

	_, err = NewPostgresLocker(db).TryAcquire(context.Background(), 42)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLocker_ReleaseWithoutAcquire(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, NewPostgresLocker(db).Release(context.Background(), 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}
