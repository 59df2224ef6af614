package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresStats(t *testing.T) (*PostgresStats, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStats(mock), mock
}

func TestPostgresMigrate(t *testing.T) {
	store, mock := newPostgresStats(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS storieswall_users").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnsureUser(t *testing.T) {
	store, mock := newPostgresStats(t)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO storieswall_users").
		WithArgs(int64(5), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT created_count, total_paid, first_seen, last_creation").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"created_count", "total_paid", "first_seen", "last_creation"}).
			AddRow(0, 0, now, nil))

	rec, created, err := store.EnsureUser(context.Background(), 5, now)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(5), rec.UserID)
	assert.True(t, rec.FirstSeen.Equal(now))
	assert.Nil(t, rec.LastCreation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordCreationCommits(t *testing.T) {
	store, mock := newPostgresStats(t)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO storieswall_users").
		WithArgs(int64(5), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("UPDATE storieswall_users").
		WithArgs(int64(5), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO storieswall_creations").
		WithArgs(int64(5), 12, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.RecordCreation(context.Background(), 5, 12, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordPaymentRollsBackOnError(t *testing.T) {
	store, mock := newPostgresStats(t)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO storieswall_users").
		WithArgs(int64(5), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("UPDATE storieswall_users SET total_paid").
		WithArgs(int64(5), 10).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.RecordPayment(context.Background(), 5, 10, at)
	require.ErrorContains(t, err, "bump paid")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAggregate(t *testing.T) {
	store, mock := newPostgresStats(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"users", "creations", "payments", "earned"}).
			AddRow(3, 4, 2, 35))
	mock.ExpectQuery("SELECT parts, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"parts", "count"}).
			AddRow(9, 3).
			AddRow(21, 1))

	agg, err := store.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, agg.TotalUsers)
	assert.Equal(t, 4, agg.TotalCreations)
	assert.Equal(t, 2, agg.TotalPaid)
	assert.Equal(t, 35, agg.TotalEarned)
	assert.Equal(t, map[int]int{9: 3, 21: 1}, agg.ByParts)
	require.NoError(t, mock.ExpectationsWereMet())
}
