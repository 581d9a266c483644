package limiter

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newPG(t *testing.T, cfg Config) (*PG, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	l := NewPG(mock, cfg)
	l.now = func() time.Time { return testNow }
	return l, mock
}

const selectBlocked = `SELECT blocked_until FROM login_attempts WHERE email=$1 AND ip_hash=$2`

func TestAllow_NoRow_Allows(t *testing.T) {
	l, mock := newPG(t, DefaultConfig)
	mock.ExpectQuery(regexp.QuoteMeta(selectBlocked)).
		WithArgs("ada@example.gov", []byte("h")).
		WillReturnError(pgx.ErrNoRows)

	ok, dur, err := l.Allow(context.Background(), " Ada@Example.gov ", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, dur)
}

func TestAllow_BlockedUntilFuture(t *testing.T) {
	l, mock := newPG(t, DefaultConfig)
	mock.ExpectQuery(regexp.QuoteMeta(selectBlocked)).
		WithArgs("ada@example.gov", []byte("h")).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(testNow.Add(10 * time.Minute)))

	ok, dur, err := l.Allow(context.Background(), "ada@example.gov", []byte("h"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, dur)
}

func TestAllow_PastOrEpoch_Allows(t *testing.T) {
	l, mock := newPG(t, DefaultConfig)
	mock.ExpectQuery(regexp.QuoteMeta(selectBlocked)).
		WithArgs("ada@example.gov", []byte("h")).
		WillReturnRows(pgxmock.NewRows([]string{"blocked_until"}).AddRow(time.Unix(0, 0)))

	ok, _, err := l.Allow(context.Background(), "ada@example.gov", []byte("h"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAllow_DBError_Propagates(t *testing.T) {
	l, mock := newPG(t, DefaultConfig)
	mock.ExpectQuery(regexp.QuoteMeta(selectBlocked)).
		WithArgs("ada@example.gov", []byte("h")).
		WillReturnError(errors.New("db boom"))

	ok, _, err := l.Allow(context.Background(), "ada@example.gov", []byte("h"))
	require.Error(t, err)
	require.False(t, ok)
}

func TestSuccess_ResetsCounters(t *testing.T) {
	l, mock := newPG(t, DefaultConfig)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO login_attempts`)).
		WithArgs("ada@example.gov", []byte("h")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, l.Success(context.Background(), "ada@example.gov", []byte("h")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailure_BelowThreshold(t *testing.T) {
	l, mock := newPG(t, Config{Window: 5 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute})
	mock.ExpectQuery(regexp.QuoteMeta(`RETURNING fail_count`)).
		WithArgs("ada@example.gov", []byte("h"), 5*time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(2))

	blocked, dur, err := l.Failure(context.Background(), "ada@example.gov", []byte("h"))
	require.NoError(t, err)
	require.False(t, blocked)
	require.Zero(t, dur)
}

func TestFailure_BlocksAtThreshold(t *testing.T) {
	l, mock := newPG(t, Config{Window: 5 * time.Minute, MaxFails: 5, BlockFor: 10 * time.Minute})
	mock.ExpectQuery(regexp.QuoteMeta(`RETURNING fail_count`)).
		WithArgs("ada@example.gov", []byte("h"), 5*time.Minute).
		WillReturnRows(pgxmock.NewRows([]string{"fail_count"}).AddRow(5))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE login_attempts SET blocked_until=$3`)).
		WithArgs("ada@example.gov", []byte("h"), testNow.Add(10*time.Minute)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	blocked, dur, err := l.Failure(context.Background(), "ada@example.gov", []byte("h"))
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, dur)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHashIP_IgnoresPort(t *testing.T) {
	require.Equal(t, HashIP("1.2.3.4:123"), HashIP("1.2.3.4:456"))
	require.Equal(t, HashIP("1.2.3.4"), HashIP("1.2.3.4:456"))
	require.NotEqual(t, HashIP("1.2.3.4"), HashIP("5.6.7.8"))
	require.Len(t, HashIP("[::1]:80"), 32)
}
