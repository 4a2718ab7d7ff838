package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "openletter/pkg/domain"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

const upsertQuery = `(?s)^\s*INSERT\s+INTO\s+signatures\s*\(nation,\s*checksum,\s*signed_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*ON\s+CONFLICT\s+\(nation_key\)\s+DO\s+UPDATE\s+SET\s+nation\s*=\s*EXCLUDED\.nation,.+RETURNING\s+id,\s*nation,\s*checksum,\s*signed_at\s*$`

func TestPostgresStore_Upsert(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns the stored row", func(t *testing.T) {
		s, mock := newStoreWithMock(t)
		mock.ExpectQuery(upsertQuery).
			WithArgs("Testlandia", "xyz", at).
			WillReturnRows(sqlmock.NewRows([]string{"id", "nation", "checksum", "signed_at"}).
				AddRow(int64(3), "Testlandia", "xyz", at))

		sig, err := s.Upsert(ctx, "Testlandia", "xyz", at)
		require.NoError(t, err)
		assert.Equal(t, int64(3), sig.ID)
		assert.Equal(t, "xyz", sig.Checksum)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps db errors", func(t *testing.T) {
		s, mock := newStoreWithMock(t)
		mock.ExpectQuery(upsertQuery).WillReturnError(errors.New("db down"))

		_, err := s.Upsert(ctx, "Testlandia", "xyz", at)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upsert signature: db down")
	})
}

func TestPostgresStore_List(t *testing.T) {
	ctx := context.Background()
	s, mock := newStoreWithMock(t)
	newer := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	mock.ExpectQuery(`^SELECT\s+id,\s*nation,\s*checksum,\s*signed_at\s+FROM\s+signatures\s+ORDER\s+BY\s+signed_at\s+DESC,\s*id\s+DESC$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "nation", "checksum", "signed_at"}).
			AddRow(int64(2), "Maxtopia", "b", newer).
			AddRow(int64(1), "Testlandia", "a", older))

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Maxtopia", got[0].Nation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	ctx := context.Background()
	q := `^DELETE\s+FROM\s+signatures\s+WHERE\s+id\s*=\s*\$1$`

	t.Run("existing row", func(t *testing.T) {
		s, mock := newStoreWithMock(t)
		mock.ExpectExec(q).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
		removed, err := s.Delete(ctx, id.SignatureID(5))
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("missing row is a no-op", func(t *testing.T) {
		s, mock := newStoreWithMock(t)
		mock.ExpectExec(q).WithArgs(int64(404)).WillReturnResult(sqlmock.NewResult(0, 0))
		removed, err := s.Delete(ctx, id.SignatureID(404))
		require.NoError(t, err)
		assert.False(t, removed)
	})
}
