package session

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-importer/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresWithPool(mock), mock
}

var sessionCols = []string{"id", "feed_url", "file_path", "status", "summary", "selection", "result", "error", "created_at", "updated_at"}

func TestPostgresStore_Create(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`INSERT INTO import_sessions`).
		WithArgs(pgxmock.AnyArg(), "https://vendor.example.com/full.xml", "parsing", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sess, err := s.Create(context.Background(), "https://vendor.example.com/full.xml")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, model.SessionParsing, sess.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM import_sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
			"s1", "https://vendor.example.com/full.xml", "", "selecting",
			[]byte(`{"categories":[],"brands":[],"total_products":2,"brand_categories":{}}`),
			[]byte(`{"brands":["5"]}`), []byte(nil), "", now, now,
		))

	sess, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionSelecting, sess.Status)
	assert.Equal(t, 2, sess.Summary.TotalProducts)
	assert.Equal(t, []string{"5"}, sess.Selection.Brands)
	assert.Nil(t, sess.Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM import_sessions WHERE id = \$1`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`UPDATE import_sessions SET`).
		WithArgs("s1", "", "importing", pgxmock.AnyArg(), []byte(`{"product_ids":["77"]}`), pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE import_sessions SET`).
		WithArgs("gone", "", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	sess := &model.Session{ID: "s1", Status: model.SessionImporting, Selection: &model.Selection{ProductIDs: []string{"77"}}}
	require.NoError(t, s.Update(context.Background(), sess))
	assert.False(t, sess.UpdatedAt.IsZero())

	err := s.Update(context.Background(), &model.Session{ID: "gone"})
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM import_sessions WHERE status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("ready", 100, 0).
		WillReturnRows(pgxmock.NewRows(sessionCols).
			AddRow("s1", "u1", "", "ready", []byte(nil), []byte(nil), []byte(nil), "", now, now).
			AddRow("s2", "u2", "", "ready", []byte(nil), []byte(nil), []byte(nil), "", now, now))

	out, err := s.List(context.Background(), Filter{Status: model.SessionReady})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
