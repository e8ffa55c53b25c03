package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalog-importer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS import_sessions (
	id         TEXT PRIMARY KEY,
	feed_url   TEXT NOT NULL,
	file_path  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'parsing',
	summary    TEXT,
	selection  TEXT,
	result     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_import_sessions_status ON import_sessions(status);
CREATE INDEX IF NOT EXISTS idx_import_sessions_created ON import_sessions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, feedURL string) (*model.Session, error) {
	now := time.Now().UTC()
	sess := &model.Session{
		ID:        uuid.New().String(),
		FeedURL:   feedURL,
		Status:    model.SessionParsing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_sessions (id, feed_url, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.FeedURL, string(sess.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}
	return sess, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM import_sessions WHERE id = ?`, id)
	sess, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, id)
	}
	return sess, err
}

func (s *SQLiteStore) Update(ctx context.Context, sess *model.Session) error {
	docs, err := encode(sess)
	if err != nil {
		return err
	}
	sess.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_sessions SET file_path = ?, status = ?, summary = ?, selection = ?, result = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		sess.FilePath, string(sess.Status), nullText(docs.summary), nullText(docs.selection), nullText(docs.result),
		sess.Error, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session %s", sess.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrap(ErrNotFound, sess.ID)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]model.Session, error) {
	query := `SELECT ` + sqliteColumns + ` FROM import_sessions WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOf(filter))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		sess, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

const sqliteColumns = `id, feed_url, file_path, status, summary, selection, result, error, created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLite(row scannable) (*model.Session, error) {
	var sess model.Session
	var summary, selection, result sql.NullString
	err := row.Scan(&sess.ID, &sess.FeedURL, &sess.FilePath, &sess.Status,
		&summary, &selection, &result, &sess.Error, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan session")
	}
	docs := documents{
		summary:   []byte(summary.String),
		selection: []byte(selection.String),
		result:    []byte(result.String),
	}
	if err := decode(&sess, docs); err != nil {
		return nil, err
	}
	return &sess, nil
}

func nullText(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}
