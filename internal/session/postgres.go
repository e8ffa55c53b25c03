package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-importer/internal/db"
	"github.com/sells-group/catalog-importer/internal/model"
)

// PostgresStore implements Store using a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to Postgres.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect session store")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS import_sessions (
	id         TEXT PRIMARY KEY,
	feed_url   TEXT NOT NULL,
	file_path  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'parsing',
	summary    JSONB,
	selection  JSONB,
	result     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_import_sessions_status ON import_sessions(status);
CREATE INDEX IF NOT EXISTS idx_import_sessions_created ON import_sessions(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate sessions")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, feedURL string) (*model.Session, error) {
	now := time.Now().UTC()
	sess := &model.Session{
		ID:        uuid.New().String(),
		FeedURL:   feedURL,
		Status:    model.SessionParsing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_sessions (id, feed_url, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.FeedURL, string(sess.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}
	return sess, nil
}

const postgresColumns = `id, feed_url, file_path, status, summary, selection, result, error, created_at, updated_at`

func scanPostgres(row pgx.Row) (*model.Session, error) {
	var sess model.Session
	var docs documents
	var status string
	err := row.Scan(&sess.ID, &sess.FeedURL, &sess.FilePath, &status,
		&docs.summary, &docs.selection, &docs.result, &sess.Error, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.Status = model.SessionStatus(status)
	if err := decode(&sess, docs); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Session, error) {
	sess, err := scanPostgres(s.pool.QueryRow(ctx,
		`SELECT `+postgresColumns+` FROM import_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, id)
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	return sess, nil
}

func (s *PostgresStore) Update(ctx context.Context, sess *model.Session) error {
	docs, err := encode(sess)
	if err != nil {
		return err
	}
	sess.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE import_sessions SET file_path = $2, status = $3, summary = $4, selection = $5, result = $6, error = $7, updated_at = $8
		 WHERE id = $1`,
		sess.ID, sess.FilePath, string(sess.Status), docs.summary, docs.selection, docs.result, sess.Error, sess.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session %s", sess.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrap(ErrNotFound, sess.ID)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]model.Session, error) {
	query := `SELECT ` + postgresColumns + ` FROM import_sessions`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` WHERE status = $1`
	}
	args = append(args, limitOf(filter), filter.Offset)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		sess, err := scanPostgres(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		out = append(out, *sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}
