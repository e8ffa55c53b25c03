// Package session persists import sessions.
package session

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-importer/internal/db"
	"github.com/sells-group/catalog-importer/internal/model"
)

// ErrNotFound is returned when no session has the requested id.
var ErrNotFound = eris.New("session: not found")

// Filter specifies criteria for listing sessions.
type Filter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store is a keyed document store for sessions.
type Store interface {
	Create(ctx context.Context, feedURL string) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	// Update overwrites every mutable field of the stored session.
	Update(ctx context.Context, s *model.Session) error
	List(ctx context.Context, filter Filter) ([]model.Session, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string, poolCfg *db.PoolConfig) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		if dsn == "" {
			dsn = "catalog-importer.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("session: unknown store driver %q", driver)
	}
}

// documents holds the JSON-encoded nested parts of a session row.
type documents struct {
	summary, selection, result []byte
}

func encode(s *model.Session) (documents, error) {
	var d documents
	var err error
	if s.Summary != nil {
		if d.summary, err = json.Marshal(s.Summary); err != nil {
			return d, eris.Wrap(err, "session: marshal summary")
		}
	}
	if s.Selection != nil {
		if d.selection, err = json.Marshal(s.Selection); err != nil {
			return d, eris.Wrap(err, "session: marshal selection")
		}
	}
	if s.Result != nil {
		if d.result, err = json.Marshal(s.Result); err != nil {
			return d, eris.Wrap(err, "session: marshal result")
		}
	}
	return d, nil
}

func decode(s *model.Session, d documents) error {
	if len(d.summary) > 0 {
		s.Summary = &model.TaxonomySummary{}
		if err := json.Unmarshal(d.summary, s.Summary); err != nil {
			return eris.Wrap(err, "session: unmarshal summary")
		}
	}
	if len(d.selection) > 0 {
		s.Selection = &model.Selection{}
		if err := json.Unmarshal(d.selection, s.Selection); err != nil {
			return eris.Wrap(err, "session: unmarshal selection")
		}
	}
	if len(d.result) > 0 {
		s.Result = &model.ImportResult{}
		if err := json.Unmarshal(d.result, s.Result); err != nil {
			return eris.Wrap(err, "session: unmarshal result")
		}
	}
	return nil
}

func limitOf(f Filter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
