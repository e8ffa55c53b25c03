package model

import "time"

// SessionStatus is the lifecycle state of an import session.
type SessionStatus string

const (
	SessionParsing   SessionStatus = "parsing"
	SessionReady     SessionStatus = "ready"
	SessionSelecting SessionStatus = "selecting"
	SessionImporting SessionStatus = "importing"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Selection holds the operator's filters. Each list is independently
// optional; a nil or empty list does not constrain the result.
type Selection struct {
	Categories []string `json:"categories,omitempty" validate:"omitempty,dive,required"`
	Brands     []string `json:"brands,omitempty" validate:"omitempty,dive,required"`
	ProductIDs []string `json:"product_ids,omitempty" validate:"omitempty,dive,required"`
}

// Empty reports whether no filter is set.
func (s *Selection) Empty() bool {
	return s == nil || (len(s.Categories) == 0 && len(s.Brands) == 0 && len(s.ProductIDs) == 0)
}

// Session tracks one feed from download through selection to import.
// The product list itself is never stored here; it is re-read from FilePath.
type Session struct {
	ID        string           `json:"id"`
	FeedURL   string           `json:"feed_url"`
	FilePath  string           `json:"file_path,omitempty"`
	Summary   *TaxonomySummary `json:"summary,omitempty"`
	Selection *Selection       `json:"selection,omitempty"`
	Status    SessionStatus    `json:"status"`
	Result    *ImportResult    `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ImportResult reports the outcome of an import run. A completed session
// may still carry failures.
type ImportResult struct {
	Scanned  int      `json:"scanned"`
	Selected int      `json:"selected"`
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Succeeded returns the number of products written to the catalog.
func (r *ImportResult) Succeeded() int {
	return r.Created + r.Updated
}

// maxResultErrors bounds the error samples kept on a session.
const maxResultErrors = 50

// AddError records an error sample, dropping samples past the cap.
func (r *ImportResult) AddError(msg string) {
	if len(r.Errors) < maxResultErrors {
		r.Errors = append(r.Errors, msg)
	}
}
