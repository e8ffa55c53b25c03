package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/importer"
	"github.com/sells-group/catalog-importer/internal/model"
	"github.com/sells-group/catalog-importer/internal/session"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) session(args mock.Arguments) (*model.Session, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessions) Create(ctx context.Context, feedURL string) (*model.Session, error) {
	return m.session(m.Called(ctx, feedURL))
}

func (m *mockSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	return m.session(m.Called(ctx, id))
}

func (m *mockSessions) List(ctx context.Context, filter session.Filter) ([]model.Session, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessions) Download(ctx context.Context, id string) (*model.Session, error) {
	return m.session(m.Called(ctx, id))
}

func (m *mockSessions) Select(ctx context.Context, id string, sel model.Selection) (*model.Session, error) {
	return m.session(m.Called(ctx, id, sel))
}

func (m *mockSessions) Import(ctx context.Context, id string) (*model.Session, error) {
	return m.session(m.Called(ctx, id))
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	srv := NewServer(context.Background(), new(mockSessions), Options{})
	rec, body := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateSession(t *testing.T) {
	m := new(mockSessions)
	m.On("Create", mock.Anything, "https://feeds.example.com/offer.xml").
		Return(&model.Session{ID: "s1", Status: model.SessionReady}, nil)
	srv := NewServer(context.Background(), m, Options{})

	rec, body := do(t, srv, http.MethodPost, "/sessions", `{"feed_url":"https://feeds.example.com/offer.xml"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "s1", body["id"])
	assert.Equal(t, "ready", body["status"])
	m.AssertExpectations(t)
}

func TestCreateSession_Validation(t *testing.T) {
	m := new(mockSessions)
	srv := NewServer(context.Background(), m, Options{})

	rec, body := do(t, srv, http.MethodPost, "/sessions", `{"feed_url":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", body["error"])
	assert.Contains(t, body["fields"], "feed_url")

	rec, body = do(t, srv, http.MethodPost, "/sessions", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", body["error"])

	m.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateSession_FailedFeed(t *testing.T) {
	m := new(mockSessions)
	m.On("Create", mock.Anything, "https://feeds.example.com/bad.xml").
		Return(&model.Session{ID: "s2", Status: model.SessionFailed, Error: "malformed"}, eris.New("malformed"))
	srv := NewServer(context.Background(), m, Options{})

	rec, body := do(t, srv, http.MethodPost, "/sessions", `{"feed_url":"https://feeds.example.com/bad.xml"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "failed", body["status"])
}

func TestListSessions(t *testing.T) {
	m := new(mockSessions)
	m.On("List", mock.Anything, session.Filter{Status: model.SessionCompleted, Limit: 10}).
		Return([]model.Session{{ID: "a"}, {ID: "b"}}, nil)
	srv := NewServer(context.Background(), m, Options{})

	rec, body := do(t, srv, http.MethodGet, "/sessions?status=completed&limit=10", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sessions"], 2)

	rec, _ = do(t, srv, http.MethodGet, "/sessions?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	m := new(mockSessions)
	m.On("Get", mock.Anything, "missing").Return(nil, eris.Wrap(session.ErrNotFound, "missing"))
	srv := NewServer(context.Background(), m, Options{})

	rec, body := do(t, srv, http.MethodGet, "/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestDownload(t *testing.T) {
	m := new(mockSessions)
	m.On("Download", mock.Anything, "s1").Return(&model.Session{ID: "s1", FilePath: "/tmp/s1.xml"}, nil)
	srv := NewServer(context.Background(), m, Options{})

	rec, body := do(t, srv, http.MethodPost, "/sessions/s1/download", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/tmp/s1.xml", body["file_path"])
}

func TestSelect(t *testing.T) {
	m := new(mockSessions)
	sel := model.Selection{Categories: []string{"10"}, Brands: []string{"5"}}
	m.On("Select", mock.Anything, "s1", sel).
		Return(&model.Session{ID: "s1", Status: model.SessionSelecting, Selection: &sel}, nil)
	srv := NewServer(context.Background(), m, Options{})

	rec, body := do(t, srv, http.MethodPut, "/sessions/s1/selection", `{"categories":["10"],"brands":["5"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "selecting", body["status"])
	m.AssertExpectations(t)
}

func TestSelect_InvalidState(t *testing.T) {
	m := new(mockSessions)
	m.On("Select", mock.Anything, "s1", model.Selection{}).
		Return(nil, eris.Wrap(importer.ErrInvalidState, "cannot select in status completed"))
	srv := NewServer(context.Background(), m, Options{})

	rec, body := do(t, srv, http.MethodPut, "/sessions/s1/selection", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", body["error"])
}

func TestImport_Async(t *testing.T) {
	m := new(mockSessions)
	m.On("Get", mock.Anything, "s1").Return(&model.Session{ID: "s1", Status: model.SessionSelecting}, nil)
	m.On("Import", mock.Anything, "s1").Return(&model.Session{ID: "s1", Status: model.SessionCompleted}, nil).Once()
	srv := NewServer(context.Background(), m, Options{})

	rec, body := do(t, srv, http.MethodPost, "/sessions/s1/import", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "accepted", body["status"])

	srv.Wait()
	m.AssertExpectations(t)
}

func TestImport_TerminalSession(t *testing.T) {
	m := new(mockSessions)
	m.On("Get", mock.Anything, "s1").Return(&model.Session{ID: "s1", Status: model.SessionCompleted}, nil)
	srv := NewServer(context.Background(), m, Options{})

	rec, _ := do(t, srv, http.MethodPost, "/sessions/s1/import", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	srv.Wait()
	m.AssertNotCalled(t, "Import", mock.Anything, mock.Anything)
}

func TestCORS(t *testing.T) {
	srv := NewServer(context.Background(), new(mockSessions), Options{AllowedOrigins: []string{"https://admin.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
