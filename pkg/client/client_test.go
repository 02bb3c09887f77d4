package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molecule-search/pkg/errors"
)

type testLogger struct {
	mu   sync.Mutex
	logs []string
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.add("DEBUG", format, args) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.add("INFO", format, args) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.add("ERROR", format, args) }

func (l *testLogger) add(level, format string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, level+": "+fmt.Sprintf(format, args...))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient("ftp://example.com")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, err := NewClient("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
	assert.Equal(t, 3, c.retryMax)
	assert.Equal(t, "molsearch-go-sdk/"+Version, c.userAgent)
}

func TestClient_Headers(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}, WithAPIKey("secret"), WithUserAgent("ui/1.0"))

	_, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", got.Get("Authorization"))
	assert.Equal(t, "ui/1.0", got.Get("User-Agent"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
}

func TestClient_NoAPIKeyNoAuthHeader(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	_, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "DOCUMENT_001", "detail": "document not found"})
	})

	_, err := c.DocumentURL(context.Background(), "missing.pdf")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, errors.ErrorCode("DOCUMENT_001"), apiErr.Code)
	assert.Equal(t, "document not found", apiErr.Detail)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Contains(t, apiErr.Error(), "HTTP 404")
}

func TestClient_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway config", http.StatusBadRequest)
	})
	_, err := c.Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsBadRequest())
	assert.Equal(t, "bad gateway config", apiErr.Detail)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	logger := &testLogger{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive", "version": "1.2.3"})
	}, WithLogger(logger))

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", h.Version)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Contains(t, strings.Join(logger.logs, "\n"), "Retry attempt 2")
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}, WithRetryMax(1))

	_, err := c.Ready(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "COMMON_002", "detail": "limit must be an integer"})
	})
	_, err := c.ListNotebooks(context.Background(), NotebookFilter{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RateLimitWithoutRetryAfter(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"code": "COMMON_007", "detail": "rate limit exceeded"})
	})
	_, err := c.Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsRateLimited())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryWait(time.Second, 2*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Health(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalculateBackoff_Capped(t *testing.T) {
	c, err := NewClient("http://localhost", WithRetryWait(100*time.Millisecond, 300*time.Millisecond))
	require.NoError(t, err)
	for attempt := 1; attempt <= 6; attempt++ {
		d := c.calculateBackoff(attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 300*time.Millisecond+75*time.Millisecond)
	}
}

func TestNotebooks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/notebooks":
			assert.Equal(t, "suzuki", r.URL.Query().Get("search"))
			assert.Equal(t, "2024-01-01", r.URL.Query().Get("date_from"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			assert.False(t, r.URL.Query().Has("author"))
			io.WriteString(w, `{"notebooks":[{"id":"a1","title":"NB-1","gcsPath":"notebooks/NB-1.pdf","description":"","date":"2024-02-01T00:00:00Z","author":null,"tags":[]}]}`)
		case "/api/v1/notebooks/authors":
			io.WriteString(w, `{"authors":["A. Chemist"]}`)
		case "/api/v1/notebooks/a1":
			io.WriteString(w, `{"id":"a1","gcs_path":"notebooks/NB-1.pdf","created_at":"2024-02-01T00:00:00Z","updated_at":"2024-02-01T00:00:00Z","syntheses":[{"id":"s1","parts":[{"id":"p1","sequence_number":1,"reactions":[{"id":"r1","roles":[{"id":"x","molecule_id":"m","smiles":"CCO","role":"solvent"}]}]}]}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	list, err := c.ListNotebooks(ctx, NotebookFilter{Search: "suzuki", DateFrom: "2024-01-01", Limit: 5})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "NB-1", list[0].Title)
	assert.Nil(t, list[0].Author)
	assert.Empty(t, list[0].Tags)

	authors, err := c.NotebookAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A. Chemist"}, authors)

	nb, err := c.GetNotebook(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, nb.Syntheses, 1)
	assert.Equal(t, "CCO", nb.Syntheses[0].Parts[0].Reactions[0].Roles[0].SMILES)

	_, err = c.GetNotebook(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSearchMolecules(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req MoleculeSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"CCO", "c1ccccc1"}, req.SMILES)
		assert.Equal(t, SearchExact, req.Type)
		io.WriteString(w, `{"query":["CCO","c1ccccc1"],"type":"exact","total":1,"results":[{"notebook":{"id":"n1"},"matched_smiles":["CCO"],"reaction_ids":["r1"],"molecule_roles":[{"smiles":"CCO","role":"solvent"}]}]}`)
	})

	res, err := c.SearchMolecules(context.Background(), MoleculeSearchRequest{SMILES: []string{" CCO ", "", "c1ccccc1"}, Type: SearchExact})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "n1", res.Results[0].Notebook.ID)
	assert.Equal(t, "solvent", res.Results[0].MoleculeRoles[0].Role)

	_, err = c.SearchMolecules(context.Background(), MoleculeSearchRequest{SMILES: []string{" "}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDocuments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/documents":
			assert.Equal(t, "notebooks/", r.URL.Query().Get("prefix"))
			io.WriteString(w, `{"documents":[{"name":"notebooks/NB-1.pdf","filename":"NB-1.pdf","size":12}],"total":1}`)
		case "/api/v1/documents/url":
			assert.Equal(t, "notebooks/NB 1.pdf", r.URL.Query().Get("name"))
			io.WriteString(w, `{"name":"notebooks/NB 1.pdf","url":"https://signed.example/x","expires_at":"2024-01-01T01:00:00Z"}`)
		}
	})
	ctx := context.Background()

	docs, err := c.ListDocuments(ctx, "notebooks/")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(12), docs[0].Size)

	u, err := c.DocumentURL(ctx, "notebooks/NB 1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/x", u.URL)
}
