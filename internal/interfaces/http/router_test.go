package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molecule-search/internal/application/chat"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molecule-search/internal/infrastructure/vertex"
	"github.com/turtacn/molecule-search/internal/interfaces/http/handlers"
	"github.com/turtacn/molecule-search/internal/interfaces/http/middleware"
	"github.com/turtacn/molecule-search/internal/testutil"
)

type staticUpstream struct{ body string }

func (s staticUpstream) StreamAnswer(context.Context, string, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func (s staticUpstream) SearchAndAnswer(context.Context, string, string) (*vertex.AnswerResult, error) {
	return &vertex.AnswerResult{Answer: "ok"}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, prometheus.MetricsCollector) {
	t.Helper()
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test", Subsystem: "router"}, nil)
	require.NoError(t, err)
	log := testutil.NewMockLogger()
	rl := middleware.DefaultRateLimitConfig()

	up := staticUpstream{body: `{"answer":{"state":"SUCCEEDED","answerText":"Hi."}}`}
	return NewRouter(RouterConfig{
		HealthHandler:    handlers.NewHealthHandler("test", nil, log),
		ChatHandler:      handlers.NewChatHandler(chat.NewService(up, log), log),
		CORS:             middleware.DefaultCORSConfig(),
		RateLimit:        &rl,
		Logging:          middleware.DefaultLoggingConfig(),
		MaxBodySize:      1 << 10,
		Logger:           log,
		Metrics:          prometheus.NewAppMetrics(c),
		MetricsCollector: c,
	}), c
}

func TestNewRouter_Routes(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPost, "/chat", `{"prompt":"hi"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/chat", `{"prompt":"hi"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/chat/answer", `{"prompt":"hi"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/chat", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nowhere", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
		})
	}
}

func TestNewRouter_DatabaseRoutesAbsentWithoutHandlers(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, path := range []string{"/api/v1/notebooks", "/api/v1/molecules/search", "/api/v1/documents"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestNewRouter_ChatStreamEndsWithDone(t *testing.T) {
	r, c := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"prompt":"hi"}`))
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.HasSuffix(w.Body.String(), "data: [DONE]\n\n"))
	assert.Contains(t, w.Body.String(), `data: {"content":"Hi."}`)

	mw := httptest.NewRecorder()
	c.Handler().ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, mw.Body.String(), `path="/api/v1/chat",status_code="200"`)
}

func TestNewRouter_BodyLimit(t *testing.T) {
	r, _ := newTestRouter(t)
	body := `{"prompt":"` + strings.Repeat("a", 2048) + `"}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/chat/answer", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
