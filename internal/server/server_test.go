package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightnote/admission"
	"github.com/lightnote/admission/internal/ai"
	"github.com/lightnote/admission/internal/config"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *fakeGenerator) Analyze(_ context.Context, req ai.AnalyzeRequest) (*ai.AnalyzeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &ai.AnalyzeResult{Analysis: "analysis of " + req.Content, Model: "fake"}, nil
}

func (g *fakeGenerator) Rewrite(_ context.Context, req ai.RewriteRequest) (*ai.RewriteResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &ai.RewriteResult{Rewritten: strings.ToUpper(req.Text), Model: "fake"}, nil
}

type fixedStrikes int64

func (f fixedStrikes) Strikes(string) int64 { return int64(f) }

func newTestServer(t *testing.T, gen ai.Generator) (*Server, *time.Time) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter := admission.NewLimiter(map[admission.Action]admission.Policy{
		admission.ActionAnalyze: {Quota: 5, Window: time.Minute, Message: "Too many analysis requests"},
		admission.ActionRewrite: {Quota: 1, Window: 10 * time.Second, Message: "Too many rewrite requests"},
	}, admission.WithClock(func() time.Time { return now }))

	srv := New(config.ServerConfig{Addr: ":0"}, Deps{
		Limiter:   limiter,
		Generator: gen,
		Strikes:   fixedStrikes(2),
	})
	return srv, &now
}

func do(srv *Server, method, path, xff, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{})
	w := do(srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestAnalyze_AdmitsThenRejects(t *testing.T) {
	gen := &fakeGenerator{}
	srv, now := newTestServer(t, gen)

	for i := 0; i < 5; i++ {
		w := do(srv, http.MethodPost, "/api/analyze", "1.2.3.4", `{"content":"proposal"}`)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "analysis of proposal", decode(t, w)["analysis"])
	}

	*now = now.Add(time.Second)
	w := do(srv, http.MethodPost, "/api/analyze", "1.2.3.4", `{"content":"proposal"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "59", w.Header().Get("Retry-After"))
	assert.Equal(t, map[string]any{
		"success":    false,
		"error":      "Too many analysis requests",
		"retryAfter": float64(59),
	}, decode(t, w))
	assert.Equal(t, 5, gen.calls, "rejected request must not reach the AI service")

	w = do(srv, http.MethodPost, "/api/analyze", "5.6.7.8", `{"content":"proposal"}`)
	assert.Equal(t, http.StatusOK, w.Code, "other identities are not affected")

	*now = now.Add(time.Minute)
	w = do(srv, http.MethodPost, "/api/analyze", "1.2.3.4", `{"content":"proposal"}`)
	assert.Equal(t, http.StatusOK, w.Code, "a fresh window starts after reset")
}

func TestRewrite_OwnQuota(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{})

	w := do(srv, http.MethodPost, "/api/rewrite", "1.2.3.4", `{"text":"hello","instruction":"shout"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HELLO", decode(t, w)["rewritten"])

	w = do(srv, http.MethodPost, "/api/rewrite", "1.2.3.4", `{"text":"hello"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "10", w.Header().Get("Retry-After"))
	assert.Equal(t, "Too many rewrite requests", decode(t, w)["error"])

	w = do(srv, http.MethodPost, "/api/analyze", "1.2.3.4", `{"content":"still fine"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{})

	w := do(srv, http.MethodPost, "/api/analyze", "1.2.3.4", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	w = do(srv, http.MethodPost, "/api/rewrite", "1.2.3.4", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProviderFailure(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{err: &ai.ProviderError{StatusCode: 500, Message: "boom"}})
	w := do(srv, http.MethodPost, "/api/analyze", "1.2.3.4", `{"content":"x"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	srv, _ = newTestServer(t, &fakeGenerator{err: errors.New("dial tcp: refused")})
	w = do(srv, http.MethodPost, "/api/rewrite", "1.2.3.4", `{"text":"x"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestAdmissionStatus(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{})
	do(srv, http.MethodPost, "/api/analyze", "1.2.3.4", `{"content":"x"}`)
	do(srv, http.MethodPost, "/api/analyze", "1.2.3.4", `{"content":"x"}`)

	w := do(srv, http.MethodGet, "/api/admission/status", "1.2.3.4", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Identity string                                `json:"identity"`
		Limits   map[admission.Action]admission.Status `json:"limits"`
		Strikes  int64                                 `json:"strikes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "1.2.3.4", body.Identity)
	assert.Equal(t, 2, body.Limits[admission.ActionAnalyze].Used)
	assert.Equal(t, 3, body.Limits[admission.ActionAnalyze].Remaining)
	assert.Equal(t, 0, body.Limits[admission.ActionRewrite].Used)
	assert.Equal(t, int64(2), body.Strikes)

	// reading the status never consumes quota
	w = do(srv, http.MethodGet, "/api/admission/status", "1.2.3.4", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Limits[admission.ActionAnalyze].Used)
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{})
	w := do(srv, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
