package request

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/pkg/requestcontext"
)

func serveRequestID(header string) (captured string, w *httptest.ResponseRecorder) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = requestcontext.RequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if header != "" {
		req.Header.Set("X-Request-ID", header)
	}
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return captured, w
}

func TestRequestID(t *testing.T) {
	t.Run("generates UUID when no header provided", func(t *testing.T) {
		captured, w := serveRequestID("")
		assert.Len(t, captured, 36)
		assert.Equal(t, captured, w.Header().Get("X-Request-ID"))
	})

	t.Run("keeps valid client-provided IDs", func(t *testing.T) {
		for _, id := range []string{"my-request-123", "trace.span_1234", strings.Repeat("a", MaxRequestIDLength)} {
			captured, w := serveRequestID(id)
			assert.Equal(t, id, captured)
			assert.Equal(t, id, w.Header().Get("X-Request-ID"))
		}
	})

	t.Run("replaces unsafe IDs", func(t *testing.T) {
		unsafe := map[string]string{
			"too long":       strings.Repeat("a", MaxRequestIDLength+1),
			"newline":        "valid\ninjected-log-line",
			"spaces":         "request id",
			"quotes":         `request"id`,
			"angle brackets": "request<id>",
			"semicolon":      "request;id",
			"null byte":      "request\x00id",
		}
		for name, id := range unsafe {
			captured, _ := serveRequestID(id)
			assert.NotEqual(t, id, captured, name)
			assert.Len(t, captured, 36, name)
		}
	})
}

func TestRecovery(t *testing.T) {
	handler := Recovery(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestContentTypeJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	cases := map[string]int{
		"":                                http.StatusOK,
		"application/json":                http.StatusOK,
		"application/json; charset=utf-8": http.StatusOK,
		"text/plain":                      http.StatusUnsupportedMediaType,
	}
	for ct, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("{}"))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, ct)
	}
}

func TestLatencyMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(LatencyMiddleware(m))
	r.Get("/ledger/{asset}/balances/{holder}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/ledger/BOND/balances/GA", "/ledger/EQ/balances/GB"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 1, promtest.CollectAndCount(m.EndpointLatency))
	assert.Equal(t, 1, promtest.CollectAndCount(m.EndpointLatency.WithLabelValues("/ledger/{asset}/balances/{holder}").(prometheus.Histogram)))
}

func TestIsValidRequestID(t *testing.T) {
	assert.True(t, isValidRequestID("trace.span.123"))
	assert.False(t, isValidRequestID(""))
	assert.False(t, isValidRequestID("has\ttab"))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBodyLimit(t *testing.T) {
	echo := BodyLimit(100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("bodies up to the limit pass", func(t *testing.T) {
		for _, n := range []int{0, 99, 100} {
			w := httptest.NewRecorder()
			echo.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mint", strings.NewReader(strings.Repeat("x", n))))
			assert.Equal(t, http.StatusOK, w.Code, n)
		}
	})

	t.Run("declared oversize is refused before the handler", func(t *testing.T) {
		called := false
		h := BodyLimit(100)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mint", strings.NewReader(strings.Repeat("x", 200))))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "payload_too_large")
		assert.False(t, called)
	})

	t.Run("streamed oversize fails on read", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/mint", io.NopCloser(strings.NewReader(strings.Repeat("x", 200))))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		echo.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestLoggerLevels(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	status := http.StatusOK
	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Empty(t, buf.String(), "healthy probes are not logged")

	status = http.StatusForbidden
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ledger/BOND/transfer", nil))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status=403")
	assert.Contains(t, buf.String(), "bytes=2")

	buf.Reset()
	status = http.StatusServiceUnavailable
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestRequestCounterByStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(LatencyMiddleware(m))
	r.Post("/ledger/{asset}/transfer", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ledger/BOND/transfer", nil))

	assert.InDelta(t, 1, promtest.ToFloat64(m.Requests.WithLabelValues("/ledger/{asset}/transfer", http.MethodPost, "403")), 0)
}
