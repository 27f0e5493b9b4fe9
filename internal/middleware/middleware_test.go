package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spiritualconnect/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingMiddlewareSetsRequestID(t *testing.T) {
	var seen string
	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestGetRequestIDUnknown(t *testing.T) {
	require.Equal(t, "unknown", GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestErrorRecoveryMiddleware(t *testing.T) {
	h := ErrorRecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware([]string{"http://localhost:3000/"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("trailing slashes ignored", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "http://localhost:3000//")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("blocked origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuthenticate(t *testing.T) {
	tokens := auth.NewTokenService("secret", "test")
	valid, err := tokens.Issue(7, "Arjuna", time.Hour)
	require.NoError(t, err)

	var gotUser int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = 0
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			gotUser = claims.UserID
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		required bool
		header   string
		query    string
		wantCode int
		wantUser int
	}{
		{"required header", true, "Bearer " + valid, "", http.StatusOK, 7},
		{"required query", true, "", valid, http.StatusOK, 7},
		{"required missing", true, "", "", http.StatusUnauthorized, 0},
		{"required invalid", true, "Bearer nope", "", http.StatusUnauthorized, 0},
		{"optional missing", false, "", "", http.StatusOK, 0},
		{"optional invalid", false, "Bearer nope", "", http.StatusUnauthorized, 0},
		{"wrong scheme", true, "Basic abc", "", http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target = "/?token=" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			gotUser = -1

			Authenticate(tokens, tt.required)(next).ServeHTTP(rec, r)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantUser, gotUser)
			}
		})
	}
}

func TestLinkedSpanOutlivesItsOrigin(t *testing.T) {
	req := require.New(t)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, connect := StartSpan(context.Background(), "WebSocket.Connect")
	connect.End()

	_, event := StartLinkedSpan(DetachSpan(ctx), connect.SpanContext(), "Realtime.HandleEvent")
	event.End()

	var found bool
	for _, s := range recorder.Ended() {
		if s.Name() != "Realtime.HandleEvent" {
			continue
		}
		found = true
		req.False(s.Parent().IsValid())
		req.Len(s.Links(), 1)
		req.Equal(connect.SpanContext().SpanID(), s.Links()[0].SpanContext.SpanID())
	}
	req.True(found)
}
