package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerReportsHealthy(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.Register("postgres", NewCheckFunc("postgres", func(_ context.Context) error {
		return nil
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusHealthy, response.Status)
	require.Equal(t, "v1.2.0", response.Version)
	require.Len(t, response.Checks, 1)
}

func TestHandlerReportsUnhealthy(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.Register("kafka", NewCheckFunc("kafka", func(_ context.Context) error {
		return errors.New("broker unreachable")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusUnhealthy, response.Status)
	require.Equal(t, "broker unreachable", response.Checks["kafka"].Message)
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.Register("postgres", NewCheckFunc("postgres", func(_ context.Context) error {
		return nil
	}))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ready", w.Body.String())
}

func TestReadinessHandlerNotReady(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.Register("postgres", NewCheckFunc("postgres", func(_ context.Context) error {
		return errors.New("connection refused")
	}))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "not ready", w.Body.String())
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestCheckFuncHonoursTimeout(t *testing.T) {
	handler := NewHandler("v1.2.0")
	handler.Register("slow", NewCheckFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	handler.timeout = 5 // nanoseconds, forces immediate expiry

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
