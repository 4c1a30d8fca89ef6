package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestObservabilityAssignsRequestID(t *testing.T) {
	obs := NewObservability("gaugesd-test", nil, nil)
	handler := obs.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gauge/supply", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	_, err := uuid.Parse(rec.Header().Get(HeaderRequestID))
	require.NoError(t, err)

	supplied := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/gauge/supply", nil)
	req.Header.Set(HeaderRequestID, supplied)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, supplied, rec.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/gauge/supply", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.NotEqual(t, "not-a-uuid", rec.Header().Get(HeaderRequestID))
}
