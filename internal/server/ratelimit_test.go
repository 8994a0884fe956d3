// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
	}{
		{"disabled", RateLimitConfig{}, false},
		{"valid", RateLimitConfig{RequestsPerSecond: 10, Burst: 20}, false},
		{"negative rate", RateLimitConfig{RequestsPerSecond: -1}, true},
		{"rate without burst", RateLimitConfig{RequestsPerSecond: 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	handler := rateLimitMiddleware(RateLimitConfig{}, done)(okHandler())

	for range 50 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitMiddleware_BurstExhaustion(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	handler := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 3}, done)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"

	for i := range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst should pass", i)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_PerIPBuckets(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	handler := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}, done)(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:1111"
	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.2:2222"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	// First IP is out of tokens, second still has its burst.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_PortStripped(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	handler := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}, done)(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:1111"
	samehost := httptest.NewRequest(http.MethodGet, "/", nil)
	samehost.RemoteAddr = "10.0.0.1:9999"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	// Different ephemeral port, same IP: shares the bucket.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, samehost)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
