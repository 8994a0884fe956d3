// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	conderr "github.com/conductor-ai/conductor/pkg/errors"
)

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the maximum burst size per IP.
	Burst int
}

// Validate checks that the RateLimitConfig is valid.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return conderr.Errorf(conderr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)",
			c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return conderr.Errorf(conderr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)",
			c.Burst, c.RequestsPerSecond)
	}
	return nil
}

type bucket struct {
	tokens     float64
	lastSeen   time.Time
	lastRefill time.Time
}

// rateLimitMiddleware returns middleware that enforces per-IP token-bucket
// rate limits. Returns a pass-through middleware when cfg.RequestsPerSecond
// is zero. The done channel signals the cleanup goroutine to exit on shutdown.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
	)

	// Drop buckets for IPs not seen recently so the map stays bounded.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				cutoff := time.Now().Add(-10 * time.Minute)
				for ip, b := range buckets {
					if b.lastSeen.Before(cutoff) {
						delete(buckets, ip)
					}
				}
				mu.Unlock()
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Strip port from RemoteAddr so the limit is per IP, not per
			// connection.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			mu.Lock()
			b, exists := buckets[ip]
			now := time.Now()
			if !exists {
				b = &bucket{tokens: float64(cfg.Burst), lastRefill: now}
				buckets[ip] = b
			}
			b.lastSeen = now

			b.tokens += now.Sub(b.lastRefill).Seconds() * cfg.RequestsPerSecond
			if b.tokens > float64(cfg.Burst) {
				b.tokens = float64(cfg.Burst)
			}
			b.lastRefill = now

			if b.tokens < 1 {
				mu.Unlock()
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			b.tokens--
			mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}
