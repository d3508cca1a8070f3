package server

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// recoverPanics turns a handler panic into a 500 response
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic serving request", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe logs each request and records its metrics
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.deps.Metrics.ObserveRequest(r.Method, route, strconv.Itoa(rec.status), elapsed.Seconds())
		s.logger.Info("request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

// cors sets the configured allowed origin and answers preflight requests
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.CORSOrigin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", s.opts.CORSOrigin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Expose-Headers", "Content-Disposition")
			if s.opts.CORSOrigin != "*" {
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// sweep evicts expired artifacts before handling the request unless a
// sweep is already running
func (s *Server) sweep(next http.Handler) http.Handler {
	if !s.opts.SweepOnRequest || s.deps.Sweeper == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.deps.Sweeper.TrySweep(context.WithoutCancel(r.Context()))
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects clients exceeding their token bucket with 429
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Idle client limiters are dropped after this long
const limiterIdleTTL = 10 * time.Minute

// clientLimiter keeps one token bucket per client address
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *gocache.Cache
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		buckets: gocache.New(limiterIdleTTL, limiterIdleTTL),
	}
}

func (c *clientLimiter) allow(client string) bool {
	if v, ok := c.buckets.Get(client); ok {
		c.buckets.SetDefault(client, v)
		return v.(*rate.Limiter).Allow()
	}
	l := rate.NewLimiter(c.limit, c.burst)
	if err := c.buckets.Add(client, l, gocache.DefaultExpiration); err != nil {
		// another request created it first
		if v, ok := c.buckets.Get(client); ok {
			return v.(*rate.Limiter).Allow()
		}
	}
	return l.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
