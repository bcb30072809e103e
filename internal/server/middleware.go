// internal/server/middleware.go
package server

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RequestLogger writes one zerolog line per request, with the level chosen by status.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			var event *zerolog.Event
			switch {
			case status >= 500:
				event = logger.Error()
			case status >= 400:
				event = logger.Warn()
			default:
				event = logger.Info()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Str("remote_ip", clientIP(r)).
				Msg("http request")
		})
	}
}

// DefaultLimiterIdle is how long a client's bucket may go unused before it is dropped.
const DefaultLimiterIdle = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimiter hands out one token bucket per client address. Buckets unused
// for longer than both DefaultLimiterIdle and their full refill time are
// swept on a later call, so a dropped bucket would have been full anyway.
type RateLimiter struct {
	limiters  sync.Map
	rate      rate.Limit
	burst     int
	idle      time.Duration
	lastSweep atomic.Int64
	now       func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	idle := DefaultLimiterIdle
	if refill := time.Duration(float64(burst) / perSecond * float64(time.Second)); perSecond > 0 && refill > idle {
		idle = refill
	}
	rl := &RateLimiter{rate: rate.Limit(perSecond), burst: burst, idle: idle, now: time.Now}
	rl.lastSweep.Store(rl.now().UnixNano())
	return rl
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now().UnixNano()
	rl.maybeSweep(now)

	v, ok := rl.limiters.Load(key)
	if !ok {
		v, _ = rl.limiters.LoadOrStore(key, &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)})
	}
	vis := v.(*visitor)
	vis.lastSeen.Store(now)
	return vis.limiter
}

// maybeSweep runs at most one sweep per idle period across all callers.
func (rl *RateLimiter) maybeSweep(now int64) {
	last := rl.lastSweep.Load()
	if now-last < int64(rl.idle) || !rl.lastSweep.CompareAndSwap(last, now) {
		return
	}
	cutoff := now - int64(rl.idle)
	rl.limiters.Range(func(k, v any) bool {
		if v.(*visitor).lastSeen.Load() < cutoff {
			rl.limiters.CompareAndDelete(k, v)
		}
		return true
	})
}

// Len reports how many client buckets are currently tracked.
func (rl *RateLimiter) Len() int {
	n := 0
	rl.limiters.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// LimitMutations throttles POST, PUT, PATCH and DELETE. Reads are never limited.
func (rl *RateLimiter) LimitMutations(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutation(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r)
			if !rl.limiter(ip).Allow() {
				logger.Warn().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_ip", ip).
					Msg("rate limit exceeded")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"code":  "RATE_LIMITED",
					"error": "too many requests, please try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
