package httpapi

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/boardcontext/internal/common"
	"github.com/dmitrijs2005/boardcontext/internal/server/metrics"
	"github.com/dmitrijs2005/boardcontext/internal/server/monday"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionKey
	scopeKey
)

const requestIDHeader = common.RequestIDHeaderName

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// SessionFrom returns the verified session stored by authenticate.
func SessionFrom(ctx context.Context) *monday.Session {
	s, _ := ctx.Value(sessionKey).(*monday.Session)
	return s
}

// withRequestID keeps a caller supplied id or assigns a fresh one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		rw.Header().Set(requestIDHeader, id)
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error(r.Context(), "panic", "panic", v, "stack", string(debug.Stack()), "request_id", RequestID(r.Context()))
				Write(rw, http.StatusInternalServerError, Response{Error: "internal_error"})
			}
		}()
		next.ServeHTTP(rw, r)
	})
}

// withRequestLog logs one line per request and records the HTTP metrics
// under the matched route pattern.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		dur := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route, r.Method).Observe(dur.Seconds())

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", dur.Milliseconds(),
			"request_id", RequestID(r.Context()),
		}
		switch {
		case status >= 500:
			s.logger.Error(r.Context(), "http request", attrs...)
		case status >= 400:
			s.logger.Warn(r.Context(), "http request", attrs...)
		default:
			s.logger.Info(r.Context(), "http request", attrs...)
		}
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// withRateLimit counts requests per peer address and path. Forwarded
// headers are not consulted.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.limiter == nil || s.rateLimit <= 0 {
		return next
	}
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		key := clientIP(r) + " " + r.Method + " " + r.URL.Path
		d := s.limiter.Allow(r.Context(), key, s.rateLimit)
		rw.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		rw.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			metrics.RateLimited.Inc()
			wait := d.RetryAfter(s.now())
			rw.Header().Set("Retry-After", strconv.Itoa(int(wait/time.Second)))
			Write(rw, http.StatusTooManyRequests, Response{Error: "rate_limited"})
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authenticate verifies the session token and stores it in the context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Verify(r.Header.Get(common.AuthorizationHeaderName))
		if err != nil {
			s.writeError(rw, r, err)
			return
		}
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}
