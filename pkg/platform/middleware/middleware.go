// Package middleware provides the HTTP middleware chain for the intake
// boundary. Everything request-scoped (time, correlation id, actor) lands
// in the context via pkg/requestcontext so services stay HTTP-free.
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"registrar/pkg/requestcontext"
)

// RequestTime captures one timestamp at the start of the request so every
// operation within it shares the same "now". Audit rows and status change
// timestamps from one request never disagree.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID assigns a correlation identifier to the request, honoring one
// supplied by an upstream proxy.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Actor lifts the authenticated principal from the header the identity
// proxy sets. Authentication itself happens upstream.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get("X-Actor-ID")
		if actor == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := requestcontext.WithActorID(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Recovery converts a handler panic into a 500 instead of tearing down the
// connection.
func Recovery(log pslog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if log != nil {
						log.Error("registrar.http.panic",
							"path", r.URL.Path,
							"panic", rec,
						)
					}
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog logs one line per request with status and latency.
func AccessLog(log pslog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if log == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("registrar.http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestcontext.RequestID(r.Context()),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
