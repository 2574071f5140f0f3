package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// quietPaths are polled by infrastructure and logged at debug level.
var quietPaths = map[string]bool{"/health": true, "/metrics": true}

// Logger returns a request logging middleware using zerolog. Server errors
// are logged at warn level.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				var ev *zerolog.Event
				switch {
				case status >= http.StatusInternalServerError:
					ev = logger.Warn()
				case quietPaths[r.URL.Path]:
					ev = logger.Debug()
				default:
					ev = logger.Info()
				}
				ev.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", RealIP(r)).
					Str("caller", callerKind(r)).
					Bool("stream", strings.HasPrefix(ww.Header().Get("Content-Type"), "text/event-stream")).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// callerKind says which credential a request carried, without revealing it.
func callerKind(r *http.Request) string {
	switch {
	case strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "):
		return "bearer"
	case r.Header.Get("X-Session-Id") != "":
		return "session"
	}
	return "none"
}
