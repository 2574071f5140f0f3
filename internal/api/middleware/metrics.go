package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
)

// Metrics records request counts and durations. Routed requests are labelled
// with their chi route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routeLabel(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath maps a raw path onto a route-like label. It serves
// middleware that runs before routing.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/topics/") && len(path) > len("/topics/"):
		if strings.HasSuffix(path, "/messages") {
			return "/topics/{id}/messages"
		}
		return "/topics/{id}"
	case strings.HasPrefix(path, "/tenants/") && len(path) > len("/tenants/"):
		return "/tenants/{slug}"
	case strings.Count(path, "/") > 2:
		return "other"
	}
	return path
}
