package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HeaderAppVersion carries the application version in both directions.
const HeaderAppVersion = "X-App-Version"

const (
	msgCrossSite  = "Cross-site requests are forbidden"
	msgNewRelease = "New Release | Please refresh the page to use the latest version"
)

var unsafeMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

// requestLogger logs one line per response: method, path, status and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			logger.Info(fmt.Sprintf("%s %s %d - %dms", r.Method, r.URL.Path, status, duration.Milliseconds()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", duration)
		})
	}
}

// crossOriginGuard rejects state-changing requests whose Origin is not the
// site itself.
func crossOriginGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slices.Contains(unsafeMethods, r.Method) {
			if r.Header.Get("Origin") != siteOrigin(r) {
				http.Error(w, msgCrossSite, http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// siteOrigin returns scheme://host for the request, honouring proxy headers.
func siteOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}
