package middleware

import (
	"context"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type contextKey string

const FreshKey contextKey = "fresh"

// DetectFresh marks requests that asked to bypass the request cache, either
// with ?fresh=1 (or true) or with Cache-Control: no-cache
func DetectFresh(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fresh := false
		switch strings.ToLower(r.URL.Query().Get("fresh")) {
		case "1", "true", "yes":
			fresh = true
		}
		if strings.Contains(strings.ToLower(r.Header.Get("Cache-Control")), "no-cache") {
			fresh = true
		}
		if fresh {
			r = r.WithContext(context.WithValue(r.Context(), FreshKey, true))
		}
		next.ServeHTTP(w, r)
	})
}

// Fresh reports whether DetectFresh marked the request
func Fresh(ctx context.Context) bool {
	v, _ := ctx.Value(FreshKey).(bool)
	return v
}

// LogRequestID copies chi's request id onto the request logger and echoes it
// back in the response
func LogRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			w.Header().Set(chimw.RequestIDHeader, id)
			log := hlog.FromRequest(r)
			log.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}
