package middleware

import (
	"net/http"
	"slices"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/moodtunes/backend/internal/logging"
)

// RequestContextMiddleware adds request attributes to context early in the middleware chain.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs := &logging.RequestAttrs{
			Method: r.Method,
			Path:   r.URL.Path,
			IP:     logging.ExtractClientIP(r),
		}
		ctx := logging.WithRequestAttrs(r.Context(), attrs)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLogger logs one line per request in chi's default format. Query
// strings on redactPaths are dropped, so OAuth codes never reach the log.
func AccessLogger(logger chimiddleware.LoggerInterface, noColor bool, redactPaths ...string) func(http.Handler) http.Handler {
	return chimiddleware.RequestLogger(&redactingFormatter{
		next:   &chimiddleware.DefaultLogFormatter{Logger: logger, NoColor: noColor},
		redact: redactPaths,
	})
}

type redactingFormatter struct {
	next   chimiddleware.LogFormatter
	redact []string
}

func (f *redactingFormatter) NewLogEntry(r *http.Request) chimiddleware.LogEntry {
	if r.URL.RawQuery != "" && slices.Contains(f.redact, r.URL.Path) {
		// shallow copy; the handler still sees the original request
		r = r.WithContext(r.Context())
		r.RequestURI = r.URL.Path
	}
	return f.next.NewLogEntry(r)
}
