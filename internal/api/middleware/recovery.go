package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Recoverer recovers from panics, logs the stack trace and answers with a
// JSON 500. Mount it after StructuredLogger so the request ID is set.
func Recoverer(next http.Handler) http.Handler {
	return RecoverWith(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	})(next)
}

// RecoverWith is Recoverer with a caller-supplied fallback response.
func RecoverWith(fallback http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slog.Error("panic recovered",
					"request_id", chimw.GetReqID(r.Context()),
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				fallback(w, r)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
