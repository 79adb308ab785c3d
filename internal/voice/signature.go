package voice

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the provider's request signature.
const SignatureHeader = "X-Twilio-Signature"

// ValidateSignature returns middleware rejecting webhooks whose signature
// does not match. publicURL is the externally visible base URL; when empty
// the URL is rebuilt from the request. An empty authToken disables the
// check.
func ValidateSignature(authToken, publicURL string, logger *slog.Logger) func(http.Handler) http.Handler {
	publicURL = strings.TrimRight(publicURL, "/")
	return func(next http.Handler) http.Handler {
		if authToken == "" {
			return next
		}
		validator := client.NewRequestValidator(authToken)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(SignatureHeader)
			if got == "" {
				logger.Warn("webhook without signature", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			if !validator.Validate(requestURL(r, publicURL), formParams(r), got) {
				logger.Warn("webhook signature mismatch", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// formParams flattens the POST body for signing. The provider never repeats
// a webhook parameter, so the first value is used.
func formParams(r *http.Request) map[string]string {
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return params
}

func requestURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return publicURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
