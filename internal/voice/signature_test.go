package voice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
)

const testAuthToken = "f3c1a2b4d5e6f708192a3b4c5d6e7f80"

// sign computes the provider signature independently of the validator: the
// URL followed by each parameter name and value in name order, HMAC-SHA1
// keyed with the auth token, base64 encoded.
func sign(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignatureCoversTokenAndURL(t *testing.T) {
	form := url.Values{"CallSid": {"CA100"}, "From": {"+15551112222"}, "To": {"+15550001000"}}
	signed := publicURL + "/voice/incoming"

	tests := []struct {
		name string
		path string
		sig  string
		want int
	}{
		{"signed for this url", "/voice/incoming", sign(testAuthToken, signed, form), http.StatusOK},
		{"signed with another token", "/voice/incoming", sign("other", signed, form), http.StatusForbidden},
		{"signed for another path", "/voice/verify", sign(testAuthToken, signed, form), http.StatusForbidden},
		{"query added after signing", "/voice/incoming?attempts=1", sign(testAuthToken, signed, form), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := ValidateSignature(testAuthToken, publicURL, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, signedRequest(t, tt.path, form, tt.sig))
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func signedRequest(t *testing.T, target string, form url.Values, sig string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	return req
}

func TestValidateSignature(t *testing.T) {
	form := url.Values{"CallSid": {"CA100"}, "From": {"+15551112222"}, "Digits": {"1122"}}
	target := "/voice/verify?attempts=0&tenant=1"
	valid := sign(testAuthToken, publicURL+target, form)

	tests := []struct {
		name string
		sig  string
		form url.Values
		want int
	}{
		{"valid", valid, form, http.StatusOK},
		{"missing", "", form, http.StatusForbidden},
		{"wrong", "bm90IGEgc2lnbmF0dXJl", form, http.StatusForbidden},
		{"tampered digits", valid, url.Values{"CallSid": {"CA100"}, "From": {"+15551112222"}, "Digits": {"0000"}}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotDigits string
			h := ValidateSignature(testAuthToken, publicURL+"/", discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotDigits = r.FormValue("Digits")
				w.WriteHeader(http.StatusOK)
			}))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, signedRequest(t, target, tt.form, tt.sig))

			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK && gotDigits != "1122" {
				t.Errorf("form not available downstream, Digits = %q", gotDigits)
			}
		})
	}
}

func TestValidateSignatureRebuildsURLWithoutPublicURL(t *testing.T) {
	form := url.Values{"CallSid": {"CA100"}}
	sig := sign(testAuthToken, "https://screen.internal/voice/incoming", form)

	h := ValidateSignature(testAuthToken, "", discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := signedRequest(t, "/voice/incoming", form, sig)
	req.Host = "screen.internal"
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestValidateSignatureDisabledWithoutToken(t *testing.T) {
	h := ValidateSignature("", publicURL, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest(t, "/voice/incoming", url.Values{}, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestSignatureCheckedOnMountedRoutes(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.AuthToken = testAuthToken })

	form := callForm("+"+caller, "+"+screeningNumber)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, signedRequest(t, "/voice/incoming", form, ""))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unsigned webhook status = %d, want 403", rr.Code)
	}

	sig := sign(testAuthToken, publicURL+"/voice/incoming", form)
	rr = httptest.NewRecorder()
	ts.router.ServeHTTP(rr, signedRequest(t, "/voice/incoming", form, sig))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "<Gather") {
		t.Fatalf("signed webhook status = %d body %s", rr.Code, rr.Body.String())
	}
}
