package screening

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// InboundCall carries the provider's webhook parameters for one call leg.
type InboundCall struct {
	CallSID       string
	From          string
	To            string
	ForwardedFrom string
}

// Submission is what the caller entered in response to a challenge.
type Submission struct {
	Digits string
	Speech string
}

// Empty reports whether the caller gave no usable input.
func (s Submission) Empty() bool {
	return NormalizeDigits(s.Digits) == "" && strings.TrimSpace(s.Speech) == ""
}

// ChallengeContext is the state that survives between the challenge prompt
// and the verification webhook. It travels in the challenge action URL, so
// the service keeps no per-call session.
type ChallengeContext struct {
	Attempts       int
	TenantID       int64
	To             string
	ForwardedFrom  string
	OriginalCaller string
}

// Query encodes the context as URL query parameters.
func (c ChallengeContext) Query() url.Values {
	v := url.Values{}
	v.Set("attempts", strconv.Itoa(c.Attempts))
	if c.TenantID > 0 {
		v.Set("tenant", strconv.FormatInt(c.TenantID, 10))
	}
	if c.To != "" {
		v.Set("to", c.To)
	}
	if c.ForwardedFrom != "" {
		v.Set("forwarded_from", c.ForwardedFrom)
	}
	if c.OriginalCaller != "" {
		v.Set("caller", c.OriginalCaller)
	}
	return v
}

// ChallengeContextFromQuery decodes a context written by Query. Malformed
// counters decode as zero; a negative attempt count is clamped to zero.
func ChallengeContextFromQuery(v url.Values) ChallengeContext {
	c := ChallengeContext{
		To:             v.Get("to"),
		ForwardedFrom:  v.Get("forwarded_from"),
		OriginalCaller: v.Get("caller"),
	}
	if n, err := strconv.Atoi(v.Get("attempts")); err == nil && n > 0 {
		c.Attempts = n
	}
	if id, err := strconv.ParseInt(v.Get("tenant"), 10, 64); err == nil && id > 0 {
		c.TenantID = id
	}
	return c
}

// ChallengeRequest asks the caller for a PIN or passphrase.
type ChallengeRequest struct {
	Context ChallengeContext
	Prompt  string
	// NoInputMessage is spoken before hanging up if the caller says nothing.
	NoInputMessage string
}

// BridgeRequest connects the caller to the tenant's real line.
type BridgeRequest struct {
	TenantID     int64
	Target       string // E.164
	CallerID     string // E.164 of the original caller; empty keeps the provider default
	RingTimeout  time.Duration
	HangupOnStar bool
}

// RecordRequest takes a voicemail for a tenant.
type RecordRequest struct {
	TenantID       int64
	SilenceTimeout time.Duration
	MaxLength      time.Duration
	Transcribe     bool
}

// Gateway renders screening decisions as provider directives for a single
// webhook response. Implementations are not shared between requests.
type Gateway interface {
	Say(text string)
	Challenge(req ChallengeRequest)
	Bridge(req BridgeRequest)
	Record(req RecordRequest)
	Hangup()
}
