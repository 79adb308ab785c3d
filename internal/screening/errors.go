package screening

import "errors"

var (
	// ErrUnknownTenant means no tenant could be resolved for the call.
	ErrUnknownTenant = errors.New("no tenant for inbound call")
	// ErrTenantInactive means the resolved tenant's account is disabled.
	ErrTenantInactive = errors.New("tenant inactive")
	// ErrBlockedCaller means the caller is inside an active block window.
	ErrBlockedCaller = errors.New("caller temporarily blocked")
	// ErrAuthenticationFailed means the submitted credentials did not match.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrRetriesExhausted means the caller used up the tenant's retry limit.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrSelfCallLoop means the platform's own number is calling itself.
	ErrSelfCallLoop = errors.New("self-call loop")
	// ErrNoInput means the caller submitted neither digits nor speech.
	ErrNoInput = errors.New("no input received")
	// ErrForwardLoop means the tenant forwards to the number being screened,
	// so bridging would re-enter the inbound webhook.
	ErrForwardLoop = errors.New("forward target loops back to screening number")
)

// Outcome names the decision taken for one webhook step. It is written to
// call logs and used as the metrics label.
type Outcome string

const (
	OutcomeUnknownTenant Outcome = "unknown_tenant"
	OutcomeInactive      Outcome = "inactive"
	OutcomeSelfCallLoop  Outcome = "self_call_loop"
	OutcomeBlocked       Outcome = "blocked"
	OutcomeBypass        Outcome = "bypass"
	OutcomePassThrough   Outcome = "passthrough"
	OutcomeChallenge     Outcome = "challenge"
	OutcomeRetry         Outcome = "retry"
	OutcomeConnected     Outcome = "connected"
	OutcomeVoicemail     Outcome = "voicemail"
	OutcomeExhausted     Outcome = "exhausted"
	OutcomeNoInput       Outcome = "no_input"
	OutcomeForwardLoop   Outcome = "forward_loop"
	OutcomeError         Outcome = "error"
)

// Outcomes lists every outcome in a stable order.
var Outcomes = []Outcome{
	OutcomeUnknownTenant, OutcomeInactive, OutcomeSelfCallLoop, OutcomeBlocked,
	OutcomeBypass, OutcomePassThrough, OutcomeChallenge, OutcomeRetry,
	OutcomeConnected, OutcomeVoicemail, OutcomeExhausted, OutcomeNoInput,
	OutcomeForwardLoop, OutcomeError,
}

// Result reports what a webhook step decided. Err carries the reason for
// non-happy outcomes and is already logged; callers only inspect it.
type Result struct {
	Outcome  Outcome
	TenantID int64
	Err      error
}
