package screening

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/callbunker/callbunker/internal/database"
	"github.com/callbunker/callbunker/internal/database/models"
)

// TrustStore reads and extends a tenant's trusted callers.
type TrustStore interface {
	Get(ctx context.Context, tenantID int64, caller string) (*models.TrustEntry, error)
	AddIfAbsent(ctx context.Context, e *models.TrustEntry) (bool, error)
}

// Ledger tracks failed attempts and blocks.
type Ledger interface {
	ActiveBlock(ctx context.Context, tenantID int64, caller string, now time.Time) (*models.BlockRecord, error)
	RecordFailure(ctx context.Context, tenantID int64, caller string, now time.Time, policy database.RateLimitPolicy) (database.FailureOutcome, error)
	ClearCaller(ctx context.Context, tenantID int64, caller string) error
}

// CallRecorder persists per-call decisions.
type CallRecorder interface {
	Create(ctx context.Context, l *models.CallLog) error
}

// Notifier is told about trust list and block changes. Implementations
// must return without waiting on delivery.
type Notifier interface {
	CallerTrusted(tenant *models.Tenant, caller string)
	CallerBlocked(tenant *models.Tenant, caller string, until time.Time)
}

const (
	defaultRingTimeout     = 30 * time.Second
	defaultRecordMaxLength = 120 * time.Second
	recordSilenceTimeout   = 30 * time.Second
)

// Verification methods recorded in call logs.
const (
	methodPIN               = "pin"
	methodPassphrase        = "passphrase"
	methodTrustedPassphrase = "trusted_passphrase"
)

// Config wires an Engine. CallLogs and Notifier are optional.
type Config struct {
	Router   *Router
	Trust    TrustStore
	Ledger   Ledger
	CallLogs CallRecorder
	Notifier Notifier

	// SystemNumbers are numbers owned by the platform; calls from them are
	// dropped to break forwarding loops.
	SystemNumbers []string
	// PassThroughCallers skip screening and are bridged directly, e.g.
	// carrier verification services that read out one-time codes.
	PassThroughCallers []string

	RingTimeout     time.Duration
	RecordMaxLength time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Engine runs the call-screening state machine. It holds no per-call
// state; everything a later webhook needs travels in ChallengeContext.
type Engine struct {
	router   *Router
	trust    TrustStore
	ledger   Ledger
	callLogs CallRecorder
	notifier Notifier

	systemNumbers map[string]bool
	passThrough   map[string]bool

	ringTimeout     time.Duration
	recordMaxLength time.Duration

	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		router:          cfg.Router,
		trust:           cfg.Trust,
		ledger:          cfg.Ledger,
		callLogs:        cfg.CallLogs,
		notifier:        cfg.Notifier,
		systemNumbers:   numberSet(cfg.SystemNumbers),
		passThrough:     numberSet(cfg.PassThroughCallers),
		ringTimeout:     cfg.RingTimeout,
		recordMaxLength: cfg.RecordMaxLength,
		now:             cfg.Now,
		logger:          cfg.Logger,
	}
	if e.ringTimeout <= 0 {
		e.ringTimeout = defaultRingTimeout
	}
	if e.recordMaxLength <= 0 {
		e.recordMaxLength = defaultRecordMaxLength
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("subsystem", "screening")
	return e
}

func numberSet(numbers []string) map[string]bool {
	set := make(map[string]bool, len(numbers))
	for _, n := range numbers {
		if d := NormalizeDigits(n); d != "" {
			set[d] = true
		}
	}
	return set
}

// HandleIncoming decides what happens when a call first arrives: reject it,
// admit a trusted caller, or issue the first challenge.
func (e *Engine) HandleIncoming(ctx context.Context, gw Gateway, call InboundCall) Result {
	caller := NormalizeDigits(call.From)
	log := e.logger.With("call_sid", call.CallSID, "caller", caller, "to", NormalizeDigits(call.To))

	if e.systemNumbers[caller] {
		return e.selfCallLoop(ctx, gw, call, log)
	}

	tenant, err := e.router.Resolve(ctx, call)
	if err != nil {
		return e.unresolved(ctx, gw, call, err, log)
	}
	log = log.With("tenant_id", tenant.ID)

	if e.passThrough[caller] {
		outcome, err := e.bridge(gw, tenant, call, "", msgPassThrough, log)
		if outcome == OutcomeConnected {
			outcome = OutcomePassThrough
		}
		log.Info("pass-through caller forwarded", "outcome", outcome)
		e.record(ctx, call, tenant, outcome, "", 0)
		return Result{Outcome: outcome, TenantID: tenant.ID, Err: err}
	}

	if res, blocked := e.rejectIfBlocked(ctx, gw, tenant, call, caller, 0, log); blocked {
		return res
	}

	entry, err := e.trust.Get(ctx, tenant.ID, caller)
	if err != nil {
		log.Error("trust lookup failed, challenging caller", "error", err)
		entry = nil
	}

	if entry != nil {
		// A trusted caller may still have failures from before they were
		// trusted; drop them so they cannot add up to a block later.
		if err := e.ledger.ClearCaller(ctx, tenant.ID, caller); err != nil {
			log.Warn("clearing ledger for trusted caller", "error", err)
		}
		outcome, err := e.complete(gw, tenant, call, caller, completeBypass, log)
		if outcome != OutcomeForwardLoop && outcome != OutcomeError {
			log.Info("trusted caller bypassed challenge", "completion", outcome)
			e.record(ctx, call, tenant, OutcomeBypass, string(outcome), 0)
			return Result{Outcome: OutcomeBypass, TenantID: tenant.ID, Err: err}
		}
		e.record(ctx, call, tenant, outcome, "bypass", 0)
		return Result{Outcome: outcome, TenantID: tenant.ID, Err: err}
	}

	cc := ChallengeContext{
		Attempts:       0,
		TenantID:       tenant.ID,
		To:             call.To,
		ForwardedFrom:  call.ForwardedFrom,
		OriginalCaller: caller,
	}
	gw.Challenge(ChallengeRequest{
		Context:        cc,
		Prompt:         challengePrompt(tenant.OwnerLabel),
		NoInputMessage: msgNoInput,
	})
	log.Info("caller challenged")
	e.record(ctx, call, tenant, OutcomeChallenge, "", 0)
	return Result{Outcome: OutcomeChallenge, TenantID: tenant.ID}
}

// HandleVerify evaluates the caller's answer to a challenge.
func (e *Engine) HandleVerify(ctx context.Context, gw Gateway, cc ChallengeContext, call InboundCall, sub Submission) Result {
	if call.To == "" {
		call.To = cc.To
	}
	if call.ForwardedFrom == "" {
		call.ForwardedFrom = cc.ForwardedFrom
	}
	caller := NormalizeDigits(call.From)
	if caller == "" {
		caller = NormalizeDigits(cc.OriginalCaller)
		call.From = caller
	}
	log := e.logger.With("call_sid", call.CallSID, "caller", caller, "attempts", cc.Attempts)

	if e.systemNumbers[caller] {
		return e.selfCallLoop(ctx, gw, call, log)
	}

	var tenant *models.Tenant
	var err error
	if cc.TenantID > 0 {
		tenant, err = e.router.Tenant(ctx, cc.TenantID)
	} else {
		tenant, err = e.router.Resolve(ctx, call)
	}
	if err != nil {
		return e.unresolved(ctx, gw, call, err, log)
	}
	log = log.With("tenant_id", tenant.ID)

	if res, blocked := e.rejectIfBlocked(ctx, gw, tenant, call, caller, cc.Attempts, log); blocked {
		return res
	}

	if sub.Empty() {
		gw.Say(msgNoInput)
		gw.Hangup()
		log.Info("no input submitted, ending call")
		e.record(ctx, call, tenant, OutcomeNoInput, "", cc.Attempts)
		return Result{Outcome: OutcomeNoInput, TenantID: tenant.ID, Err: ErrNoInput}
	}

	entry, err := e.trust.Get(ctx, tenant.ID, caller)
	if err != nil {
		log.Error("trust lookup failed, using tenant pin", "error", err)
		entry = nil
	}

	if method, ok := authenticate(tenant, entry, sub); ok {
		return e.admit(ctx, gw, tenant, call, caller, cc, sub, method, log)
	}
	return e.refuse(ctx, gw, tenant, call, caller, cc, log)
}

// authenticate checks DTMF first, then speech. A trust entry's custom PIN
// replaces the tenant PIN for that caller.
func authenticate(t *models.Tenant, entry *models.TrustEntry, sub Submission) (string, bool) {
	expected := t.PIN
	if entry != nil && entry.CustomPIN != "" {
		expected = entry.CustomPIN
	}

	if digits := NormalizeDigits(sub.Digits); digits != "" && matchPIN(digits, expected) {
		return methodPIN, true
	}

	if sub.Speech != "" && matchPassphrase(sub.Speech, t.Passphrase) {
		if entry != nil && entry.AllowsVerbal {
			return methodTrustedPassphrase, true
		}
		return methodPassphrase, true
	}

	return "", false
}

func (e *Engine) admit(ctx context.Context, gw Gateway, t *models.Tenant, call InboundCall, caller string, cc ChallengeContext, sub Submission, method string, log *slog.Logger) Result {
	if err := e.ledger.ClearCaller(ctx, t.ID, caller); err != nil {
		log.Error("clearing ledger after successful verification", "error", err)
	}

	e.autoTrust(ctx, t, caller, sub, method, log)

	outcome, err := e.complete(gw, t, call, caller, completeVerified, log)
	log.Info("caller verified", "method", method, "completion", outcome)
	e.record(ctx, call, t, outcome, method, cc.Attempts+1)
	return Result{Outcome: outcome, TenantID: t.ID, Err: err}
}

// autoTrust adds a verified caller to the trust list. A concurrent insert
// for the same caller is not an error.
func (e *Engine) autoTrust(ctx context.Context, t *models.Tenant, caller string, sub Submission, method string, log *slog.Logger) {
	if caller == "" {
		return
	}
	entry := &models.TrustEntry{
		TenantID:     t.ID,
		CallerNumber: caller,
		Source:       models.TrustSourceAuto,
	}
	if method == methodPIN {
		if d := NormalizeDigits(sub.Digits); d != t.PIN {
			entry.CustomPIN = d
		}
	}

	added, err := e.trust.AddIfAbsent(ctx, entry)
	if err != nil {
		log.Error("auto-trusting caller", "error", err)
		return
	}
	if !added {
		return
	}
	log.Info("caller added to trust list")
	if e.notifier != nil {
		e.notifier.CallerTrusted(t, caller)
	}
}

func (e *Engine) refuse(ctx context.Context, gw Gateway, t *models.Tenant, call InboundCall, caller string, cc ChallengeContext, log *slog.Logger) Result {
	now := e.now()
	policy := database.RateLimitPolicy{
		Window:      t.RateLimitWindow(),
		MaxAttempts: t.RateLimitMaxAttempts,
		BlockFor:    t.BlockDuration(),
	}
	out, err := e.ledger.RecordFailure(ctx, t.ID, caller, now, policy)
	switch {
	case err != nil:
		log.Error("recording failed attempt", "error", err)
	case out.Block != nil:
		log.Warn("caller blocked", "failures", out.Failures, "unblock_at", out.Block.UnblockAt)
		if e.notifier != nil {
			e.notifier.CallerBlocked(t, caller, out.Block.UnblockAt)
		}
	default:
		log.Info("verification failed", "failures_in_window", out.Failures)
	}

	next := cc.Attempts + 1
	if next >= t.RetryLimit {
		e.complete(gw, t, call, caller, completeExhausted, log)
		log.Info("retries exhausted, sending to voicemail")
		e.record(ctx, call, t, OutcomeExhausted, "", next)
		return Result{Outcome: OutcomeExhausted, TenantID: t.ID, Err: ErrRetriesExhausted}
	}

	retry := cc
	retry.Attempts = next
	retry.TenantID = t.ID
	retry.OriginalCaller = caller
	if retry.To == "" {
		retry.To = call.To
	}
	gw.Challenge(ChallengeRequest{
		Context:        retry,
		Prompt:         msgRetry,
		NoInputMessage: msgNoInput,
	})
	e.record(ctx, call, t, OutcomeRetry, "", next)
	return Result{Outcome: OutcomeRetry, TenantID: t.ID, Err: ErrAuthenticationFailed}
}

// rejectIfBlocked ends the call when the caller is inside a block window.
// A failed lookup lets the call continue to the challenge.
func (e *Engine) rejectIfBlocked(ctx context.Context, gw Gateway, t *models.Tenant, call InboundCall, caller string, attempts int, log *slog.Logger) (Result, bool) {
	now := e.now()
	b, err := e.ledger.ActiveBlock(ctx, t.ID, caller, now)
	if err != nil {
		log.Error("checking block, continuing", "error", err)
		return Result{}, false
	}
	if b == nil {
		return Result{}, false
	}

	minutes := int(math.Ceil(b.Remaining(now).Minutes()))
	gw.Say(blockedPrompt(minutes))
	gw.Hangup()
	log.Info("blocked caller rejected", "unblock_at", b.UnblockAt)
	e.record(ctx, call, t, OutcomeBlocked, "", attempts)
	return Result{Outcome: OutcomeBlocked, TenantID: t.ID, Err: ErrBlockedCaller}, true
}

func (e *Engine) selfCallLoop(ctx context.Context, gw Gateway, call InboundCall, log *slog.Logger) Result {
	log.Error("platform number is calling itself, dropping call", "error", ErrSelfCallLoop)
	gw.Hangup()
	e.record(ctx, call, nil, OutcomeSelfCallLoop, "", 0)
	return Result{Outcome: OutcomeSelfCallLoop, Err: ErrSelfCallLoop}
}

func (e *Engine) unresolved(ctx context.Context, gw Gateway, call InboundCall, err error, log *slog.Logger) Result {
	var outcome Outcome
	switch {
	case errors.Is(err, ErrUnknownTenant):
		log.Warn("no tenant for call", "error", err)
		gw.Say(msgUnassigned)
		outcome = OutcomeUnknownTenant
	case errors.Is(err, ErrTenantInactive):
		log.Info("call for inactive tenant", "error", err)
		gw.Say(msgInactive)
		outcome = OutcomeInactive
	default:
		log.Error("resolving tenant", "error", err)
		gw.Say(msgUnavailable)
		outcome = OutcomeError
	}
	gw.Hangup()
	e.record(ctx, call, nil, outcome, err.Error(), 0)
	return Result{Outcome: outcome, Err: err}
}

// record writes a call log entry. Failures are logged and otherwise ignored.
func (e *Engine) record(ctx context.Context, call InboundCall, t *models.Tenant, outcome Outcome, detail string, attempts int) {
	if e.callLogs == nil {
		return
	}
	l := &models.CallLog{
		CallSID:      call.CallSID,
		CallerNumber: NormalizeDigits(call.From),
		DialedNumber: NormalizeDigits(call.To),
		Outcome:      string(outcome),
		Detail:       detail,
		Attempts:     attempts,
		CreatedAt:    e.now(),
	}
	if t != nil {
		id := t.ID
		l.TenantID = &id
	}
	if err := e.callLogs.Create(ctx, l); err != nil {
		e.logger.Warn("writing call log", "call_sid", call.CallSID, "outcome", outcome, "error", err)
	}
}
