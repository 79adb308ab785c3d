package screening

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/callbunker/callbunker/internal/database"
	"github.com/callbunker/callbunker/internal/database/models"
)

// mockGateway records the directives the engine emits.
type mockGateway struct {
	said       []string
	challenges []ChallengeRequest
	bridges    []BridgeRequest
	records    []RecordRequest
	hungUp     bool
}

func (g *mockGateway) Say(text string)                { g.said = append(g.said, text) }
func (g *mockGateway) Challenge(req ChallengeRequest) { g.challenges = append(g.challenges, req) }
func (g *mockGateway) Bridge(req BridgeRequest)       { g.bridges = append(g.bridges, req) }
func (g *mockGateway) Record(req RecordRequest)       { g.records = append(g.records, req) }
func (g *mockGateway) Hangup()                        { g.hungUp = true }

func (g *mockGateway) saidContaining(sub string) bool {
	for _, s := range g.said {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var _ Gateway = (*mockGateway)(nil)

type mockNotifier struct {
	mu      sync.Mutex
	trusted []string
	blocked []string
}

func (n *mockNotifier) CallerTrusted(t *models.Tenant, caller string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trusted = append(n.trusted, caller)
}

func (n *mockNotifier) CallerBlocked(t *models.Tenant, caller string, until time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocked = append(n.blocked, caller)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const (
	screeningNumber = "15550001000"
	realLine        = "15559998888"
	caller          = "15551112222"
)

type harness struct {
	db       *database.DB
	engine   *Engine
	tenants  database.TenantRepository
	trust    database.TrustRepository
	ledger   database.LedgerRepository
	logs     database.CallLogRepository
	notifier *mockNotifier
	clock    *testClock
	tenant   *models.Tenant
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, mutate func(*models.Tenant)) *harness {
	t.Helper()
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := &harness{
		db:       db,
		tenants:  database.NewTenantRepository(db),
		trust:    database.NewTrustRepository(db),
		ledger:   database.NewLedgerRepository(db),
		logs:     database.NewCallLogRepository(db),
		notifier: &mockNotifier{},
		clock:    &testClock{t: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)},
	}

	h.tenant = &models.Tenant{
		ScreeningNumber:        screeningNumber,
		OwnerLabel:             "",
		ForwardTo:              realLine,
		PIN:                    "1122",
		Passphrase:             "open sesame",
		RetryLimit:             3,
		ForwardMode:            models.ForwardModeBridge,
		RateLimitWindowSeconds: 3600,
		RateLimitMaxAttempts:   5,
		RateLimitBlockMinutes:  60,
		Active:                 true,
	}
	if mutate != nil {
		mutate(h.tenant)
	}
	if err := h.tenants.Create(context.Background(), h.tenant); err != nil {
		t.Fatalf("creating tenant: %v", err)
	}

	logger := discardLogger()
	h.engine = NewEngine(Config{
		Router:             NewRouter(h.tenants, database.NewNumberPoolRepository(db), logger),
		Trust:              h.trust,
		Ledger:             h.ledger,
		CallLogs:           h.logs,
		Notifier:           h.notifier,
		SystemNumbers:      []string{"+1 (555) 000-0999"},
		PassThroughCallers: []string{"12024558888"},
		Now:                h.clock.now,
		Logger:             logger,
	})
	return h
}

func inbound() InboundCall {
	return InboundCall{CallSID: "CA100", From: "+" + caller, To: "+" + screeningNumber}
}

// challenge runs the incoming webhook and returns the issued context.
func (h *harness) challenge(t *testing.T) ChallengeContext {
	t.Helper()
	gw := &mockGateway{}
	res := h.engine.HandleIncoming(context.Background(), gw, inbound())
	if res.Outcome != OutcomeChallenge {
		t.Fatalf("HandleIncoming outcome = %s, want challenge", res.Outcome)
	}
	if len(gw.challenges) != 1 {
		t.Fatalf("got %d challenges, want 1", len(gw.challenges))
	}
	return gw.challenges[0].Context
}

func (h *harness) verify(t *testing.T, cc ChallengeContext, sub Submission) (*mockGateway, Result) {
	t.Helper()
	gw := &mockGateway{}
	res := h.engine.HandleVerify(context.Background(), gw, cc, inbound(), sub)
	return gw, res
}

func (h *harness) trusted(t *testing.T) *models.TrustEntry {
	t.Helper()
	e, err := h.trust.Get(context.Background(), h.tenant.ID, caller)
	if err != nil {
		t.Fatalf("trust lookup: %v", err)
	}
	return e
}

func (h *harness) failures(t *testing.T) int {
	t.Helper()
	n, err := h.ledger.CountFailures(context.Background(), h.tenant.ID, caller, time.Time{})
	if err != nil {
		t.Fatalf("counting failures: %v", err)
	}
	return n
}

func TestIncomingChallengesNewCaller(t *testing.T) {
	h := newHarness(t, nil)

	cc := h.challenge(t)
	if cc.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", cc.Attempts)
	}
	if cc.TenantID != h.tenant.ID {
		t.Errorf("TenantID = %d, want %d", cc.TenantID, h.tenant.ID)
	}
	if cc.OriginalCaller != caller {
		t.Errorf("OriginalCaller = %q, want %q", cc.OriginalCaller, caller)
	}
}

func TestIncomingPersonalisedGreeting(t *testing.T) {
	h := newHarness(t, func(tn *models.Tenant) { tn.OwnerLabel = "Dana" })

	gw := &mockGateway{}
	h.engine.HandleIncoming(context.Background(), gw, inbound())
	if len(gw.challenges) != 1 {
		t.Fatal("expected a challenge")
	}
	if p := gw.challenges[0].Prompt; !strings.HasPrefix(p, "Hello, you've reached Dana's call screening service.") {
		t.Errorf("Prompt = %q", p)
	}
	if gw.challenges[0].NoInputMessage != msgNoInput {
		t.Errorf("NoInputMessage = %q", gw.challenges[0].NoInputMessage)
	}
}

func TestIncomingUnknownTenant(t *testing.T) {
	h := newHarness(t, nil)

	gw := &mockGateway{}
	res := h.engine.HandleIncoming(context.Background(), gw, InboundCall{From: "+" + caller, To: "+15550007777"})
	if res.Outcome != OutcomeUnknownTenant || !errors.Is(res.Err, ErrUnknownTenant) {
		t.Fatalf("result = %+v, want unknown tenant", res)
	}
	if len(gw.challenges) != 0 {
		t.Error("unknown tenant must not be challenged")
	}
	if !gw.hungUp || !gw.saidContaining("not currently assigned") {
		t.Errorf("expected setup message and hangup, said %v", gw.said)
	}
}

func TestIncomingInactiveTenant(t *testing.T) {
	h := newHarness(t, func(tn *models.Tenant) { tn.Active = false })

	gw := &mockGateway{}
	res := h.engine.HandleIncoming(context.Background(), gw, inbound())
	if res.Outcome != OutcomeInactive || !errors.Is(res.Err, ErrTenantInactive) {
		t.Fatalf("result = %+v, want inactive", res)
	}
	if !gw.hungUp || len(gw.challenges) != 0 {
		t.Error("inactive tenant should hang up without a challenge")
	}
}

func TestSelfCallLoopDropped(t *testing.T) {
	h := newHarness(t, nil)

	gw := &mockGateway{}
	call := InboundCall{From: "+15550000999", To: "+" + screeningNumber}
	res := h.engine.HandleIncoming(context.Background(), gw, call)
	if res.Outcome != OutcomeSelfCallLoop || !errors.Is(res.Err, ErrSelfCallLoop) {
		t.Fatalf("result = %+v, want self-call loop", res)
	}
	if !gw.hungUp || len(gw.challenges) != 0 || len(gw.bridges) != 0 {
		t.Errorf("self-call loop should only hang up: %+v", gw)
	}
}

func TestVerifyPINBridgesAndTrustsCaller(t *testing.T) {
	h := newHarness(t, nil)
	cc := h.challenge(t)

	gw, res := h.verify(t, cc, Submission{Digits: "1122"})
	if res.Outcome != OutcomeConnected || res.Err != nil {
		t.Fatalf("result = %+v, want connected", res)
	}
	if len(gw.bridges) != 1 {
		t.Fatalf("got %d bridges, want 1", len(gw.bridges))
	}
	b := gw.bridges[0]
	if b.Target != "+"+realLine {
		t.Errorf("Target = %q", b.Target)
	}
	if b.CallerID != "+"+caller {
		t.Errorf("CallerID = %q, want original caller", b.CallerID)
	}
	if !b.HangupOnStar || b.RingTimeout != 30*time.Second {
		t.Errorf("bridge options = %+v", b)
	}
	if !gw.saidContaining("Connecting your call") {
		t.Errorf("said %v", gw.said)
	}

	entry := h.trusted(t)
	if entry == nil {
		t.Fatal("caller was not auto-trusted")
	}
	if entry.CustomPIN != "" || entry.Source != models.TrustSourceAuto {
		t.Errorf("trust entry = %+v, want auto entry without custom pin", entry)
	}
	if len(h.notifier.trusted) != 1 {
		t.Errorf("CallerTrusted notifications = %d, want 1", len(h.notifier.trusted))
	}
}

func TestTrustedCallerBypassesChallenge(t *testing.T) {
	h := newHarness(t, nil)
	h.trust.AddIfAbsent(context.Background(), &models.TrustEntry{TenantID: h.tenant.ID, CallerNumber: caller})

	gw := &mockGateway{}
	res := h.engine.HandleIncoming(context.Background(), gw, inbound())
	if res.Outcome != OutcomeBypass {
		t.Fatalf("outcome = %s, want bypass", res.Outcome)
	}
	if len(gw.challenges) != 0 {
		t.Error("trusted caller was challenged")
	}
	if len(gw.bridges) != 1 {
		t.Errorf("trusted caller not bridged")
	}
}

func TestLegacyTrustEntryBypasses(t *testing.T) {
	h := newHarness(t, nil)
	h.trust.AddIfAbsent(context.Background(), &models.TrustEntry{TenantID: h.tenant.ID, CallerNumber: "+" + caller})

	gw := &mockGateway{}
	if res := h.engine.HandleIncoming(context.Background(), gw, inbound()); res.Outcome != OutcomeBypass {
		t.Fatalf("outcome = %s, want bypass", res.Outcome)
	}
}

func TestRetryThenPassphrase(t *testing.T) {
	h := newHarness(t, nil)
	cc := h.challenge(t)

	gw, res := h.verify(t, cc, Submission{Digits: "9999"})
	if res.Outcome != OutcomeRetry || !errors.Is(res.Err, ErrAuthenticationFailed) {
		t.Fatalf("first attempt = %+v, want retry", res)
	}
	if len(gw.challenges) != 1 {
		t.Fatal("retry should re-challenge")
	}
	retry := gw.challenges[0]
	if retry.Context.Attempts != 1 || retry.Prompt != msgRetry {
		t.Errorf("retry challenge = %+v", retry)
	}
	if h.failures(t) != 1 {
		t.Errorf("failures = %d, want 1", h.failures(t))
	}

	gw, res = h.verify(t, retry.Context, Submission{Speech: "Open, Sesame!"})
	if res.Outcome != OutcomeConnected {
		t.Fatalf("second attempt = %+v, want connected", res)
	}
	if len(gw.bridges) != 1 {
		t.Error("verified caller not bridged")
	}
	if h.trusted(t) == nil {
		t.Error("caller not trusted after passphrase")
	}
	if h.failures(t) != 0 {
		t.Errorf("failures after success = %d, want 0", h.failures(t))
	}
}

func TestExhaustedRoutesToVoicemail(t *testing.T) {
	for _, mode := range []string{models.ForwardModeBridge, models.ForwardModeVoicemail} {
		t.Run(mode, func(t *testing.T) {
			h := newHarness(t, func(tn *models.Tenant) { tn.ForwardMode = mode })
			cc := h.challenge(t)

			var gw *mockGateway
			var res Result
			for i := 0; i < 3; i++ {
				gw, res = h.verify(t, cc, Submission{Digits: "0000"})
				if i < 2 {
					if res.Outcome != OutcomeRetry {
						t.Fatalf("attempt %d outcome = %s, want retry", i+1, res.Outcome)
					}
					cc = gw.challenges[0].Context
				}
			}

			if res.Outcome != OutcomeExhausted || !errors.Is(res.Err, ErrRetriesExhausted) {
				t.Fatalf("final outcome = %+v, want exhausted", res)
			}
			if len(gw.bridges) != 0 {
				t.Error("exhausted caller must never be bridged")
			}
			if len(gw.records) != 1 {
				t.Fatalf("exhausted caller not sent to voicemail")
			}
			if r := gw.records[0]; !r.Transcribe || r.MaxLength != 120*time.Second || r.TenantID != h.tenant.ID {
				t.Errorf("record request = %+v", r)
			}
			if !gw.saidContaining("could not be verified") {
				t.Errorf("said %v", gw.said)
			}
			if h.trusted(t) != nil {
				t.Error("failed caller must not be trusted")
			}
		})
	}
}

func TestVoicemailModeAfterVerification(t *testing.T) {
	h := newHarness(t, func(tn *models.Tenant) { tn.ForwardMode = models.ForwardModeVoicemail })
	cc := h.challenge(t)

	gw, res := h.verify(t, cc, Submission{Digits: "1122"})
	if res.Outcome != OutcomeVoicemail {
		t.Fatalf("outcome = %s, want voicemail", res.Outcome)
	}
	if len(gw.bridges) != 0 || len(gw.records) != 1 {
		t.Errorf("voicemail mode should record, not bridge: %+v", gw)
	}
	if !gw.saidContaining("Thank you for verification") {
		t.Errorf("said %v", gw.said)
	}
}

func TestBlockAfterThresholdAndExpiry(t *testing.T) {
	h := newHarness(t, func(tn *models.Tenant) {
		tn.RetryLimit = 10
		tn.RateLimitMaxAttempts = 2
		tn.RateLimitBlockMinutes = 15
	})
	cc := h.challenge(t)

	gw, _ := h.verify(t, cc, Submission{Digits: "0000"})
	cc = gw.challenges[0].Context
	h.clock.advance(time.Minute)
	h.verify(t, cc, Submission{Digits: "0000"})

	if len(h.notifier.blocked) != 1 {
		t.Fatalf("CallerBlocked notifications = %d, want 1", len(h.notifier.blocked))
	}

	// Even the right PIN is refused while blocked, and no failure is added.
	h.clock.advance(time.Minute)
	gw, res := h.verify(t, cc, Submission{Digits: "1122"})
	if res.Outcome != OutcomeBlocked || !errors.Is(res.Err, ErrBlockedCaller) {
		t.Fatalf("outcome = %+v, want blocked", res)
	}
	if !gw.hungUp || !gw.saidContaining("14 more minutes") {
		t.Errorf("block notice = %v", gw.said)
	}
	if h.failures(t) != 2 {
		t.Errorf("failures = %d, want 2", h.failures(t))
	}

	gw = &mockGateway{}
	if res := h.engine.HandleIncoming(context.Background(), gw, inbound()); res.Outcome != OutcomeBlocked {
		t.Fatalf("new call while blocked = %s, want blocked", res.Outcome)
	}

	h.clock.advance(14 * time.Minute)
	h.challenge(t)
}

func TestNoInputDoesNotCountAsFailure(t *testing.T) {
	h := newHarness(t, nil)
	cc := h.challenge(t)

	gw, res := h.verify(t, cc, Submission{Digits: "", Speech: "   "})
	if res.Outcome != OutcomeNoInput || !errors.Is(res.Err, ErrNoInput) {
		t.Fatalf("outcome = %+v, want no input", res)
	}
	if !gw.hungUp || len(gw.challenges) != 0 {
		t.Error("no input should end the call")
	}
	if h.failures(t) != 0 {
		t.Errorf("failures = %d, want 0", h.failures(t))
	}
}

func TestCustomPINOverridesTenantPIN(t *testing.T) {
	h := newHarness(t, nil)
	h.trust.AddIfAbsent(context.Background(), &models.TrustEntry{
		TenantID: h.tenant.ID, CallerNumber: caller, CustomPIN: "4321", Source: models.TrustSourceManual,
	})
	cc := ChallengeContext{TenantID: h.tenant.ID, To: "+" + screeningNumber}

	_, res := h.verify(t, cc, Submission{Digits: "1122"})
	if res.Outcome != OutcomeRetry {
		t.Fatalf("tenant pin for custom-pin caller = %s, want retry", res.Outcome)
	}

	_, res = h.verify(t, cc, Submission{Digits: "4321"})
	if res.Outcome != OutcomeConnected {
		t.Fatalf("custom pin = %s, want connected", res.Outcome)
	}
}

func TestPassphraseMethodRecorded(t *testing.T) {
	tests := []struct {
		name       string
		entry      *models.TrustEntry
		wantMethod string
	}{
		{"untrusted caller", nil, methodPassphrase},
		{"verbal trust entry", &models.TrustEntry{CallerNumber: caller, CustomPIN: "4321", AllowsVerbal: true, Source: models.TrustSourceManual}, methodTrustedPassphrase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			ctx := context.Background()
			if tt.entry != nil {
				tt.entry.TenantID = h.tenant.ID
				if _, err := h.trust.AddIfAbsent(ctx, tt.entry); err != nil {
					t.Fatal(err)
				}
			}
			cc := ChallengeContext{TenantID: h.tenant.ID, To: "+" + screeningNumber}

			gw, res := h.verify(t, cc, Submission{Speech: "open sesame"})
			if res.Outcome != OutcomeConnected || res.Err != nil {
				t.Fatalf("result = %+v, want connected", res)
			}
			if len(gw.bridges) != 1 {
				t.Fatalf("got %d bridges, want 1", len(gw.bridges))
			}

			logs, err := h.logs.ListByTenant(ctx, h.tenant.ID, 10)
			if err != nil {
				t.Fatal(err)
			}
			var detail string
			for _, l := range logs {
				if l.Outcome == string(OutcomeConnected) {
					detail = l.Detail
				}
			}
			if detail != tt.wantMethod {
				t.Errorf("recorded method = %q, want %q", detail, tt.wantMethod)
			}

			if tt.entry != nil {
				got := h.trusted(t)
				if got == nil || got.CustomPIN != "4321" || got.Source != models.TrustSourceManual {
					t.Errorf("manual entry changed by verification: %+v", got)
				}
			}
		})
	}
}

func TestDTMFCheckedBeforeSpeech(t *testing.T) {
	tests := []struct {
		name string
		sub  Submission
		want Outcome
	}{
		{"pin only", Submission{Digits: "1122"}, OutcomeConnected},
		{"pin with wrong speech", Submission{Digits: "1122", Speech: "banana"}, OutcomeConnected},
		{"wrong pin with passphrase", Submission{Digits: "9", Speech: "open sesame"}, OutcomeConnected},
		{"short pin", Submission{Digits: "112"}, OutcomeRetry},
		{"long pin", Submission{Digits: "11223"}, OutcomeRetry},
		{"passphrase substring", Submission{Speech: "open"}, OutcomeRetry},
		{"pin spoken", Submission{Speech: "1122"}, OutcomeRetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			cc := h.challenge(t)
			if _, res := h.verify(t, cc, tt.sub); res.Outcome != tt.want {
				t.Errorf("outcome = %s, want %s", res.Outcome, tt.want)
			}
		})
	}
}

func TestForwardLoopGuard(t *testing.T) {
	h := newHarness(t, func(tn *models.Tenant) { tn.ForwardTo = "+" + screeningNumber })
	cc := h.challenge(t)

	gw, res := h.verify(t, cc, Submission{Digits: "1122"})
	if res.Outcome != OutcomeForwardLoop || !errors.Is(res.Err, ErrForwardLoop) {
		t.Fatalf("outcome = %+v, want forward loop", res)
	}
	if len(gw.bridges) != 0 || !gw.hungUp {
		t.Errorf("looping target must not be dialed: %+v", gw)
	}
}

func TestPassThroughCallerSkipsScreening(t *testing.T) {
	h := newHarness(t, nil)

	gw := &mockGateway{}
	res := h.engine.HandleIncoming(context.Background(), gw, InboundCall{From: "+12024558888", To: "+" + screeningNumber})
	if res.Outcome != OutcomePassThrough {
		t.Fatalf("outcome = %s, want passthrough", res.Outcome)
	}
	if len(gw.challenges) != 0 || len(gw.bridges) != 1 {
		t.Fatalf("pass-through should bridge directly: %+v", gw)
	}
	if gw.bridges[0].CallerID != "" {
		t.Errorf("pass-through CallerID = %q, want provider default", gw.bridges[0].CallerID)
	}
}

func TestVerifyResolvesTenantWithoutContextID(t *testing.T) {
	h := newHarness(t, nil)
	cc := ChallengeContext{Attempts: 0, To: "+" + screeningNumber}

	gw := &mockGateway{}
	res := h.engine.HandleVerify(context.Background(), gw, cc, InboundCall{From: "+" + caller}, Submission{Digits: "1122"})
	if res.Outcome != OutcomeConnected || res.TenantID != h.tenant.ID {
		t.Fatalf("result = %+v", res)
	}
}

func TestConcurrentSuccessTrustsOnce(t *testing.T) {
	h := newHarness(t, nil)
	cc := ChallengeContext{TenantID: h.tenant.ID, To: "+" + screeningNumber}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.engine.HandleVerify(context.Background(), &mockGateway{}, cc, inbound(), Submission{Digits: "1122"})
		}()
	}
	wg.Wait()

	entries, err := h.trust.List(context.Background(), h.tenant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("trust entries = %d, want 1", len(entries))
	}
	if len(h.notifier.trusted) != 1 {
		t.Errorf("CallerTrusted notifications = %d, want 1", len(h.notifier.trusted))
	}
}

func TestCallLogsWritten(t *testing.T) {
	h := newHarness(t, nil)
	cc := h.challenge(t)
	h.verify(t, cc, Submission{Digits: "1122"})

	counts, err := h.logs.CountByOutcome(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts[string(OutcomeChallenge)] != 1 || counts[string(OutcomeConnected)] != 1 {
		t.Errorf("call log counts = %v", counts)
	}
}

// failingLedger simulates a store outage.
type failingLedger struct{}

func (failingLedger) ActiveBlock(context.Context, int64, string, time.Time) (*models.BlockRecord, error) {
	return nil, errors.New("disk I/O error")
}

func (failingLedger) RecordFailure(context.Context, int64, string, time.Time, database.RateLimitPolicy) (database.FailureOutcome, error) {
	return database.FailureOutcome{}, errors.New("disk I/O error")
}

func (failingLedger) ClearCaller(context.Context, int64, string) error {
	return errors.New("disk I/O error")
}

func TestLedgerOutageDoesNotAbortCall(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.ledger = failingLedger{}

	cc := h.challenge(t)
	gw, res := h.verify(t, cc, Submission{Digits: "0000"})
	if res.Outcome != OutcomeRetry || len(gw.challenges) != 1 {
		t.Fatalf("wrong pin during outage = %+v, want retry", res)
	}

	gw, res = h.verify(t, gw.challenges[0].Context, Submission{Digits: "1122"})
	if res.Outcome != OutcomeConnected || len(gw.bridges) != 1 {
		t.Fatalf("right pin during outage = %+v, want connected", res)
	}
}
