// Package voice serves the telephony provider's webhooks and renders the
// screening engine's decisions as voice markup.
package voice

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/callbunker/callbunker/internal/api/middleware"
	"github.com/callbunker/callbunker/internal/database/models"
	"github.com/callbunker/callbunker/internal/screening"
	"github.com/callbunker/callbunker/internal/twiml"
)

// Engine is the screening state machine.
type Engine interface {
	HandleIncoming(ctx context.Context, gw screening.Gateway, call screening.InboundCall) screening.Result
	HandleVerify(ctx context.Context, gw screening.Gateway, cc screening.ChallengeContext, call screening.InboundCall, sub screening.Submission) screening.Result
}

// VoicemailStore persists recordings and their transcriptions.
type VoicemailStore interface {
	Create(ctx context.Context, m *models.VoicemailMessage) error
	SetTranscription(ctx context.Context, recordingSID, text string) (bool, error)
}

// TenantLookup loads a tenant by ID.
type TenantLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Tenant, error)
}

// VoicemailNotifier is told about new recordings. It must not block.
type VoicemailNotifier interface {
	VoicemailReceived(t *models.Tenant, m *models.VoicemailMessage)
}

// Route family prefixes.
const (
	prefixSingle = "/voice"
	prefixMulti  = "/multi/voice"
)

const defaultWebhookTimeout = 5 * time.Second

// Config wires a Handler. Notifier is optional.
type Config struct {
	Engine     Engine
	Voicemails VoicemailStore
	Tenants    TenantLookup
	Notifier   VoicemailNotifier

	PublicURL      string
	AuthToken      string
	SayVoice       string
	GatherTimeout  time.Duration
	WebhookTimeout time.Duration
	RateLimiter    *middleware.IPRateLimiter

	Now    func() time.Time
	Logger *slog.Logger
}

// Handler serves both webhook route families.
type Handler struct {
	engine     Engine
	voicemails VoicemailStore
	tenants    TenantLookup
	notifier   VoicemailNotifier

	publicURL      string
	authToken      string
	sayVoice       string
	gatherTimeout  int
	webhookTimeout time.Duration
	limiter        *middleware.IPRateLimiter

	now    func() time.Time
	logger *slog.Logger
}

// NewHandler creates a Handler from cfg.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		engine:         cfg.Engine,
		voicemails:     cfg.Voicemails,
		tenants:        cfg.Tenants,
		notifier:       cfg.Notifier,
		publicURL:      strings.TrimRight(cfg.PublicURL, "/"),
		authToken:      cfg.AuthToken,
		sayVoice:       cfg.SayVoice,
		gatherTimeout:  seconds(cfg.GatherTimeout),
		webhookTimeout: cfg.WebhookTimeout,
		limiter:        cfg.RateLimiter,
		now:            cfg.Now,
		logger:         cfg.Logger,
	}
	if h.gatherTimeout <= 0 {
		h.gatherTimeout = 6
	}
	if h.webhookTimeout <= 0 {
		h.webhookTimeout = defaultWebhookTimeout
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("subsystem", "voice")
	return h
}

// family is one set of webhook routes. The multi-tenant family takes the
// dialed number from the path and pauses before the first challenge.
type family struct {
	h      *Handler
	prefix string
	multi  bool
}

// Mount registers the webhook routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RecoverWith(h.unavailable))
		if h.limiter != nil {
			r.Use(middleware.RateLimitWith(h.limiter, h.unavailable))
		}
		r.Use(ValidateSignature(h.authToken, h.publicURL, h.logger))

		r.Route(prefixSingle, func(r chi.Router) {
			f := &family{h: h, prefix: prefixSingle}
			r.HandleFunc("/incoming", f.incoming)
			f.common(r)
		})
		r.Route(prefixMulti, func(r chi.Router) {
			f := &family{h: h, prefix: prefixMulti, multi: true}
			r.HandleFunc("/incoming/{number}", f.incoming)
			f.common(r)
		})
	})
}

func (f *family) common(r chi.Router) {
	r.HandleFunc("/verify", f.verify)
	r.HandleFunc("/call_complete", f.h.callComplete)
	r.HandleFunc("/voicemail_complete", f.h.voicemailComplete)
	r.HandleFunc("/transcription", f.h.transcription)
}

func (f *family) gateway(resp *twiml.Response) *markupGateway {
	return &markupGateway{
		resp:          resp,
		base:          f.h.publicURL + f.prefix,
		voice:         f.h.sayVoice,
		gatherTimeout: f.h.gatherTimeout,
		pauseFirst:    f.multi,
	}
}

func (f *family) incoming(w http.ResponseWriter, r *http.Request) {
	h := f.h
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("unparseable incoming webhook", "error", err)
		h.unavailable(w, r)
		return
	}
	call := parseInboundCall(r)
	if f.multi {
		call.To = chi.URLParam(r, "number")
	}

	ctx, cancel := h.webhookContext(r)
	defer cancel()

	resp := twiml.New()
	res := h.engine.HandleIncoming(ctx, f.gateway(resp), call)
	h.finish(w, r, resp, res)
}

func (f *family) verify(w http.ResponseWriter, r *http.Request) {
	h := f.h
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("unparseable verify webhook", "error", err)
		h.unavailable(w, r)
		return
	}
	call := parseInboundCall(r)
	cc := screening.ChallengeContextFromQuery(r.URL.Query())
	if f.multi && cc.To != "" {
		// The provider reports the pool number it answered on as To; the
		// context holds the number the tenant was resolved from.
		call.To = cc.To
	}
	sub := screening.Submission{
		Digits: r.FormValue("Digits"),
		Speech: r.FormValue("SpeechResult"),
	}

	ctx, cancel := h.webhookContext(r)
	defer cancel()

	resp := twiml.New()
	res := h.engine.HandleVerify(ctx, f.gateway(resp), cc, call, sub)
	h.finish(w, r, resp, res)
}

// Dial outcomes reported by the provider in DialCallStatus.
var knownDialStatuses = map[string]bool{
	"completed": true,
	"answered":  true,
	"busy":      true,
	"no-answer": true,
	"failed":    true,
	"canceled":  true,
}

func (h *Handler) callComplete(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	status := r.FormValue("DialCallStatus")
	log := h.logger.With(
		"call_sid", r.FormValue("CallSid"),
		"tenant", r.URL.Query().Get("tenant"),
		"dial_status", status,
		"dial_duration", r.FormValue("DialCallDuration"),
	)
	if knownDialStatuses[status] {
		log.Info("forwarded call finished")
	} else {
		log.Warn("unexpected dial status")
	}
	h.write(w, r, twiml.New().Hangup())
}

func (h *Handler) voicemailComplete(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	ctx, cancel := h.webhookContext(r)
	defer cancel()

	tenantID, _ := strconv.ParseInt(r.URL.Query().Get("tenant"), 10, 64)
	sid := r.FormValue("RecordingSid")
	log := h.logger.With("call_sid", r.FormValue("CallSid"), "tenant_id", tenantID, "recording_sid", sid)

	if sid != "" && tenantID > 0 {
		duration, _ := strconv.Atoi(r.FormValue("RecordingDuration"))
		msg := &models.VoicemailMessage{
			TenantID:     tenantID,
			CallerNumber: screening.NormalizeDigits(r.FormValue("From")),
			RecordingSID: sid,
			RecordingURL: r.FormValue("RecordingUrl"),
			DurationSecs: duration,
			CreatedAt:    h.now(),
		}
		if err := h.voicemails.Create(ctx, msg); err != nil {
			log.Error("storing voicemail", "error", err)
		} else {
			log.Info("voicemail stored", "duration", duration)
			h.notifyVoicemail(ctx, msg, log)
		}
	} else {
		log.Warn("voicemail callback without recording")
	}

	h.write(w, r, twiml.New().Say(h.sayVoice, screening.VoicemailThanks).Hangup())
}

func (h *Handler) notifyVoicemail(ctx context.Context, msg *models.VoicemailMessage, log *slog.Logger) {
	if h.notifier == nil {
		return
	}
	t, err := h.tenants.GetByID(ctx, msg.TenantID)
	if err != nil {
		log.Warn("loading tenant for voicemail notification", "error", err)
		return
	}
	if t == nil {
		return
	}
	h.notifier.VoicemailReceived(t, msg)
}

func (h *Handler) transcription(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	ctx, cancel := h.webhookContext(r)
	defer cancel()

	sid := r.FormValue("RecordingSid")
	text := r.FormValue("TranscriptionText")
	log := h.logger.With("recording_sid", sid, "status", r.FormValue("TranscriptionStatus"))

	switch {
	case sid == "":
		log.Warn("transcription callback without recording")
	case text == "":
		log.Info("empty transcription")
	default:
		found, err := h.voicemails.SetTranscription(ctx, sid, text)
		switch {
		case err != nil:
			log.Error("storing transcription", "error", err)
		case !found:
			log.Warn("transcription for unknown recording")
		default:
			log.Info("transcription stored")
		}
	}

	h.write(w, r, twiml.New())
}

func (h *Handler) webhookContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.webhookTimeout)
}

// finish writes the engine's markup, falling back to a spoken apology when
// the engine produced nothing.
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, resp *twiml.Response, res screening.Result) {
	if resp.Empty() {
		h.logger.Error("screening produced no markup", "outcome", res.Outcome, "error", res.Err)
		resp.Say(h.sayVoice, screening.Unavailable).Hangup()
	}
	h.write(w, r, resp)
}

func (h *Handler) unavailable(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, twiml.New().Say(h.sayVoice, screening.Unavailable).Hangup())
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, resp *twiml.Response) {
	if err := twiml.Write(w, http.StatusOK, resp); err != nil {
		h.logger.Error("writing markup", "request_id", chimw.GetReqID(r.Context()), "error", err)
	}
}

// parseInboundCall reads the provider's call parameters from a parsed form.
func parseInboundCall(r *http.Request) screening.InboundCall {
	return screening.InboundCall{
		CallSID:       r.FormValue("CallSid"),
		From:          r.FormValue("From"),
		To:            r.FormValue("To"),
		ForwardedFrom: r.FormValue("ForwardedFrom"),
	}
}
