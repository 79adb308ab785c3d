package screening

import (
	"errors"
	"log/slog"

	"github.com/callbunker/callbunker/internal/database/models"
)

type completion int

const (
	completeBypass completion = iota
	completeVerified
	completeExhausted
)

var errNoForwardTarget = errors.New("tenant has no forwarding target")

// complete routes an admitted or exhausted caller to the tenant's line or
// to voicemail. Exhausted callers always get voicemail.
func (e *Engine) complete(gw Gateway, t *models.Tenant, call InboundCall, caller string, kind completion, log *slog.Logger) (Outcome, error) {
	switch {
	case kind == completeExhausted:
		gw.Say(msgNotVerified)
		gw.Record(e.recordRequest(t))
		return OutcomeVoicemail, nil
	case t.ForwardMode == models.ForwardModeVoicemail:
		msg := msgLeaveMessage
		if kind == completeVerified {
			msg = msgVerifiedMessage
		}
		gw.Say(msg)
		gw.Record(e.recordRequest(t))
		return OutcomeVoicemail, nil
	}

	return e.bridge(gw, t, call, FormatE164(caller), msgConnecting, log)
}

// bridge dials the tenant's real line, refusing targets that would route
// back into the screening number.
func (e *Engine) bridge(gw Gateway, t *models.Tenant, call InboundCall, callerID, greeting string, log *slog.Logger) (Outcome, error) {
	target := NormalizeDigits(t.ForwardTo)
	if target == "" {
		log.Error("cannot bridge call", "error", errNoForwardTarget)
		gw.Say(msgUnavailable)
		gw.Hangup()
		return OutcomeError, errNoForwardTarget
	}
	if target == NormalizeDigits(t.ScreeningNumber) || target == NormalizeDigits(call.To) {
		log.Error("refusing to bridge", "forward_to", target, "error", ErrForwardLoop)
		gw.Say(msgForwardLoop)
		gw.Hangup()
		return OutcomeForwardLoop, ErrForwardLoop
	}

	gw.Say(greeting)
	gw.Bridge(BridgeRequest{
		TenantID:     t.ID,
		Target:       FormatE164(target),
		CallerID:     callerID,
		RingTimeout:  e.ringTimeout,
		HangupOnStar: true,
	})
	return OutcomeConnected, nil
}

func (e *Engine) recordRequest(t *models.Tenant) RecordRequest {
	return RecordRequest{
		TenantID:       t.ID,
		SilenceTimeout: recordSilenceTimeout,
		MaxLength:      e.recordMaxLength,
		Transcribe:     true,
	}
}
