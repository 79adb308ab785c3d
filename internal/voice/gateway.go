package voice

import (
	"net/url"
	"strconv"
	"time"

	"github.com/callbunker/callbunker/internal/screening"
	"github.com/callbunker/callbunker/internal/twiml"
)

// markupGateway renders screening decisions into a single markup response.
// One is created per webhook request.
type markupGateway struct {
	resp          *twiml.Response
	base          string // public URL plus route family prefix
	voice         string
	gatherTimeout int
	// pauseFirst inserts a short pause before the first challenge so the
	// caller hears the whole prompt after the provider answers.
	pauseFirst bool
}

var _ screening.Gateway = (*markupGateway)(nil)

func (g *markupGateway) Say(text string) {
	g.resp.Say(g.voice, text)
}

func (g *markupGateway) Challenge(req screening.ChallengeRequest) {
	if g.pauseFirst && req.Context.Attempts == 0 {
		g.resp.Append(twiml.Pause{Length: 1})
	}
	g.resp.Append(twiml.Gather{
		Input:         "dtmf speech",
		Action:        g.url("/verify", req.Context.Query()),
		Method:        "POST",
		NumDigits:     4,
		Timeout:       g.gatherTimeout,
		SpeechTimeout: "auto",
		Prompts:       []twiml.Say{{Voice: g.voice, Text: req.Prompt}},
	})
	// Reached only when the gather times out without input.
	if req.NoInputMessage != "" {
		g.Say(req.NoInputMessage)
	}
	g.Hangup()
}

func (g *markupGateway) Bridge(req screening.BridgeRequest) {
	g.resp.Append(twiml.Dial{
		Action:       g.url("/call_complete", tenantQuery(req.TenantID)),
		Method:       "POST",
		CallerID:     req.CallerID,
		Timeout:      seconds(req.RingTimeout),
		HangupOnStar: req.HangupOnStar,
		Number:       twiml.Number{Value: req.Target},
	})
}

func (g *markupGateway) Record(req screening.RecordRequest) {
	q := tenantQuery(req.TenantID)
	rec := twiml.Record{
		Action:    g.url("/voicemail_complete", q),
		Method:    "POST",
		Timeout:   seconds(req.SilenceTimeout),
		MaxLength: seconds(req.MaxLength),
		PlayBeep:  true,
	}
	if req.Transcribe {
		rec.Transcribe = true
		rec.TranscribeCallback = g.url("/transcription", q)
	}
	g.resp.Append(rec)
}

func (g *markupGateway) Hangup() {
	g.resp.Hangup()
}

func (g *markupGateway) url(path string, q url.Values) string {
	u := g.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func tenantQuery(id int64) url.Values {
	q := url.Values{}
	if id > 0 {
		q.Set("tenant", strconv.FormatInt(id, 10))
	}
	return q
}

func seconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}
