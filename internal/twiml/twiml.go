// Package twiml renders voice markup responses for the telephony provider's
// webhooks.
package twiml

import (
	"net/http"
	"strconv"

	twilioml "github.com/twilio/twilio-go/twiml"
)

// ContentType is the media type the provider expects for markup responses.
const ContentType = "application/xml"

// Verb is one instruction inside a Response.
type Verb interface {
	element() twilioml.Element
}

// Response is the root element returned from a voice webhook.
type Response struct {
	Verbs []Verb
}

// Say speaks text with a text-to-speech voice.
type Say struct {
	Voice string
	Text  string
}

// Pause waits silently for Length seconds.
type Pause struct {
	Length int
}

// Gather collects DTMF digits and/or speech and posts them to Action.
type Gather struct {
	Input         string
	Action        string
	Method        string
	NumDigits     int
	Timeout       int
	SpeechTimeout string
	Prompts       []Say
}

// Dial bridges the call to Number.
type Dial struct {
	Action       string
	Method       string
	CallerID     string
	Timeout      int
	HangupOnStar bool
	Number       Number
}

// Number is the dial target.
type Number struct {
	Value string
}

// Record captures a voicemail and posts the recording to Action.
type Record struct {
	Action             string
	Method             string
	Timeout            int
	MaxLength          int
	PlayBeep           bool
	Transcribe         bool
	TranscribeCallback string
}

// Hangup ends the call.
type Hangup struct{}

func intAttr(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func boolAttr(b bool) string {
	if !b {
		return ""
	}
	return "true"
}

func (v Say) element() twilioml.Element {
	return &twilioml.VoiceSay{Message: v.Text, Voice: v.Voice}
}

func (v Pause) element() twilioml.Element {
	return &twilioml.VoicePause{Length: intAttr(v.Length)}
}

// element always emits finishOnKey; an empty value disables the terminating
// key so "#" is never swallowed.
func (v Gather) element() twilioml.Element {
	prompts := make([]twilioml.Element, len(v.Prompts))
	for i, p := range v.Prompts {
		prompts[i] = p.element()
	}
	return &twilioml.VoiceGather{
		Input:              v.Input,
		Action:             v.Action,
		Method:             v.Method,
		NumDigits:          intAttr(v.NumDigits),
		Timeout:            intAttr(v.Timeout),
		SpeechTimeout:      v.SpeechTimeout,
		InnerElements:      prompts,
		OptionalAttributes: map[string]string{"finishOnKey": ""},
	}
}

func (v Dial) element() twilioml.Element {
	return &twilioml.VoiceDial{
		Action:        v.Action,
		Method:        v.Method,
		CallerId:      v.CallerID,
		Timeout:       intAttr(v.Timeout),
		HangupOnStar:  boolAttr(v.HangupOnStar),
		InnerElements: []twilioml.Element{&twilioml.VoiceNumber{PhoneNumber: v.Number.Value}},
	}
}

func (v Record) element() twilioml.Element {
	return &twilioml.VoiceRecord{
		Action:             v.Action,
		Method:             v.Method,
		Timeout:            intAttr(v.Timeout),
		MaxLength:          intAttr(v.MaxLength),
		PlayBeep:           boolAttr(v.PlayBeep),
		Transcribe:         boolAttr(v.Transcribe),
		TranscribeCallback: v.TranscribeCallback,
	}
}

func (Hangup) element() twilioml.Element {
	return &twilioml.VoiceHangup{}
}

// New returns an empty response.
func New() *Response {
	return &Response{}
}

// Append adds verbs in order.
func (r *Response) Append(v ...Verb) *Response {
	r.Verbs = append(r.Verbs, v...)
	return r
}

// Say appends a Say verb.
func (r *Response) Say(voice, text string) *Response {
	return r.Append(Say{Voice: voice, Text: text})
}

// Hangup appends a Hangup verb.
func (r *Response) Hangup() *Response {
	return r.Append(Hangup{})
}

// Empty reports whether no verbs have been added.
func (r *Response) Empty() bool {
	return len(r.Verbs) == 0
}

// Marshal renders the response as an XML document.
func (r *Response) Marshal() ([]byte, error) {
	elements := make([]twilioml.Element, len(r.Verbs))
	for i, v := range r.Verbs {
		elements[i] = v.element()
	}
	doc, err := twilioml.Voice(elements)
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

// Write marshals r and writes it with the given status code. The provider
// treats any non-2xx response as an application error, so callers normally
// pass http.StatusOK.
func Write(w http.ResponseWriter, status int, r *Response) error {
	body, err := r.Marshal()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}
