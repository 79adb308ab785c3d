package screening

import "testing"

func TestNormalizeDigits(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+1 (617) 123-1213", "16171231213"},
		{"617.123.1213", "6171231213"},
		{"", ""},
		{"abc", ""},
		{"1122#", "1122"},
	}
	for _, tt := range tests {
		if got := NormalizeDigits(tt.in); got != tt.want {
			t.Errorf("NormalizeDigits(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSpeech(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Open Sesame", "open sesame"},
		{"  open,   sesame! ", "open sesame"},
		{"OPEN\tSESAME.", "open sesame"},
		{"blue_sky 42", "blue_sky 42"},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := NormalizeSpeech(tt.in); got != tt.want {
			t.Errorf("NormalizeSpeech(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatE164(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"6171231213", "+16171231213"},
		{"16171231213", "+16171231213"},
		{"447700900123", "+447700900123"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatE164(tt.in); got != tt.want {
			t.Errorf("FormatE164(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidPIN(t *testing.T) {
	for pin, want := range map[string]bool{
		"1122":  true,
		"0000":  true,
		"112":   false,
		"11223": false,
		"11a2":  false,
		"":      false,
	} {
		if got := ValidPIN(pin); got != want {
			t.Errorf("ValidPIN(%q) = %v, want %v", pin, got, want)
		}
	}
}

func TestMatchPIN(t *testing.T) {
	if !matchPIN("1122", "1122") {
		t.Error("identical pins should match")
	}
	if matchPIN("1123", "1122") {
		t.Error("different pins matched")
	}
	if matchPIN("112", "112") {
		t.Error("short pins must never match")
	}
}

func TestMatchPassphrase(t *testing.T) {
	if !matchPassphrase("Open, sesame!", "open sesame") {
		t.Error("punctuation and case should be ignored")
	}
	if matchPassphrase("open", "open sesame") {
		t.Error("partial phrase matched")
	}
	if matchPassphrase("", "") {
		t.Error("empty passphrase must not match")
	}
}

func TestSubmissionEmpty(t *testing.T) {
	if !(Submission{Digits: "#", Speech: "  "}).Empty() {
		t.Error("punctuation and whitespace should count as no input")
	}
	if (Submission{Speech: "hello"}).Empty() {
		t.Error("speech is input")
	}
}
