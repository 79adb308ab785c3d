package models

import "time"

// Forwarding modes applied after a caller is admitted.
const (
	ForwardModeBridge    = "bridge"
	ForwardModeVoicemail = "voicemail"
)

// Trust entry sources.
const (
	TrustSourceAuto   = "auto"
	TrustSourceManual = "manual"
)

// Tenant is a subscriber whose real line sits behind a screening number.
type Tenant struct {
	ID                     int64
	ScreeningNumber        string // provider number callers dial, digits only
	OwnerLabel             string
	Email                  string
	ForwardTo              string // tenant's real line, digits only
	PIN                    string
	Passphrase             string
	RetryLimit             int
	ForwardMode            string // "bridge" | "voicemail"
	RateLimitWindowSeconds int
	RateLimitMaxAttempts   int
	RateLimitBlockMinutes  int
	Active                 bool
	PushToken              string // FCM registration token
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// RateLimitWindow returns the failure counting window.
func (t *Tenant) RateLimitWindow() time.Duration {
	return time.Duration(t.RateLimitWindowSeconds) * time.Second
}

// BlockDuration returns how long a caller stays blocked once the failure
// threshold is reached.
func (t *Tenant) BlockDuration() time.Duration {
	return time.Duration(t.RateLimitBlockMinutes) * time.Minute
}

// PoolNumber is a dedicated provider number that may be assigned to a tenant.
type PoolNumber struct {
	ID          int64
	PhoneNumber string
	TenantID    *int64
	AssignedAt  *time.Time
	CreatedAt   time.Time
}

// TrustEntry marks a caller as previously verified for a tenant.
type TrustEntry struct {
	ID           int64
	TenantID     int64
	CallerNumber string
	CustomPIN    string // empty means the tenant PIN applies
	AllowsVerbal bool
	Source       string // "auto" | "manual"
	CreatedAt    time.Time
}

// FailureRecord is one failed verification attempt.
type FailureRecord struct {
	ID           int64
	TenantID     int64
	CallerNumber string
	OccurredAt   time.Time
}

// BlockRecord is a temporary block of a caller for a tenant.
type BlockRecord struct {
	TenantID     int64
	CallerNumber string
	UnblockAt    time.Time
	CreatedAt    time.Time
}

// Remaining returns the time left on the block, never negative.
func (b *BlockRecord) Remaining(now time.Time) time.Duration {
	if d := b.UnblockAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// CallLog records the decision taken for one webhook step of a call.
type CallLog struct {
	ID           string // UUID
	CallSID      string
	TenantID     *int64
	CallerNumber string
	DialedNumber string
	Outcome      string
	Detail       string
	Attempts     int
	CreatedAt    time.Time
}

// VoicemailMessage is a recording left by a caller for a tenant.
type VoicemailMessage struct {
	ID            int64
	TenantID      int64
	CallerNumber  string
	RecordingSID  string
	RecordingURL  string
	DurationSecs  int
	Transcription string
	CreatedAt     time.Time
}

// AdminUser is an operator account for the management API.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
