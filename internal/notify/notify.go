// Package notify delivers tenant and operator notifications by email and
// push without blocking call handling.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

// Mailer sends a plain-text email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Pusher sends a push notification to a device token.
type Pusher interface {
	SendPush(ctx context.Context, token, title, body string, data map[string]string) error
}

// Event types carried in push data payloads.
const (
	EventCallerTrusted     = "caller_trusted"
	EventCallerBlocked     = "caller_blocked"
	EventVoicemailReceived = "voicemail_received"
	EventTenantDeleted     = "tenant_deleted"
)

type notification struct {
	kind     string
	tenantID int64
	email    string
	token    string
	subject  string
	body     string
	data     map[string]string
}

// Config configures a Dispatcher. Mailer and Pusher may be nil, which
// disables that channel.
type Config struct {
	Mailer        Mailer
	Pusher        Pusher
	OperatorEmail string
	Workers       int
	QueueSize     int
	SendTimeout   time.Duration
	Logger        *slog.Logger
}

// Dispatcher queues notifications and delivers them on a fixed pool of
// workers. A full queue drops the notification.
type Dispatcher struct {
	mailer        Mailer
	pusher        Pusher
	operatorEmail string
	sendTimeout   time.Duration
	workers       int
	logger        *slog.Logger

	queue chan notification
	wg    sync.WaitGroup

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
	skipped atomic.Uint64
}

// NewDispatcher creates a Dispatcher. Call Start to begin delivery.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		mailer:        cfg.Mailer,
		pusher:        cfg.Pusher,
		operatorEmail: cfg.OperatorEmail,
		sendTimeout:   cfg.SendTimeout,
		workers:       cfg.Workers,
		logger:        cfg.Logger.With("subsystem", "notify"),
		queue:         make(chan notification, cfg.QueueSize),
	}
}

// Start launches the workers. They exit when ctx is cancelled, after
// finishing the notification in hand.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Sent returns the number of notifications delivered on at least one channel.
func (d *Dispatcher) Sent() uint64 { return d.sent.Load() }

// Failed returns the number of notifications no channel could deliver.
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }

// Dropped returns the number of notifications discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Skipped returns the number of notifications whose recipient has no
// address on a configured channel.
func (d *Dispatcher) Skipped() uint64 { return d.skipped.Load() }

// CallerTrusted tells the tenant a caller was added to their trust list.
func (d *Dispatcher) CallerTrusted(t *models.Tenant, caller string) {
	d.enqueue(notification{
		kind:     EventCallerTrusted,
		tenantID: t.ID,
		email:    t.Email,
		token:    t.PushToken,
		subject:  "New trusted caller " + caller,
		body: fmt.Sprintf("%s passed screening on %s and will now be connected without a challenge.\n",
			caller, t.ScreeningNumber),
		data: map[string]string{"type": EventCallerTrusted, "caller": caller},
	})
}

// CallerBlocked tells the tenant a caller hit the failure threshold.
func (d *Dispatcher) CallerBlocked(t *models.Tenant, caller string, until time.Time) {
	d.enqueue(notification{
		kind:     EventCallerBlocked,
		tenantID: t.ID,
		email:    t.Email,
		token:    t.PushToken,
		subject:  "Caller blocked: " + caller,
		body: fmt.Sprintf("%s failed verification on %s too many times and is blocked until %s.\n",
			caller, t.ScreeningNumber, until.UTC().Format(time.RFC1123)),
		data: map[string]string{
			"type":       EventCallerBlocked,
			"caller":     caller,
			"unblock_at": until.UTC().Format(time.RFC3339),
		},
	})
}

// VoicemailReceived tells the tenant a message was recorded.
func (d *Dispatcher) VoicemailReceived(t *models.Tenant, m *models.VoicemailMessage) {
	body := fmt.Sprintf("From: %s\nDate: %s\nDuration: %s\n",
		m.CallerNumber, m.CreatedAt.UTC().Format("Mon, 02 Jan 2006 3:04 PM MST"), formatDuration(m.DurationSecs))
	if m.RecordingURL != "" {
		body += "Recording: " + m.RecordingURL + "\n"
	}
	d.enqueue(notification{
		kind:     EventVoicemailReceived,
		tenantID: t.ID,
		email:    t.Email,
		token:    t.PushToken,
		subject:  "New voicemail from " + m.CallerNumber,
		body:     body,
		data: map[string]string{
			"type":          EventVoicemailReceived,
			"caller":        m.CallerNumber,
			"recording_sid": m.RecordingSID,
		},
	})
}

// TenantDeleted tells the operator a tenant was removed.
func (d *Dispatcher) TenantDeleted(t *models.Tenant) {
	if d.operatorEmail == "" {
		return
	}
	d.enqueue(notification{
		kind:     EventTenantDeleted,
		tenantID: t.ID,
		email:    d.operatorEmail,
		subject:  "Tenant deleted: " + t.ScreeningNumber,
		body: fmt.Sprintf("Tenant %d (%s, forwarding to %s) was deleted.\n",
			t.ID, t.ScreeningNumber, t.ForwardTo),
	})
}

func (d *Dispatcher) enqueue(n notification) {
	if n.email == "" && n.token == "" {
		return
	}
	if d.mailer == nil {
		n.email = ""
	}
	if d.pusher == nil {
		n.token = ""
	}
	if n.email == "" && n.token == "" {
		d.skipped.Add(1)
		d.logger.Debug("no configured channel reaches recipient", "type", n.kind, "tenant_id", n.tenantID)
		return
	}
	select {
	case d.queue <- n:
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification queue full, dropping", "type", n.kind, "tenant_id", n.tenantID)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, n notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.sendTimeout)
	defer cancel()

	log := d.logger.With("type", n.kind, "tenant_id", n.tenantID)
	delivered := false

	if n.email != "" && d.mailer != nil {
		if err := d.mailer.SendEmail(ctx, n.email, n.subject, n.body); err != nil {
			log.Error("sending notification email", "error", err)
		} else {
			delivered = true
		}
	}

	if n.token != "" && d.pusher != nil {
		if err := d.pusher.SendPush(ctx, n.token, n.subject, n.body, n.data); err != nil {
			log.Error("sending push notification", "error", err)
		} else {
			delivered = true
		}
	}

	if delivered {
		d.sent.Add(1)
	} else {
		d.failed.Add(1)
	}
}

// formatDuration converts seconds into a human-readable string like "2m 15s".
func formatDuration(secs int) string {
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	m := secs / 60
	s := secs % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
