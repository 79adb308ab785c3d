package database

import (
	"context"
	"fmt"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

type voicemailRepo struct {
	db *DB
}

// NewVoicemailRepository creates a new VoicemailRepository.
func NewVoicemailRepository(db *DB) VoicemailRepository {
	return &voicemailRepo{db: db}
}

// Create stores a voicemail. A repeated callback for the same recording
// is ignored.
func (r *voicemailRepo) Create(ctx context.Context, m *models.VoicemailMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := r.db.conn().exec(ctx,
		`INSERT INTO voicemail_messages (tenant_id, caller_number, recording_sid, recording_url, duration_secs, transcription, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (recording_sid) DO NOTHING`,
		m.TenantID, m.CallerNumber, m.RecordingSID, m.RecordingURL, m.DurationSecs, m.Transcription, toMillis(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting voicemail message: %w", err)
	}
	return nil
}

// SetTranscription attaches transcription text to a stored recording.
func (r *voicemailRepo) SetTranscription(ctx context.Context, recordingSID, text string) (bool, error) {
	res, err := r.db.conn().exec(ctx,
		`UPDATE voicemail_messages SET transcription = ? WHERE recording_sid = ?`, text, recordingSID)
	if err != nil {
		return false, fmt.Errorf("updating voicemail transcription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByTenant returns a tenant's most recent voicemails.
func (r *voicemailRepo) ListByTenant(ctx context.Context, tenantID int64, limit int) ([]models.VoicemailMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.conn().query(ctx,
		`SELECT id, tenant_id, caller_number, recording_sid, recording_url, duration_secs, transcription, created_at
		 FROM voicemail_messages WHERE tenant_id = ?
		 ORDER BY created_at DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying voicemail messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.VoicemailMessage
	for rows.Next() {
		var m models.VoicemailMessage
		var created int64
		if err := rows.Scan(&m.ID, &m.TenantID, &m.CallerNumber, &m.RecordingSID, &m.RecordingURL,
			&m.DurationSecs, &m.Transcription, &created); err != nil {
			return nil, fmt.Errorf("scanning voicemail message row: %w", err)
		}
		m.CreatedAt = fromMillis(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
