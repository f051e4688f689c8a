package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-recall/internal/database"
)

// ConversationRepository provides PostgreSQL-backed transcript logs.
type ConversationRepository struct {
	pool *Pool
}

// NewConversationRepository creates a new PostgreSQL conversation repository.
func NewConversationRepository(pool *Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// AppendEntry appends one entry to the (patient, person) log. The upsert keeps the
// operation atomic: concurrent appends to the same pair never lose entries.
func (r *ConversationRepository) AppendEntry(ctx context.Context, patientID, knownPersonID string, entry database.TranscriptEntry) error {
	payload, err := json.Marshal([]database.TranscriptEntry{entry})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO conversations (patient_id, known_person_id, entries, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW(), NOW())
		ON CONFLICT (patient_id, known_person_id) DO UPDATE SET
			entries = conversations.entries || EXCLUDED.entries,
			updated_at = NOW()
	`, patientID, knownPersonID, string(payload))
	if err != nil {
		return fmt.Errorf("append conversation entry: %w", err)
	}
	return nil
}

// GetConversation returns the log for one pair, nil if none exists.
func (r *ConversationRepository) GetConversation(ctx context.Context, patientID, knownPersonID string) (*database.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT patient_id, known_person_id, entries, created_at, updated_at
		FROM conversations
		WHERE patient_id = $1 AND known_person_id = $2
	`, patientID, knownPersonID)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns all logs of a patient, most recently updated first.
func (r *ConversationRepository) ListConversations(ctx context.Context, patientID string) ([]database.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT patient_id, known_person_id, entries, created_at, updated_at
		FROM conversations
		WHERE patient_id = $1
		ORDER BY updated_at DESC, known_person_id
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []database.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

func scanConversation(row rowScanner) (database.Conversation, error) {
	var conv database.Conversation
	var raw []byte
	if err := row.Scan(&conv.PatientID, &conv.KnownPersonID, &raw, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return database.Conversation{}, err
	}
	if err := json.Unmarshal(raw, &conv.Entries); err != nil {
		return database.Conversation{}, fmt.Errorf("decode entries: %w", err)
	}
	return conv, nil
}
