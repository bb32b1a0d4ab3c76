package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mathgemini/tutor-backend/internal/types"
)

// MessageRepository handles database operations for messages.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts a new message. The message keeps its caller-assigned id;
// the database-assigned creation time is written back to msg.
func (r *MessageRepository) Create(ctx context.Context, msg *types.Message) error {
	var attMime, attData *string
	if msg.Attachment != nil {
		attMime = &msg.Attachment.MimeType
		attData = &msg.Attachment.Data
	}

	var createdAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, is_loading, attachment_mime, attachment_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		uuidToPgtype(msg.ID),
		uuidToPgtype(msg.ConversationID),
		string(msg.Role),
		msg.Text,
		msg.IsLoading,
		stringPtrToPgtext(attMime),
		stringPtrToPgtext(attData),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	msg.CreatedAt = pgtimestamptzToTime(createdAt)
	return nil
}

// Resolve applies the single permitted in-place mutation: it sets the text
// of a still-pending message and clears its loading flag. The is_loading
// guard in the WHERE clause makes resolution exactly-once even under
// concurrent callers.
func (r *MessageRepository) Resolve(ctx context.Context, id uuid.UUID, text string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET content = $2, is_loading = FALSE
		WHERE id = $1 AND is_loading`,
		uuidToPgtype(id), text)
	if err != nil {
		return fmt.Errorf("resolve message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByConversationID returns all messages for a conversation in insertion
// order. The seq column keeps ordering stable even when created_at ties.
func (r *MessageRepository) GetByConversationID(ctx context.Context, convID uuid.UUID) ([]types.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, is_loading, attachment_mime, attachment_data, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY seq`,
		uuidToPgtype(convID))
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	return msgs, nil
}

func scanMessage(row pgx.Row) (*types.Message, error) {
	var (
		id, convID       pgtype.UUID
		role, content    string
		isLoading        bool
		attMime, attData pgtype.Text
		createdAt        pgtype.Timestamptz
	)
	if err := row.Scan(&id, &convID, &role, &content, &isLoading, &attMime, &attData, &createdAt); err != nil {
		return nil, err
	}

	msg := &types.Message{
		ID:             pgtypeToUUID(id),
		ConversationID: pgtypeToUUID(convID),
		Role:           types.MessageRole(role),
		Text:           content,
		IsLoading:      isLoading,
		CreatedAt:      pgtimestamptzToTime(createdAt),
	}
	if attMime.Valid {
		msg.Attachment = &types.Attachment{
			MimeType: attMime.String,
			Data:     attData.String,
		}
	}
	return msg, nil
}
