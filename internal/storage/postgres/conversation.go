package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mathgemini/tutor-backend/internal/types"
)

// ErrNotFound is returned when a resource is not found.
var ErrNotFound = errors.New("not found")

// ConversationRepository handles database operations for conversations.
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func scanConversation(row pgx.Row) (*types.Conversation, error) {
	var (
		id                   pgtype.UUID
		userID               string
		title                pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
		archivedAt           pgtype.Timestamptz
	)
	if err := row.Scan(&id, &userID, &title, &createdAt, &updatedAt, &archivedAt); err != nil {
		return nil, err
	}
	return &types.Conversation{
		ID:         pgtypeToUUID(id),
		UserID:     userID,
		Title:      pgtextToStringPtr(title),
		CreatedAt:  pgtimestamptzToTime(createdAt),
		UpdatedAt:  pgtimestamptzToTime(updatedAt),
		ArchivedAt: pgtimestamptzToTimePtr(archivedAt),
	}, nil
}

// Create creates a new conversation for the given user.
func (r *ConversationRepository) Create(ctx context.Context, userID string) (*types.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (user_id)
		VALUES ($1)
		RETURNING id, user_id, title, created_at, updated_at, archived_at`,
		userID)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// GetByID returns a conversation if it exists, belongs to the given user and
// is not archived.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID, userID string) (*types.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, created_at, updated_at, archived_at
		FROM conversations
		WHERE id = $1 AND user_id = $2 AND archived_at IS NULL`,
		uuidToPgtype(id), userID)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// GetWithMessages returns a conversation with all its messages.
func (r *ConversationRepository) GetWithMessages(ctx context.Context, id uuid.UUID, userID string) (*types.ConversationWithMessages, error) {
	conv, err := r.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	msgs, err := NewMessageRepository(r.pool).GetByConversationID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &types.ConversationWithMessages{
		Conversation: *conv,
		Messages:     msgs,
	}, nil
}

// List returns paginated conversations for a user, most recently updated
// first, along with the total count.
func (r *ConversationRepository) List(ctx context.Context, userID string, skip, take int) ([]types.Conversation, int, error) {
	var totalCount int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM conversations
		WHERE user_id = $1 AND archived_at IS NULL`,
		userID).Scan(&totalCount)
	if err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, created_at, updated_at, archived_at
		FROM conversations
		WHERE user_id = $1 AND archived_at IS NULL
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`,
		userID, take, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []types.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}

	return convs, totalCount, nil
}

// Archive soft-deletes a conversation by setting archived_at.
func (r *ConversationRepository) Archive(ctx context.Context, id uuid.UUID, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET archived_at = now(), updated_at = now()
		WHERE id = $1 AND user_id = $2 AND archived_at IS NULL`,
		uuidToPgtype(id), userID)
	if err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTitleIfEmpty sets the title of a conversation that has none yet.
// Conversations are titled from their first user turn; later turns leave the
// title alone.
func (r *ConversationRepository) SetTitleIfEmpty(ctx context.Context, id uuid.UUID, title string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET title = $2, updated_at = now()
		WHERE id = $1 AND title IS NULL`,
		uuidToPgtype(id), title)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	return nil
}

// Touch bumps updated_at so recently active conversations sort first.
func (r *ConversationRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET updated_at = now() WHERE id = $1`,
		uuidToPgtype(id))
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}
