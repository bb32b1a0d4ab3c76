package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mathgemini/tutor-backend/internal/chat"
	"github.com/mathgemini/tutor-backend/internal/types"
)

// Log adapts one conversation's message rows to the chat.Log contract so the
// conversation controller can drive durable conversations unchanged.
type Log struct {
	msgs   *MessageRepository
	convID uuid.UUID
}

var _ chat.Log = (*Log)(nil)

// Log returns a chat.Log view over the given conversation.
func (r *MessageRepository) Log(convID uuid.UUID) *Log {
	return &Log{msgs: r, convID: convID}
}

func (l *Log) Append(ctx context.Context, msg *types.Message) error {
	msg.ConversationID = l.convID
	return l.msgs.Create(ctx, msg)
}

func (l *Log) UpdateByID(ctx context.Context, id uuid.UUID, text string) error {
	if err := l.msgs.Resolve(ctx, id, text); err != nil {
		if errors.Is(err, ErrNotFound) {
			return chat.ErrMessageNotFound
		}
		return err
	}
	return nil
}

func (l *Log) Snapshot(ctx context.Context) ([]types.Message, error) {
	return l.msgs.GetByConversationID(ctx, l.convID)
}
