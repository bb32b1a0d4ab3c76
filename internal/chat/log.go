package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mathgemini/tutor-backend/internal/types"
)

// ErrMessageNotFound is returned when no pending message matches the given id.
var ErrMessageNotFound = errors.New("message not found")

// Log is an ordered, append-only conversation log. The only permitted
// in-place mutation is UpdateByID, which resolves a pending model message
// exactly once.
type Log interface {
	// Append adds a message to the end of the log.
	Append(ctx context.Context, msg *types.Message) error
	// UpdateByID sets the text of the pending message with the given id and
	// clears its loading flag. It fails with ErrMessageNotFound if no message
	// with that id is still pending, so a placeholder cannot resolve twice.
	UpdateByID(ctx context.Context, id uuid.UUID, text string) error
	// Snapshot returns a read-only copy of the log in insertion order.
	Snapshot(ctx context.Context) ([]types.Message, error)
}

// MemoryLog is an in-process Log for headless use and tests. It is safe for
// concurrent use.
type MemoryLog struct {
	mu   sync.RWMutex
	msgs []types.Message
}

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, msg *types.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.msgs {
		if l.msgs[i].ID == msg.ID {
			return fmt.Errorf("duplicate message id %s", msg.ID)
		}
	}

	// Insertion order is chronological order. Clamp the timestamp so a clock
	// step backwards cannot break monotonicity.
	if n := len(l.msgs); n > 0 && msg.CreatedAt.Before(l.msgs[n-1].CreatedAt) {
		msg.CreatedAt = l.msgs[n-1].CreatedAt
	}

	l.msgs = append(l.msgs, *msg)
	return nil
}

func (l *MemoryLog) UpdateByID(_ context.Context, id uuid.UUID, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.msgs {
		if l.msgs[i].ID == id && l.msgs[i].IsLoading {
			l.msgs[i].Text = text
			l.msgs[i].IsLoading = false
			return nil
		}
	}
	return ErrMessageNotFound
}

func (l *MemoryLog) Snapshot(_ context.Context) ([]types.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Message, len(l.msgs))
	copy(out, l.msgs)
	return out, nil
}

// NewWelcomeMessage returns the synthetic model greeting every conversation
// log is seeded with.
func NewWelcomeMessage() *types.Message {
	return &types.Message{
		ID:        uuid.New(),
		Role:      types.RoleModel,
		Text:      WelcomeText,
		CreatedAt: time.Now().UTC(),
	}
}
