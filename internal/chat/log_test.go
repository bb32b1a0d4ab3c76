package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathgemini/tutor-backend/internal/types"
)

func TestMemoryLogRejectsDuplicateID(t *testing.T) {
	log := NewMemoryLog()
	id := uuid.New()

	require.NoError(t, log.Append(context.Background(), &types.Message{ID: id, Role: types.RoleUser}))
	require.Error(t, log.Append(context.Background(), &types.Message{ID: id, Role: types.RoleUser}))
}

func TestMemoryLogClampsTimestamps(t *testing.T) {
	log := NewMemoryLog()
	later := time.Now().UTC()
	earlier := later.Add(-time.Minute)

	require.NoError(t, log.Append(context.Background(), &types.Message{ID: uuid.New(), CreatedAt: later}))
	require.NoError(t, log.Append(context.Background(), &types.Message{ID: uuid.New(), CreatedAt: earlier}))

	snapshot, err := log.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	assert.False(t, snapshot[1].CreatedAt.Before(snapshot[0].CreatedAt))
}

func TestMemoryLogUpdateByIDExactlyOnce(t *testing.T) {
	log := NewMemoryLog()
	id := uuid.New()
	require.NoError(t, log.Append(context.Background(), &types.Message{
		ID:        id,
		Role:      types.RoleModel,
		IsLoading: true,
	}))

	require.NoError(t, log.UpdateByID(context.Background(), id, "answer"))

	// A resolved message is immutable: a second resolution must fail.
	err := log.UpdateByID(context.Background(), id, "other answer")
	require.ErrorIs(t, err, ErrMessageNotFound)

	snapshot, err := log.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "answer", snapshot[0].Text)
	assert.False(t, snapshot[0].IsLoading)
}

func TestMemoryLogUpdateByIDUnknown(t *testing.T) {
	log := NewMemoryLog()
	err := log.UpdateByID(context.Background(), uuid.New(), "text")
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMemoryLogSnapshotIsReadOnlyCopy(t *testing.T) {
	log := NewMemoryLog()
	require.NoError(t, log.Append(context.Background(), &types.Message{ID: uuid.New(), Text: "original"}))

	snapshot, err := log.Snapshot(context.Background())
	require.NoError(t, err)
	snapshot[0].Text = "mutated"

	again, err := log.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
}
