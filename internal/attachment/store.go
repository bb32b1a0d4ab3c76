// Package attachment implements the acquisition boundary for user-supplied
// images: it validates and base64-encodes an uploaded payload, stages the
// record in the cache under a fresh id, and hands back an in-memory
// attachment once a submission references it.
package attachment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mathgemini/tutor-backend/internal/cache/redis"
	"github.com/mathgemini/tutor-backend/internal/types"
)

const (
	// MaxPayloadBytes caps the raw image size accepted for staging.
	MaxPayloadBytes = 8 << 20

	defaultTTL = 15 * time.Minute
	keyPrefix  = "attachment:"
)

var (
	// ErrNotImage is returned for payloads without an image/* MIME type.
	ErrNotImage = errors.New("attachment is not an image")
	// ErrTooLarge is returned for payloads over MaxPayloadBytes.
	ErrTooLarge = errors.New("attachment too large")
	// ErrNotFound is returned when a staged attachment is missing or expired.
	ErrNotFound = errors.New("attachment not found")
)

// Cache is the subset of the redis client used for staging.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Record is a staged attachment awaiting a submission.
type Record struct {
	ID       uuid.UUID `json:"id"`
	MimeType string    `json:"mime_type"`
	Data     string    `json:"data"` // base64
}

// Attachment converts the record into the attachment shape carried on a
// message, with the given locally resolvable preview URL.
func (r *Record) Attachment(previewURL string) *types.Attachment {
	return &types.Attachment{
		MimeType:   r.MimeType,
		Data:       r.Data,
		PreviewURL: previewURL,
	}
}

// Store stages uploaded attachments in the cache for a short window between
// upload and submit.
type Store struct {
	cache  Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewStore creates a Store with the default staging TTL.
func NewStore(cache Cache, logger *logrus.Logger) *Store {
	return &Store{cache: cache, ttl: defaultTTL, logger: logger}
}

// Stage validates and stages a raw image payload. Non-image MIME types and
// oversized payloads are rejected before anything is stored.
func (s *Store) Stage(ctx context.Context, mimeType string, payload []byte) (*Record, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		s.logger.WithField("mime_type", mimeType).Warn("rejected non-image attachment")
		return nil, ErrNotImage
	}
	if len(payload) == 0 {
		return nil, ErrNotImage
	}
	if len(payload) > MaxPayloadBytes {
		return nil, ErrTooLarge
	}

	rec := &Record{
		ID:       uuid.New(),
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(payload),
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal attachment: %w", err)
	}
	if err := s.cache.Set(ctx, keyPrefix+rec.ID.String(), string(raw), s.ttl); err != nil {
		return nil, fmt.Errorf("stage attachment: %w", err)
	}

	return rec, nil
}

// Get returns a staged attachment by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	raw, err := s.cache.Get(ctx, keyPrefix+id.String())
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attachment: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal attachment: %w", err)
	}
	return &rec, nil
}

// Discard removes a staged attachment once a submission has consumed it,
// instead of waiting for the TTL to expire it.
func (s *Store) Discard(ctx context.Context, id uuid.UUID) error {
	if err := s.cache.Delete(ctx, keyPrefix+id.String()); err != nil {
		return fmt.Errorf("discard attachment: %w", err)
	}
	return nil
}

// Payload decodes the staged base64 data back to raw bytes for preview.
func (r *Record) Payload() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.Data)
}
