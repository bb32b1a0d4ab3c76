// Package tutor orchestrates the tutoring chat: it owns one conversation
// controller per conversation, wires controllers to the durable message log,
// resolves staged attachments, and seeds and titles conversations.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mathgemini/tutor-backend/internal/attachment"
	"github.com/mathgemini/tutor-backend/internal/chat"
	"github.com/mathgemini/tutor-backend/internal/storage/postgres"
	"github.com/mathgemini/tutor-backend/internal/types"
)

const maxTitleRunes = 80

// ErrAttachmentUnavailable is returned when a submission references an
// attachment id that is missing or expired. The user may re-upload and retry.
var ErrAttachmentUnavailable = errors.New("attachment unavailable")

// SendMessageRequest is one user turn.
type SendMessageRequest struct {
	Content      string     `json:"content"`
	AttachmentID *uuid.UUID `json:"attachment_id,omitempty"`
}

// SendMessageResponse carries both messages created for the turn: the stored
// user message and the resolved model message.
type SendMessageResponse struct {
	UserMessage types.Message `json:"user_message"`
	Message     types.Message `json:"message"`
}

// controllerRef tracks how many submissions currently hold a conversation's
// controller. The controller is evicted when the count drops to zero.
type controllerRef struct {
	ctrl *chat.Controller
	refs int
}

// Service handles tutoring chat operations.
type Service struct {
	sender      chat.Sender
	msgRepo     *postgres.MessageRepository
	convRepo    *postgres.ConversationRepository
	attachments *attachment.Store
	logger      *logrus.Logger

	mu          sync.Mutex
	controllers map[uuid.UUID]*controllerRef
}

// NewService creates a tutoring Service.
func NewService(
	sender chat.Sender,
	msgRepo *postgres.MessageRepository,
	convRepo *postgres.ConversationRepository,
	attachments *attachment.Store,
	logger *logrus.Logger,
) *Service {
	return &Service{
		sender:      sender,
		msgRepo:     msgRepo,
		convRepo:    convRepo,
		attachments: attachments,
		logger:      logger,
		controllers: make(map[uuid.UUID]*controllerRef),
	}
}

// CreateConversation creates a conversation seeded with the welcome message.
func (s *Service) CreateConversation(ctx context.Context, userID string) (*types.Conversation, error) {
	conv, err := s.convRepo.Create(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.msgRepo.Log(conv.ID).Append(ctx, chat.NewWelcomeMessage()); err != nil {
		return nil, fmt.Errorf("seed welcome message: %w", err)
	}

	return conv, nil
}

// RequestInFlight reports whether the conversation has an outstanding
// submission. Purely a UX affordance; submissions are never blocked by it.
func (s *Service) RequestInFlight(convID uuid.UUID) bool {
	s.mu.Lock()
	ref, ok := s.controllers[convID]
	s.mu.Unlock()
	return ok && ref.ctrl.RequestInFlight()
}

// SendMessage runs one user turn through the conversation's controller.
// Remote failures are absorbed into the apology message; the returned error
// covers ownership, validation and storage failures only.
func (s *Service) SendMessage(ctx context.Context, convID uuid.UUID, userID string, req *SendMessageRequest) (*SendMessageResponse, error) {
	conv, err := s.convRepo.GetByID(ctx, convID, userID)
	if err != nil {
		return nil, err
	}

	var att *types.Attachment
	if req.AttachmentID != nil {
		rec, err := s.attachments.Get(ctx, *req.AttachmentID)
		if err != nil {
			if errors.Is(err, attachment.ErrNotFound) {
				return nil, ErrAttachmentUnavailable
			}
			return nil, err
		}
		att = rec.Attachment("/chat/attachments/" + rec.ID.String())
	}

	ctrl := s.acquireController(convID)
	defer s.releaseController(convID)

	res, err := ctrl.Submit(ctx, req.Content, att)
	if err != nil {
		return nil, err
	}

	if req.AttachmentID != nil {
		if err := s.attachments.Discard(ctx, *req.AttachmentID); err != nil {
			s.logger.WithError(err).Warn("failed to discard consumed attachment")
		}
	}

	if conv.Title == nil {
		if title := titleFromContent(req.Content); title != "" {
			if err := s.convRepo.SetTitleIfEmpty(ctx, convID, title); err != nil {
				s.logger.WithError(err).Warn("failed to title conversation")
			}
		}
	}
	if err := s.convRepo.Touch(ctx, convID); err != nil {
		s.logger.WithError(err).Warn("failed to touch conversation")
	}

	return &SendMessageResponse{UserMessage: res.User, Message: res.Reply}, nil
}

// acquireController returns the conversation's controller, creating it on
// first use, and pins it until the matching releaseController call.
func (s *Service) acquireController(convID uuid.UUID) *chat.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.controllers[convID]
	if !ok {
		ref = &controllerRef{ctrl: chat.NewController(s.msgRepo.Log(convID), s.sender, s.logger)}
		s.controllers[convID] = ref
	}
	ref.refs++
	return ref.ctrl
}

// releaseController drops one pin and evicts the controller once idle, so
// the map does not grow with every conversation ever touched.
func (s *Service) releaseController(convID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.controllers[convID]
	if !ok {
		return
	}
	ref.refs--
	if ref.refs <= 0 {
		delete(s.controllers, convID)
	}
}

// titleFromContent derives a conversation title from the first user turn.
func titleFromContent(content string) string {
	title := strings.TrimSpace(content)
	if title == "" {
		return ""
	}
	if line, _, found := strings.Cut(title, "\n"); found {
		title = strings.TrimSpace(line)
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		runes := []rune(title)
		title = string(runes[:maxTitleRunes-1]) + "…"
	}
	return title
}
