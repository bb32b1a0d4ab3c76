package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mathgemini/tutor-backend/internal/mathml"
	"github.com/mathgemini/tutor-backend/internal/storage/postgres"
	"github.com/mathgemini/tutor-backend/internal/types"
)

// ListConversationsRequest is the request body for listing conversations.
type ListConversationsRequest struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []types.Conversation `json:"conversations"`
	TotalCount    int                  `json:"total_count"`
}

// MessageView is a message plus its display markup. DisplayHTML is the
// escaped, line-broken form of model responses with LaTeX spans left intact
// for client-side typesetting.
type MessageView struct {
	types.Message
	DisplayHTML string `json:"display_html,omitempty"`
}

// ConversationResponse is a conversation with renderable messages.
// RequestInFlight tells the client a submission is still pending so it can
// keep the composer disabled after a reload.
type ConversationResponse struct {
	types.Conversation
	Messages        []MessageView `json:"messages"`
	RequestInFlight bool          `json:"request_in_flight"`
}

// CreateConversation creates a new conversation for the authenticated user.
func (s *Server) CreateConversation(c echo.Context) error {
	conv, err := s.tutorService.CreateConversation(c.Request().Context(), GetUserID(c))
	if err != nil {
		s.logger.WithError(err).Error("failed to create conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to create conversation"})
	}

	return c.JSON(http.StatusCreated, conv)
}

// ListConversations returns a paginated list of conversations.
func (s *Server) ListConversations(c echo.Context) error {
	var req ListConversationsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	// Default pagination
	if req.Take <= 0 {
		req.Take = 20
	}
	if req.Take > 100 {
		req.Take = 100
	}

	conversations, totalCount, err := s.convRepo.List(c.Request().Context(), GetUserID(c), req.Skip, req.Take)
	if err != nil {
		s.logger.WithError(err).Error("failed to list conversations")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list conversations"})
	}

	if conversations == nil {
		conversations = []types.Conversation{}
	}

	return c.JSON(http.StatusOK, ListConversationsResponse{
		Conversations: conversations,
		TotalCount:    totalCount,
	})
}

// GetConversation returns a conversation with its messages.
func (s *Server) GetConversation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}

	conv, err := s.convRepo.GetWithMessages(c.Request().Context(), id, GetUserID(c))
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		}
		s.logger.WithError(err).Error("failed to get conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to get conversation"})
	}

	resp := conversationResponse(conv)
	resp.RequestInFlight = s.tutorService.RequestInFlight(id)
	return c.JSON(http.StatusOK, resp)
}

// DeleteConversation archives a conversation (soft delete).
func (s *Server) DeleteConversation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}

	err = s.convRepo.Archive(c.Request().Context(), id, GetUserID(c))
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		}
		s.logger.WithError(err).Error("failed to delete conversation")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to delete conversation"})
	}

	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func conversationResponse(conv *types.ConversationWithMessages) ConversationResponse {
	views := make([]MessageView, len(conv.Messages))
	for i, msg := range conv.Messages {
		views[i] = messageView(msg)
	}
	return ConversationResponse{
		Conversation: conv.Conversation,
		Messages:     views,
	}
}

// messageView attaches display markup to resolved model messages; user
// messages and loading placeholders are passed through as-is.
func messageView(msg types.Message) MessageView {
	view := MessageView{Message: msg}
	if msg.Role == types.RoleModel && !msg.IsLoading {
		view.DisplayHTML = mathml.Render(msg.Text)
	}
	return view
}
