package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mathgemini/tutor-backend/internal/service/tutor"
	"github.com/mathgemini/tutor-backend/internal/storage/postgres"
)

// SendMessageResponse returns both messages created for the turn. The model
// message carries display markup; the user message is echoed as stored.
type SendMessageResponse struct {
	UserMessage MessageView `json:"user_message"`
	Message     MessageView `json:"message"`
}

func sendMessageResponse(res *tutor.SendMessageResponse) SendMessageResponse {
	return SendMessageResponse{
		UserMessage: messageView(res.UserMessage),
		Message:     messageView(res.Message),
	}
}

// SendMessage handles POST /chat/conversations/:id/messages
func (s *Server) SendMessage(c echo.Context) error {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid conversation id"})
	}

	var req tutor.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	// A turn needs text or an attachment; reject vacuous submissions before
	// anything is appended.
	if strings.TrimSpace(req.Content) == "" && req.AttachmentID == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "content or attachment_id is required"})
	}

	resp, err := s.tutorService.SendMessage(c.Request().Context(), convID, GetUserID(c), &req)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrNotFound):
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		case errors.Is(err, tutor.ErrAttachmentUnavailable):
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "attachment not found or expired"})
		default:
			s.logger.WithError(err).Error("failed to process message")
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to process message"})
		}
	}

	return c.JSON(http.StatusOK, sendMessageResponse(resp))
}
