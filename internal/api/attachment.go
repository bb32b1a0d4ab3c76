package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mathgemini/tutor-backend/internal/attachment"
)

// UploadAttachmentResponse describes a staged attachment.
type UploadAttachmentResponse struct {
	ID         uuid.UUID `json:"id"`
	MimeType   string    `json:"mime_type"`
	PreviewURL string    `json:"preview_url"`
}

// UploadAttachment handles POST /chat/attachments. It accepts one multipart
// image file and stages it for a later submission.
func (s *Server) UploadAttachment(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.logger.WithError(err).Error("failed to open uploaded file")
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable file"})
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, attachment.MaxPayloadBytes+1))
	if err != nil {
		s.logger.WithError(err).Error("failed to read uploaded file")
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable file"})
	}

	rec, err := s.attachments.Stage(c.Request().Context(), fileHeader.Header.Get("Content-Type"), payload)
	if err != nil {
		switch {
		case errors.Is(err, attachment.ErrNotImage):
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "only image attachments are supported"})
		case errors.Is(err, attachment.ErrTooLarge):
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "attachment too large"})
		default:
			s.logger.WithError(err).Error("failed to stage attachment")
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to stage attachment"})
		}
	}

	return c.JSON(http.StatusCreated, UploadAttachmentResponse{
		ID:         rec.ID,
		MimeType:   rec.MimeType,
		PreviewURL: "/chat/attachments/" + rec.ID.String(),
	})
}

// GetAttachment serves a staged attachment's image payload (the preview URL).
func (s *Server) GetAttachment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid attachment id"})
	}

	rec, err := s.attachments.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, attachment.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "attachment not found"})
		}
		s.logger.WithError(err).Error("failed to get attachment")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to get attachment"})
	}

	payload, err := rec.Payload()
	if err != nil {
		s.logger.WithError(err).Error("failed to decode attachment")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to decode attachment"})
	}

	return c.Blob(http.StatusOK, rec.MimeType, payload)
}
