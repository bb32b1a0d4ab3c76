package api

import (
	"github.com/sirupsen/logrus"

	"github.com/mathgemini/tutor-backend/internal/attachment"
	"github.com/mathgemini/tutor-backend/internal/service"
	"github.com/mathgemini/tutor-backend/internal/service/tutor"
	"github.com/mathgemini/tutor-backend/internal/storage/postgres"
)

// Server holds API dependencies.
type Server struct {
	authService  *service.AuthService
	convRepo     *postgres.ConversationRepository
	tutorService *tutor.Service
	attachments  *attachment.Store
	logger       *logrus.Logger
}

// NewServer creates a new API server.
func NewServer(
	authService *service.AuthService,
	convRepo *postgres.ConversationRepository,
	tutorService *tutor.Service,
	attachments *attachment.Store,
	logger *logrus.Logger,
) *Server {
	return &Server{
		authService:  authService,
		convRepo:     convRepo,
		tutorService: tutorService,
		attachments:  attachments,
		logger:       logger,
	}
}
