package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathgemini/tutor-backend/internal/attachment"
	"github.com/mathgemini/tutor-backend/internal/cache/redis"
	"github.com/mathgemini/tutor-backend/internal/service"
	"github.com/mathgemini/tutor-backend/internal/service/tutor"
	"github.com/mathgemini/tutor-backend/internal/types"
)

const testSecret = "test-secret"

type fakeCache struct {
	values map[string]string
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	val, ok := f.values[key]
	if !ok {
		return "", redis.ErrCacheMiss
	}
	return val, nil
}

func (f *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.values[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	delete(f.values, key)
	return nil
}

func setupTestServer(t *testing.T) (*echo.Echo, *Server) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := attachment.NewStore(&fakeCache{values: make(map[string]string)}, logger)
	server := NewServer(service.NewAuthService(testSecret), nil, nil, store, logger)

	e := echo.New()
	e.GET("/chat/attachments/:id", server.GetAttachment)
	chat := e.Group("/chat", server.AuthMiddleware)
	chat.POST("/conversations/:id/messages", server.SendMessage)
	chat.POST("/attachments", server.UploadAttachment)

	return e, server
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:    "user-1",
		TokenType: service.TokenTypeAccess,
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func decodeBody(t *testing.T, body []byte, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, out))
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/attachments", nil)
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareRejectsBadScheme(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/attachments", nil)
	req.Header.Set(echo.HeaderAuthorization, "Basic abc123")
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/attachments", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func multipartImage(t *testing.T, mimeType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="problem.png"`)
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

func TestUploadAndFetchAttachment(t *testing.T) {
	e, _ := setupTestServer(t)

	payload := []byte{0x89, 'P', 'N', 'G'}
	body, contentType := multipartImage(t, "image/png", payload)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/attachments", body)
	req.Header.Set(echo.HeaderAuthorization, bearerToken(t))
	req.Header.Set(echo.HeaderContentType, contentType)
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp UploadAttachmentResponse
	decodeBody(t, rec.Body.Bytes(), &resp)
	assert.NotEqual(t, uuid.Nil, resp.ID)
	assert.Equal(t, "image/png", resp.MimeType)
	assert.Equal(t, "/chat/attachments/"+resp.ID.String(), resp.PreviewURL)

	// Preview round-trips the raw payload.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, resp.PreviewURL, nil)
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, payload, rec.Body.Bytes())
}

func TestUploadRejectsNonImage(t *testing.T) {
	e, _ := setupTestServer(t)

	body, contentType := multipartImage(t, "application/pdf", []byte("%PDF"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/attachments", body)
	req.Header.Set(echo.HeaderAuthorization, bearerToken(t))
	req.Header.Set(echo.HeaderContentType, contentType)
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAttachmentNotFound(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/attachments/"+uuid.NewString(), nil)
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAttachmentInvalidID(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/attachments/not-a-uuid", nil)
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageInvalidConversationID(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/conversations/nope/messages",
		bytes.NewReader([]byte(`{"content":"hi"}`)))
	req.Header.Set(echo.HeaderAuthorization, bearerToken(t))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageResponseCarriesBothMessages(t *testing.T) {
	convID := uuid.New()
	res := &tutor.SendMessageResponse{
		UserMessage: types.Message{
			ID:             uuid.New(),
			ConversationID: convID,
			Role:           types.RoleUser,
			Text:           "2 < 3?",
		},
		Message: types.Message{
			ID:             uuid.New(),
			ConversationID: convID,
			Role:           types.RoleModel,
			Text:           "Đúng vậy:\n$2 < 3$",
		},
	}

	resp := sendMessageResponse(res)

	assert.Equal(t, res.UserMessage.ID, resp.UserMessage.ID)
	assert.Equal(t, "2 < 3?", resp.UserMessage.Text)
	// User text is never rewritten into display markup.
	assert.Empty(t, resp.UserMessage.DisplayHTML)

	assert.Equal(t, res.Message.ID, resp.Message.ID)
	assert.Equal(t, "Đúng vậy:<br />$2 < 3$", resp.Message.DisplayHTML)
}

func TestMessageViewSkipsLoadingPlaceholder(t *testing.T) {
	view := messageView(types.Message{
		Role:      types.RoleModel,
		Text:      "...",
		IsLoading: true,
	})
	assert.Empty(t, view.DisplayHTML)
}

func TestSendMessageRejectsVacuousSubmission(t *testing.T) {
	e, _ := setupTestServer(t)

	for _, body := range []string{`{}`, `{"content":""}`, `{"content":"   "}`} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chat/conversations/"+uuid.NewString()+"/messages",
			bytes.NewReader([]byte(body)))
		req.Header.Set(echo.HeaderAuthorization, bearerToken(t))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}
