package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mathgemini/tutor-backend/internal/types"
)

// Caller-facing strings. The product speaks Vietnamese.
const (
	// WelcomeText is the synthetic greeting seeded into every new log.
	WelcomeText = "Chào bạn! Mình là gia sư toán AI. \nHãy gửi cho mình một bài toán (dạng chữ hoặc ảnh), mình sẽ giúp bạn giải từng bước và hiển thị công thức đẹp mắt với MathJax.\n\nVí dụ: *Giải phương trình $x^2 - 4x + 3 = 0$*"

	// ApologyText replaces a placeholder whose remote call failed.
	ApologyText = "Xin lỗi, đã có lỗi xảy ra khi xử lý yêu cầu của bạn. Vui lòng thử lại."
)

// ErrEmptySubmission is returned by Submit when the turn has neither text
// (after trimming) nor an attachment. The log is left untouched and no
// remote call is made.
var ErrEmptySubmission = errors.New("empty submission")

// Sender is the AI tutor client contract: one full response per turn, no
// streaming, no history.
type Sender interface {
	Send(ctx context.Context, text string, attachment *types.Attachment) (string, error)
}

// Controller owns a conversation log and runs the request lifecycle for each
// user turn: append the user message, append a loading placeholder, invoke
// the sender, then resolve the placeholder in place with the response or a
// fixed apology. Each placeholder resolves exactly once.
type Controller struct {
	log      Log
	sender   Sender
	logger   *logrus.Logger
	inFlight atomic.Int32
}

// NewController creates a Controller over the given log and sender.
func NewController(log Log, sender Sender, logger *logrus.Logger) *Controller {
	return &Controller{log: log, sender: sender, logger: logger}
}

// RequestInFlight reports whether any submission is awaiting its response.
// Presentation layers may use it to disable the submit affordance; it is not
// a correctness gate, and Submit never blocks on it.
func (c *Controller) RequestInFlight() bool {
	return c.inFlight.Load() > 0
}

// Snapshot exposes the log as a read-only ordered sequence.
func (c *Controller) Snapshot(ctx context.Context) ([]types.Message, error) {
	return c.log.Snapshot(ctx)
}

// SubmitResult carries the two messages created for one turn.
type SubmitResult struct {
	User  types.Message
	Reply types.Message
}

// Submit runs one user turn through the log. It returns the appended user
// message together with the resolved model message. A failed remote call is
// absorbed: the placeholder resolves to the apology text and Submit returns
// it without error.
func (c *Controller) Submit(ctx context.Context, text string, attachment *types.Attachment) (*SubmitResult, error) {
	if strings.TrimSpace(text) == "" && attachment == nil {
		return nil, ErrEmptySubmission
	}

	now := time.Now().UTC()
	user := &types.Message{
		ID:         uuid.New(),
		Role:       types.RoleUser,
		Text:       text,
		Attachment: attachment,
		CreatedAt:  now,
	}
	if err := c.log.Append(ctx, user); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	placeholder := &types.Message{
		ID:        uuid.New(),
		Role:      types.RoleModel,
		IsLoading: true,
		CreatedAt: now,
	}
	if err := c.log.Append(ctx, placeholder); err != nil {
		return nil, fmt.Errorf("append placeholder: %w", err)
	}

	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	reply, err := c.sender.Send(ctx, text, attachment)
	if err != nil {
		c.logger.WithError(err).WithField("message_id", placeholder.ID).Error("tutor request failed")
		reply = ApologyText
	}

	if err := c.log.UpdateByID(ctx, placeholder.ID, reply); err != nil {
		return nil, fmt.Errorf("resolve placeholder: %w", err)
	}

	placeholder.Text = reply
	placeholder.IsLoading = false
	return &SubmitResult{User: *user, Reply: *placeholder}, nil
}
