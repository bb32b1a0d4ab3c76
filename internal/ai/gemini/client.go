package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mathgemini/tutor-backend/internal/types"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel       = "gemini-2.5-flash"
	defaultTemperature = 0.4
)

// systemInstruction constrains the model to act as a step-by-step Vietnamese
// math tutor that wraps formulas in LaTeX delimiters and solves problems
// found in images via OCR.
const systemInstruction = `Bạn là một gia sư toán học AI thông minh, kiên nhẫn và hữu ích.
Nhiệm vụ của bạn là giúp người dùng giải quyết các bài toán từ cơ bản đến nâng cao.

Quy tắc quan trọng:
1. Luôn giải thích từng bước (step-by-step) để người dùng hiểu bản chất vấn đề.
2. Trả lời bằng Tiếng Việt.
3. Khi viết công thức toán học, BẮT BUỘC phải sử dụng định dạng LaTeX.
4. Bọc công thức inline (cùng dòng) trong dấu $ (ví dụ: $x^2 + 2x + 1 = 0$).
5. Bọc công thức block (dòng riêng) trong dấu $$ (ví dụ: $$ \int_{0}^{\infty} e^{-x} dx $$).
6. Nếu người dùng gửi ảnh, hãy phân tích ảnh (OCR), trích xuất đề bài và giải chi tiết.`

// Fixed replies for degenerate turns.
const (
	// EmptyInputReply is returned without a remote call when a turn has
	// neither text nor an attachment.
	EmptyInputReply = "Vui lòng nhập nội dung hoặc gửi ảnh."
	// EmptyResponseReply replaces an empty remote success.
	EmptyResponseReply = "Xin lỗi, tôi không thể tạo câu trả lời lúc này."
)

// Client is a Google generative-language API client.
type Client struct {
	apiKey      string
	model       string
	temperature float64
	baseURL     string
	httpClient  *http.Client
	logger      *logrus.Logger
}

// InlineData carries a binary payload (base64) and its MIME type.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one component of a content turn. Exactly one field is set.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// Content is an ordered list of parts with an optional role.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig holds sampling parameters.
type GenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

// Request is the request body for the generateContent API.
type Request struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Candidate is one generated answer.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

// UsageMetadata contains token usage information.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Response is the response from the generateContent API.
type Response struct {
	Candidates    []Candidate   `json:"candidates"`
	UsageMetadata UsageMetadata `json:"usageMetadata"`
}

// Text returns the first text part of the first candidate, or "".
func (r *Response) Text() string {
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// APIError represents an error returned by the generative-language API.
type APIError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: %s (%d): %s", e.Status, e.Code, e.Message)
}

// NewClient creates a Gemini client. The API key is required at construction
// time; callers should treat a failure here as "service unavailable" for the
// tutor only, not a reason to abort unrelated work.
func NewClient(apiKey, model string, temperature float64, logger *logrus.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &Client{
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		baseURL:     defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

// GenerateContent sends a raw request to the generateContent endpoint.
func (c *Client) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Error.Message == "" {
			return nil, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, &apiErr.Error
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &result, nil
}

// Send submits a single tutoring turn and returns the full generated text.
// Each call is stateless: only the current turn is sent, never prior history.
// The ordered parts list puts the inline image first, then the text.
func (c *Client) Send(ctx context.Context, text string, attachment *types.Attachment) (string, error) {
	var parts []Part
	if attachment != nil {
		parts = append(parts, Part{InlineData: &InlineData{
			MimeType: attachment.MimeType,
			Data:     attachment.Data,
		}})
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, Part{Text: text})
	}
	if len(parts) == 0 {
		return EmptyInputReply, nil
	}

	req := &Request{
		Contents: []Content{{
			Role:  "user",
			Parts: parts,
		}},
		SystemInstruction: &Content{
			Parts: []Part{{Text: systemInstruction}},
		},
		GenerationConfig: &GenerationConfig{
			Temperature: c.temperature,
		},
	}

	resp, err := c.GenerateContent(ctx, req)
	if err != nil {
		c.logger.WithError(err).Error("gemini request failed")
		return "", fmt.Errorf("generate content: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"prompt_tokens":    resp.UsageMetadata.PromptTokenCount,
		"candidate_tokens": resp.UsageMetadata.CandidatesTokenCount,
	}).Debug("gemini response received")

	if out := resp.Text(); out != "" {
		return out, nil
	}
	return EmptyResponseReply, nil
}
