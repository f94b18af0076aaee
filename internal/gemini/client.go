package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrNoCandidates = errors.New("gemini returned no candidates")

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type GenerateRequest struct {
	Contents []Content `json:"contents"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type GenerateResponse struct {
	Candidates     []Candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type APIError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client calls the Gemini generateContent REST endpoint.
type Client struct {
	http   *resty.Client
	model  string
	apiKey string
	logger *zap.Logger
}

// NewClient builds a client. Retries are left to the caller; one Generate is
// one HTTP request.
func NewClient(baseURL, apiKey, model string, logger *zap.Logger) *Client {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:   hc,
		model:  model,
		apiKey: apiKey,
		logger: logger.Named("gemini"),
	}
}

// Generate sends prompt as a single user turn and returns the concatenated
// text of the first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var (
		out    GenerateResponse
		apiErr APIError
	)

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetPathParam("model", c.model).
		SetBody(GenerateRequest{Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}}}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}

	if resp.IsError() {
		c.logger.Warn("gemini API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("status", apiErr.Error.Status),
			zap.String("message", apiErr.Error.Message),
		)
		if apiErr.Error.Message != "" {
			return "", fmt.Errorf("gemini API error %d: %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return "", fmt.Errorf("gemini API error: status %d", resp.StatusCode())
	}

	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked (%s)", ErrNoCandidates, out.PromptFeedback.BlockReason)
		}
		return "", ErrNoCandidates
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}

	c.logger.Debug("gemini response received",
		zap.String("finish_reason", out.Candidates[0].FinishReason),
		zap.Int("length", b.Len()),
	)
	return b.String(), nil
}
