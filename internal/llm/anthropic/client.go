// Package anthropic implements llm.Model on Claude models.
package anthropic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liushuangls/go-anthropic/v2"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string // e.g. "claude-3-5-sonnet-latest"
	Temperature float32
	MaxTokens   int
}

type Client struct {
	cfg    Config
	api    *anthropic.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &Client{cfg: cfg, api: anthropic.NewClient(cfg.APIKey, opts...), logger: logger}
}

func (c *Client) Generate(ctx context.Context, instruction string, images []string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	imgs, err := llm.LoadImages(images)
	if err != nil {
		return "", err
	}
	content := make([]anthropic.MessageContent, 0, len(imgs)+1)
	for _, im := range imgs {
		content = append(content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(anthropic.MessagesContentSourceTypeBase64, im.MIMEType, im.Base64()),
		))
	}
	content = append(content, anthropic.NewTextMessageContent(instruction))

	temp := c.cfg.Temperature
	resp, err := c.api.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.cfg.Model),
		Messages:    []anthropic.Message{{Role: anthropic.RoleUser, Content: content}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		c.logger.Error("llm.anthropic.generate.failed",
			"req_id", rid, "model", c.cfg.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: anthropic: %w", common.ErrModelCall, err)
	}

	var b strings.Builder
	for _, part := range resp.Content {
		if part.Text != nil {
			b.WriteString(*part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: anthropic: no response content", common.ErrModelCall)
	}
	c.logger.Debug("llm.anthropic.generate.ok",
		"req_id", rid, "model", c.cfg.Model, "images", len(imgs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func (c *Client) Close() error { return nil }
