// Package gemini implements llm.Model on the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

type Config struct {
	APIKey      string
	Model       string // e.g. "gemini-1.5-flash"
	Temperature float32
	MaxTokens   int32
}

type Client struct {
	cfg    Config
	client *genai.Client
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Client{cfg: cfg, client: client, logger: logger}, nil
}

func (c *Client) Generate(ctx context.Context, instruction string, images []string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	imgs, err := llm.LoadImages(images)
	if err != nil {
		return "", err
	}

	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(c.cfg.Temperature)
	if c.cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(c.cfg.MaxTokens)
	}

	parts := make([]genai.Part, 0, len(imgs)+1)
	for _, im := range imgs {
		parts = append(parts, genai.Blob{MIMEType: im.MIMEType, Data: im.Data})
	}
	parts = append(parts, genai.Text(instruction))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		c.logger.Error("llm.gemini.generate.failed",
			"req_id", rid, "model", c.cfg.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: gemini: %w", common.ErrModelCall, err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: gemini: empty response", common.ErrModelCall)
	}
	c.logger.Debug("llm.gemini.generate.ok",
		"req_id", rid, "model", c.cfg.Model, "images", len(imgs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

func (c *Client) Close() error {
	return c.client.Close()
}
