// Package vertex implements llm.Model on Gemini models served by Vertex AI.
package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

type Config struct {
	ProjectID   string
	Region      string
	Model       string // e.g. "gemini-1.5-pro"
	Temperature float32
	MaxTokens   int32
}

type Client struct {
	cfg    Config
	base   *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Region == "" {
		cfg.Region = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := base.GenerativeModel(cfg.Model)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr[int32](cfg.MaxTokens)
	}
	logger.Info("vertex model ready", "project", cfg.ProjectID, "region", cfg.Region, "model", cfg.Model)
	return &Client{cfg: cfg, base: base, model: model, logger: logger}, nil
}

func (c *Client) Generate(ctx context.Context, instruction string, images []string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	imgs, err := llm.LoadImages(images)
	if err != nil {
		return "", err
	}
	parts := make([]genai.Part, 0, len(imgs)+1)
	for _, im := range imgs {
		parts = append(parts, genai.Blob{MIMEType: im.MIMEType, Data: im.Data})
	}
	parts = append(parts, genai.Text(instruction))

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		c.logger.Error("llm.vertex.generate.failed",
			"req_id", rid, "model", c.cfg.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: vertex: %w", common.ErrModelCall, err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: vertex: empty response", common.ErrModelCall)
	}
	c.logger.Debug("llm.vertex.generate.ok",
		"req_id", rid, "model", c.cfg.Model, "images", len(imgs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// responseText joins the text parts of the first candidate.
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
	return c.base.Close()
}
