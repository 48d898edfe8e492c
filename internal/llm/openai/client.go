package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

// Generate sends the instruction and page images as one user message and
// returns the first choice's text.
func (c *Client) Generate(ctx context.Context, instruction string, images []string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	imgs, err := llm.LoadImages(images)
	if err != nil {
		return "", err
	}

	parts := []goopenai.ChatMessagePart{{Type: goopenai.ChatMessagePartTypeText, Text: instruction}}
	for _, im := range imgs {
		parts = append(parts, goopenai.ChatMessagePart{
			Type: goopenai.ChatMessagePartTypeImageURL,
			ImageURL: &goopenai.ChatMessageImageURL{
				URL:    im.DataURL(),
				Detail: goopenai.ImageURLDetailHigh,
			},
		})
	}

	c.logger.Debug("llm.openai.generate.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"images", len(imgs),
		"instruction_len", len(instruction),
	)

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		c.logger.Error("llm.openai.generate.failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("%w: openai: %w", common.ErrModelCall, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: no choices", common.ErrModelCall)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("llm.openai.generate.ok",
		"req_id", rid,
		"content_len", len(content),
		"tokens", resp.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}
