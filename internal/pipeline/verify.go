package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

// VerifyStage asks the model to check each extracted record against its page.
type VerifyStage struct {
	Model       llm.Model
	Instruction string
	Workers     int
	Logger      *slog.Logger
}

// Run returns exactly one record per input record, in input order. When a
// verification call fails the original record is returned unchanged.
func (s *VerifyStage) Run(ctx context.Context, records []entity.Record) ([]entity.Record, []Outcome) {
	logger := common.LoggerFrom(ctx, s.Logger)
	out := make([]entity.Record, len(records))
	outcomes := make([]Outcome, len(records))

	fanOut(ctx, len(records), s.Workers, func(ctx context.Context, i int) {
		out[i], outcomes[i] = s.record(ctx, logger, records[i])
	}, func(i int, err error) {
		logger.Error("pipeline.verify.panic", "page", records[i].Page.ImagePath, "error", err)
		out[i] = records[i].Clone()
		outcomes[i] = pageOutcome(constants.StageVerify, records[i].Page, constants.OutcomeFallback, 1, err)
	})
	return out, outcomes
}

// VerificationPrompt embeds the record as an indented one-element JSON list.
func VerificationPrompt(instruction string, rec entity.Record) (string, error) {
	payload, err := json.MarshalIndent([]entity.Fields{rec.Fields}, "", "  ")
	if err != nil {
		return "", err
	}
	return instruction + "\nExtracted JSON:\n" + string(payload), nil
}

func (s *VerifyStage) record(ctx context.Context, logger *slog.Logger, rec entity.Record) (entity.Record, Outcome) {
	start := time.Now()
	fallback := func(err error) (entity.Record, Outcome) {
		return rec.Clone(), pageOutcome(constants.StageVerify, rec.Page, constants.OutcomeFallback, 1, err)
	}

	prompt, err := VerificationPrompt(s.Instruction, rec)
	if err != nil {
		logger.Warn("pipeline.verify.encode_failed", "page", rec.Page.ImagePath, "error", err)
		return fallback(common.NewAppError("VERIFY_ENCODE", rec.Page.ImagePath, common.ErrInternal))
	}
	raw, err := s.Model.Generate(ctx, prompt, []string{rec.Page.ImagePath})
	if err != nil {
		logger.Warn("pipeline.verify.call_failed", "page", rec.Page.ImagePath, "error", err)
		return fallback(common.NewAppError("VERIFY_CALL", rec.Page.ImagePath, asModelErr(err)))
	}
	fixed, err := llm.ExtractJSONObject(raw)
	if err != nil || len(fixed) == 0 {
		logger.Warn("pipeline.verify.parse_failed", "page", rec.Page.ImagePath, "output_bytes", len(raw))
		return fallback(common.NewAppError("VERIFY_PARSE", rec.Page.ImagePath, common.ErrParse))
	}

	verified := rec.Clone()
	changed := 0
	for k, v := range entity.NormalizeFields(fixed) {
		if old, ok := verified.Fields[k]; !ok || !old.Equal(v) {
			changed++
		}
		verified.Fields[k] = v
	}
	logger.Debug("pipeline.verify.record_ok",
		"page", rec.Page.ImagePath,
		"changed_fields", changed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return verified, pageOutcome(constants.StageVerify, rec.Page, constants.OutcomeOK, 1, nil)
}
