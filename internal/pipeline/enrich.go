package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

// EnrichStage attaches alternative readings to fields the model finds
// ambiguous. It never changes field values and never drops a record.
type EnrichStage struct {
	// Model is the separate reasoning model. Nil disables enrichment.
	Model       llm.Model
	Instruction string
	Workers     int
	Logger      *slog.Logger
}

// Run returns one FinalRecord per input record, in input order.
func (s *EnrichStage) Run(ctx context.Context, records []entity.Record) ([]entity.FinalRecord, []Outcome) {
	logger := common.LoggerFrom(ctx, s.Logger)
	out := make([]entity.FinalRecord, len(records))
	outcomes := make([]Outcome, len(records))

	if s.Model == nil {
		for i, rec := range records {
			out[i] = entity.FinalRecord{Record: rec}
			outcomes[i] = pageOutcome(constants.StageEnrich, rec.Page, constants.OutcomeSkipped, 1, nil)
		}
		return out, outcomes
	}

	fanOut(ctx, len(records), s.Workers, func(ctx context.Context, i int) {
		out[i], outcomes[i] = s.record(ctx, logger, records[i])
	}, func(i int, err error) {
		logger.Error("pipeline.enrich.panic", "page", records[i].Page.ImagePath, "error", err)
		out[i] = entity.FinalRecord{Record: records[i]}
		outcomes[i] = pageOutcome(constants.StageEnrich, records[i].Page, constants.OutcomeFallback, 1, err)
	})
	return out, outcomes
}

func (s *EnrichStage) record(ctx context.Context, logger *slog.Logger, rec entity.Record) (entity.FinalRecord, Outcome) {
	start := time.Now()
	passThrough := func(err error) (entity.FinalRecord, Outcome) {
		return entity.FinalRecord{Record: rec}, pageOutcome(constants.StageEnrich, rec.Page, constants.OutcomeFallback, 1, err)
	}

	raw, err := s.Model.Generate(ctx, s.Instruction, []string{rec.Page.ImagePath})
	if err != nil {
		logger.Warn("pipeline.enrich.call_failed", "page", rec.Page.ImagePath, "error", err)
		return passThrough(common.NewAppError("ENRICH_CALL", rec.Page.ImagePath, asModelErr(err)))
	}
	details, err := llm.ExtractJSONObject(raw)
	if err != nil {
		logger.Warn("pipeline.enrich.parse_failed", "page", rec.Page.ImagePath, "output_bytes", len(raw))
		return passThrough(common.NewAppError("ENRICH_PARSE", rec.Page.ImagePath, common.ErrParse))
	}

	amb := Ambiguities(details)
	final := entity.FinalRecord{Record: rec}
	if len(amb) > 0 {
		final.Ambiguities = amb
	}
	logger.Debug("pipeline.enrich.record_ok",
		"page", rec.Page.ImagePath,
		"ambiguous_fields", len(amb),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return final, pageOutcome(constants.StageEnrich, rec.Page, constants.OutcomeOK, 1, nil)
}

// Ambiguities converts a reasoning response into entries keyed by field
// name. Only fields with more than one distinct option are kept.
func Ambiguities(details map[string]any) map[string]entity.AmbiguityEntry {
	out := make(map[string]entity.AmbiguityEntry)
	for label, v := range details {
		payload, ok := v.(map[string]any)
		if !ok {
			continue
		}
		opts := NormalizeOptions(payload["options"])
		if len(opts) <= 1 {
			continue
		}
		key := FieldKey(label)
		var reason string
		if r, ok := payload["reason"]; ok && r != nil {
			reason = entity.ValueOf(r).String()
		}
		out[key] = entity.AmbiguityEntry{FieldName: key, Options: opts, Reason: reason}
	}
	return out
}

// FieldKey maps a human label such as "Invoice Number" onto "invoice_number".
func FieldKey(label string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_")
}
