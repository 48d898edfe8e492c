package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

const extractSuffix = "Analyze the provided invoice image(s) and return the fields listed above for every invoice you find."

// ExtractStage reads invoice fields off page images, one model call per page.
type ExtractStage struct {
	Model       llm.Model
	Instruction string
	// RecordSchema, when set, is checked against every extracted object.
	// Mismatches are logged and the record is kept.
	RecordSchema map[string]any
	Workers      int
	Logger       *slog.Logger
}

// Run extracts every page independently. A page whose call or parse fails
// contributes no records. Records come back grouped by page in input order.
func (s *ExtractStage) Run(ctx context.Context, pages []entity.PageImage) ([]entity.Record, []Outcome) {
	logger := common.LoggerFrom(ctx, s.Logger)
	slots := make([][]entity.Record, len(pages))
	outcomes := make([]Outcome, len(pages))

	fanOut(ctx, len(pages), s.Workers, func(ctx context.Context, i int) {
		slots[i], outcomes[i] = s.page(ctx, logger, pages[i])
	}, func(i int, err error) {
		logger.Error("pipeline.extract.panic", "page", pages[i].ImagePath, "error", err)
		slots[i] = nil
		outcomes[i] = pageOutcome(constants.StageExtract, pages[i], constants.OutcomeFailed, 0, err)
	})

	var out []entity.Record
	for _, recs := range slots {
		out = append(out, recs...)
	}
	return out, outcomes
}

func (s *ExtractStage) page(ctx context.Context, logger *slog.Logger, page entity.PageImage) ([]entity.Record, Outcome) {
	start := time.Now()
	instruction := s.Instruction + "\n" + extractSuffix

	raw, err := s.Model.Generate(ctx, instruction, []string{page.ImagePath})
	if err != nil {
		logger.Warn("pipeline.extract.call_failed", "page", page.ImagePath, "error", err)
		return nil, pageOutcome(constants.StageExtract, page, constants.OutcomeFailed, 0,
			common.NewAppError("EXTRACT_CALL", page.ImagePath, asModelErr(err)))
	}
	objs, err := llm.ExtractJSON(raw)
	if err != nil {
		logger.Warn("pipeline.extract.parse_failed", "page", page.ImagePath, "output_bytes", len(raw))
		return nil, pageOutcome(constants.StageExtract, page, constants.OutcomeFailed, 0,
			common.NewAppError("EXTRACT_PARSE", page.ImagePath, common.ErrParse))
	}

	recs := make([]entity.Record, 0, len(objs))
	for _, obj := range objs {
		if len(obj) == 0 {
			continue
		}
		s.checkSchema(logger, page, obj)
		recs = append(recs, entity.Record{
			DocumentID: page.DocumentID,
			Page:       page,
			Fields:     entity.NormalizeFields(obj),
		})
	}
	logger.Debug("pipeline.extract.page_ok",
		"page", page.ImagePath,
		"records", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return recs, pageOutcome(constants.StageExtract, page, constants.OutcomeOK, len(recs), nil)
}

func (s *ExtractStage) checkSchema(logger *slog.Logger, page entity.PageImage, obj map[string]any) {
	if s.RecordSchema == nil {
		return
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return
	}
	if err := common.ValidateJSONAgainstSchema(s.RecordSchema, b); err != nil {
		logger.Warn("pipeline.extract.schema_mismatch", "page", page.ImagePath, "error", err)
	}
}

func pageOutcome(stage constants.Stage, page entity.PageImage, status constants.OutcomeStatus, records int, err error) Outcome {
	return Outcome{
		Stage:      stage,
		DocumentID: page.DocumentID,
		PageIndex:  page.PageIndex,
		Status:     status,
		Records:    records,
		Err:        err,
	}
}

// asModelErr makes sure a provider error matches common.ErrModelCall.
func asModelErr(err error) error {
	if errors.Is(err, common.ErrModelCall) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrModelCall, err)
}
