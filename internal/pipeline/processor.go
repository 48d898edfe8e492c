// Package pipeline turns invoice documents into one structured record each.
//
// A run rasterizes the inputs, then pushes every document through three
// model-backed stages: extraction reads the fields off each page,
// verification re-checks each reading against its page and enrichment
// attaches alternative readings for ambiguous fields. Failures are isolated
// per page and per document; they shrink the output but never abort a run.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/fields"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/ocr"
)

// Rasterizer renders source files into page images keyed by document ID.
type Rasterizer interface {
	Rasterize(ctx context.Context, paths []string) map[string][]entity.PageImage
}

// DocumentOutcome summarises one document's run.
type DocumentOutcome struct {
	DocumentID string                  `json:"document_id"`
	Pages      int                     `json:"pages"`
	Records    int                     `json:"records"`
	Status     constants.OutcomeStatus `json:"status"`
	Stages     []Outcome               `json:"stages,omitempty"`
	Err        error                   `json:"-"`
}

// Result is the output of Processor.Process.
type Result struct {
	RunID     string               `json:"run_id"`
	Records   []entity.FinalRecord `json:"records"`
	Documents []DocumentOutcome    `json:"documents"`
}

// Processor coordinates rasterization and the extract, verify and enrich stages.
type Processor struct {
	Logger          *slog.Logger
	Model           llm.Model
	EnrichModel     llm.Model
	Schema          *fields.Schema
	Rasterizer      Rasterizer
	Collapse        CollapsePolicy
	DocumentWorkers int
	PageWorkers     int
	CheckRecords    bool
}

// Option customises a Processor.
type Option func(*Processor)

// WithEnrichModel sets the reasoning model used by enrichment. Nil turns
// enrichment off and records pass through unchanged.
func WithEnrichModel(m llm.Model) Option {
	return func(p *Processor) { p.EnrichModel = m }
}

func WithRasterizer(r Rasterizer) Option {
	return func(p *Processor) { p.Rasterizer = r }
}

func WithCollapse(c CollapsePolicy) Option {
	return func(p *Processor) { p.Collapse = c }
}

// WithWorkers bounds the documents processed at once and the pages handled
// at once inside each stage.
func WithWorkers(documents, pages int) Option {
	return func(p *Processor) {
		if documents > 0 {
			p.DocumentWorkers = documents
		}
		if pages > 0 {
			p.PageWorkers = pages
		}
	}
}

// WithRecordChecks validates every extracted object against the active
// fields' JSON schema and logs mismatches.
func WithRecordChecks(on bool) Option {
	return func(p *Processor) { p.CheckRecords = on }
}

// NewProcessor wires a processor around model. The enrichment model
// defaults to model and the schema to the built-in invoice fields.
func NewProcessor(model llm.Model, schema *fields.Schema, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if schema == nil {
		schema = fields.DefaultSchema()
	}
	p := &Processor{
		Logger:          logger,
		Model:           model,
		EnrichModel:     model,
		Schema:          schema,
		Collapse:        CollapseFirst,
		DocumentWorkers: 4,
		PageWorkers:     4,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.Rasterizer == nil {
		p.Rasterizer = ocr.NewRasterizer(ocr.Config{}, logger)
	}
	return p
}

// Process runs the whole pipeline over paths. It returns at most one record
// per document; documents whose pages all failed are absent from Records
// but reported in Documents. Only an empty input is an error.
func (p *Processor) Process(ctx context.Context, paths []string, selection []string) (Result, error) {
	if len(paths) == 0 {
		return Result{}, common.NewAppError("NO_INPUT", "no source documents given", common.ErrNoInput)
	}
	rid := uuid.NewString()
	ctx = common.WithRunID(ctx, rid)
	logger := common.LoggerFrom(ctx, p.Logger)
	start := time.Now()

	active := p.Schema.ActiveFields(selection)
	plan := p.stages(active)
	logger.Info("pipeline.run.start", "sources", len(paths), "fields", len(active), "collapse", p.Collapse)

	pages := p.Rasterizer.Rasterize(ctx, paths)
	groups := GroupDocuments(paths, pages)

	perDoc := make([][]entity.FinalRecord, len(groups))
	docs := make([]DocumentOutcome, len(groups))
	fanOut(ctx, len(groups), p.DocumentWorkers, func(ctx context.Context, i int) {
		perDoc[i], docs[i] = plan.runDocument(ctx, groups[i])
	}, func(i int, err error) {
		logger.Error("pipeline.document.panic", "document_id", groups[i].DocumentID, "error", err)
		perDoc[i] = nil
		docs[i] = DocumentOutcome{
			DocumentID: groups[i].DocumentID,
			Pages:      len(groups[i].Pages),
			Status:     constants.OutcomeFailed,
			Err:        err,
		}
	})

	var all []entity.FinalRecord
	for _, recs := range perDoc {
		all = append(all, recs...)
	}
	records := p.Collapse.Collapse(all)

	logger.Info("pipeline.run.done",
		"documents", len(groups),
		"records", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{RunID: rid, Records: records, Documents: docs}, nil
}

// ProcessInvoices is a one-call entry point returning only the records.
func ProcessInvoices(ctx context.Context, model llm.Model, schema *fields.Schema, paths, selection []string, opts ...Option) ([]entity.FinalRecord, error) {
	res, err := NewProcessor(model, schema, nil, opts...).Process(ctx, paths, selection)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// GroupDocuments orders the rasterized pages by the first appearance of each
// document's stem in paths. Unexpected keys follow in sorted order.
func GroupDocuments(paths []string, pages map[string][]entity.PageImage) []entity.DocumentGroup {
	groups := make([]entity.DocumentGroup, 0, len(pages))
	seen := make(map[string]bool, len(pages))
	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		groups = append(groups, entity.DocumentGroup{DocumentID: id, Pages: pages[id]})
	}
	for _, path := range paths {
		add(ocr.DocumentID(path))
	}
	var rest []string
	for id := range pages {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		add(id)
	}
	return groups
}

type stagePlan struct {
	extract *ExtractStage
	verify  *VerifyStage
	enrich  *EnrichStage
	logger  *slog.Logger
}

func (p *Processor) stages(active []fields.FieldDefinition) stagePlan {
	ex := &ExtractStage{
		Model:       p.Model,
		Instruction: fields.ExtractionInstruction(active),
		Workers:     p.PageWorkers,
		Logger:      p.Logger,
	}
	if p.CheckRecords {
		ex.RecordSchema = fields.RecordJSONSchema(active)
	}
	return stagePlan{
		extract: ex,
		verify: &VerifyStage{
			Model:       p.Model,
			Instruction: fields.VerificationInstruction(active),
			Workers:     p.PageWorkers,
			Logger:      p.Logger,
		},
		enrich: &EnrichStage{
			Model:       p.EnrichModel,
			Instruction: fields.EnrichmentInstruction(active),
			Workers:     p.PageWorkers,
			Logger:      p.Logger,
		},
		logger: p.Logger,
	}
}

func (sp stagePlan) runDocument(ctx context.Context, g entity.DocumentGroup) ([]entity.FinalRecord, DocumentOutcome) {
	ctx = common.WithDocumentID(ctx, g.DocumentID)
	logger := common.LoggerFrom(ctx, sp.logger)
	doc := DocumentOutcome{DocumentID: g.DocumentID, Pages: len(g.Pages)}

	if len(g.Pages) == 0 {
		doc.Status = constants.OutcomeFailed
		doc.Err = common.NewAppError("NO_PAGES", g.DocumentID, common.ErrInvalidInput)
		doc.Stages = []Outcome{{Stage: constants.StageRasterize, DocumentID: g.DocumentID, Status: constants.OutcomeFailed, Err: doc.Err}}
		logger.Warn("pipeline.document.no_pages")
		return nil, doc
	}

	extracted, exOut := sp.extract.Run(ctx, g.Pages)
	doc.Stages = append(doc.Stages, exOut...)
	if len(extracted) == 0 {
		doc.Status = constants.OutcomeFailed
		doc.Err = common.NewAppError("NO_RECORDS", g.DocumentID, common.ErrParse)
		logger.Warn("pipeline.document.no_records", "pages", len(g.Pages))
		return nil, doc
	}

	verified, vOut := sp.verify.Run(ctx, extracted)
	doc.Stages = append(doc.Stages, vOut...)

	final, enOut := sp.enrich.Run(ctx, verified)
	doc.Stages = append(doc.Stages, enOut...)

	for i := range final {
		final[i].DocumentID = g.DocumentID
	}
	doc.Records = len(final)
	doc.Status = constants.OutcomeOK
	logger.Info("pipeline.document.ok", "pages", len(g.Pages), "records", len(final))
	return final, doc
}
