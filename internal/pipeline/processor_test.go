package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/fields"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/ocr"
)

// fakeRaster renders a fixed number of pages per source path.
type fakeRaster map[string]int

func (f fakeRaster) Rasterize(_ context.Context, paths []string) map[string][]entity.PageImage {
	out := make(map[string][]entity.PageImage)
	for _, p := range paths {
		id := ocr.DocumentID(p)
		pages := out[id]
		if pages == nil {
			pages = []entity.PageImage{}
		}
		for i := 0; i < f[p]; i++ {
			pages = append(pages, page(id, len(pages)))
		}
		out[id] = pages
	}
	return out
}

// invoiceModel answers each stage by looking at the instruction it receives.
func invoiceModel(t *testing.T) llm.Model {
	t.Helper()
	return llm.ModelFunc(func(_ context.Context, instruction string, images []string) (string, error) {
		if len(images) != 1 {
			return "", errors.New("expected one image")
		}
		img := images[0]
		switch {
		case strings.Contains(instruction, "Extracted JSON:"):
			if strings.Contains(img, "invoice_A") {
				return `[{"invoice_number": "A-100", "total_invoice_amount": "990"}]`, nil
			}
			return "", errors.New("verification unavailable")
		case strings.HasSuffix(instruction, extractSuffix):
			switch {
			case strings.HasSuffix(img, "invoice_A_0.jpg"):
				return "```json\n[{\"invoice_number\": \"A-10O\", \"total_invoice_amount\": \"990\"}]\n```", nil
			case strings.HasSuffix(img, "invoice_A_1.jpg"):
				return `{"invoice_number": "A-100", "total_invoice_amount": "990", "currency": "PKR"}`, nil
			case strings.HasSuffix(img, "invoice_B_0.jpg"):
				return `[{"invoice_number": "B-7"}]`, nil
			}
			return "[]", nil
		default:
			if strings.Contains(img, "invoice_B") {
				return `{"Invoice Number": {"options": ["B-7", 80, "B-1", 20], "reason": "faint digit"}}`, nil
			}
			return `{}`, nil
		}
	})
}

func TestProcess_EndToEnd(t *testing.T) {
	raster := fakeRaster{"in/invoice_A.pdf": 2, "in/invoice_B.jpg": 1}
	p := NewProcessor(invoiceModel(t), fields.DefaultSchema(), nil, WithRasterizer(raster), WithWorkers(2, 2))

	res, err := p.Process(context.Background(), []string{"in/invoice_A.pdf", "in/invoice_B.jpg"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, res.Records, 2)
	a, b := res.Records[0], res.Records[1]

	assert.Equal(t, "invoice_A", a.DocumentID)
	assert.Equal(t, 0, a.Page.PageIndex)
	assert.Equal(t, "A-100", a.Fields["invoice_number"].String())
	assert.Nil(t, a.Ambiguities)

	assert.Equal(t, "invoice_B", b.DocumentID)
	assert.Equal(t, "B-7", b.Fields["invoice_number"].String())
	require.Contains(t, b.Ambiguities, "invoice_number")
	assert.Len(t, b.Ambiguities["invoice_number"].Options, 2)

	require.Len(t, res.Documents, 2)
	assert.Equal(t, "invoice_A", res.Documents[0].DocumentID)
	assert.Equal(t, 2, res.Documents[0].Pages)
	assert.Equal(t, 2, res.Documents[0].Records)
	assert.Equal(t, constants.OutcomeOK, res.Documents[1].Status)
}

func TestProcess_MostCompleteCollapse(t *testing.T) {
	raster := fakeRaster{"invoice_A.pdf": 2}
	model := invoiceModel(t)
	recs, err := ProcessInvoices(context.Background(), model, nil, []string{"invoice_A.pdf"}, nil,
		WithRasterizer(raster),
		WithCollapse(CollapseMostComplete),
		WithEnrichModel(nil),
	)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].Page.PageIndex)
	assert.Equal(t, "PKR", recs[0].Fields["currency"].String())
}

func TestProcess_AlwaysFailingModel(t *testing.T) {
	failing := llm.ModelFunc(func(context.Context, string, []string) (string, error) {
		return "", errors.New("no credentials")
	})
	raster := fakeRaster{"a.pdf": 3, "b.png": 1}
	p := NewProcessor(failing, nil, nil, WithRasterizer(raster))

	res, err := p.Process(context.Background(), []string{"a.pdf", "b.png"}, []string{"invoice_number"})
	require.NoError(t, err)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	require.Len(t, res.Documents, 2)
	for _, d := range res.Documents {
		assert.Equal(t, constants.OutcomeFailed, d.Status)
		assert.Error(t, d.Err)
	}
}

func TestProcess_RasterFailureIsolated(t *testing.T) {
	raster := fakeRaster{"invoice_B.jpg": 1}
	p := NewProcessor(invoiceModel(t), nil, nil, WithRasterizer(raster))

	res, err := p.Process(context.Background(), []string{"corrupt.pdf", "invoice_B.jpg"}, nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "invoice_B", res.Records[0].DocumentID)
	assert.Equal(t, "corrupt", res.Documents[0].DocumentID)
	assert.Equal(t, constants.OutcomeFailed, res.Documents[0].Status)
	assert.Equal(t, constants.StageRasterize, res.Documents[0].Stages[0].Stage)
}

func TestProcess_EmptyInput(t *testing.T) {
	p := NewProcessor(invoiceModel(t), nil, nil, WithRasterizer(fakeRaster{}))
	_, err := p.Process(context.Background(), nil, nil)
	assert.ErrorIs(t, err, common.ErrNoInput)
}

func TestProcess_SelectionShapesInstructions(t *testing.T) {
	var seen []string
	model := llm.ModelFunc(func(_ context.Context, instruction string, _ []string) (string, error) {
		if strings.HasSuffix(instruction, extractSuffix) {
			seen = append(seen, instruction)
		}
		return "[]", nil
	})
	p := NewProcessor(model, nil, nil, WithRasterizer(fakeRaster{"x.png": 1}), WithEnrichModel(nil))
	_, err := p.Process(context.Background(), []string{"x.png"}, []string{"currency"})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Contains(t, seen[0], "1. currency [Currency]")
	assert.NotContains(t, seen[0], "invoice_number")
}

func TestGroupDocuments(t *testing.T) {
	pages := map[string][]entity.PageImage{
		"b":     {page("b", 0)},
		"a":     {page("a", 0), page("a", 1)},
		"extra": {page("extra", 0)},
	}
	groups := GroupDocuments([]string{"dir/b.png", "a.pdf", "other/b.pdf"}, pages)
	require.Len(t, groups, 3)
	assert.Equal(t, "b", groups[0].DocumentID)
	assert.Equal(t, "a", groups[1].DocumentID)
	assert.Len(t, groups[1].Pages, 2)
	assert.Equal(t, "extra", groups[2].DocumentID)
}
