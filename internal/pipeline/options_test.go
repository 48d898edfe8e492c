package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	dec := json.NewDecoder(stringsReader(s))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&v))
	return v
}

func score(f float64) *float64 { return &f }

func TestNormalizeOptions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []entity.Option
	}{
		{
			name: "structured pairs",
			raw:  `[{"option":"INV-1","score":60},{"option":"INV-l","score":40}]`,
			want: []entity.Option{{Value: "INV-1", Score: score(60)}, {Value: "INV-l", Score: score(40)}},
		},
		{
			name: "flat sequence",
			raw:  `["21/09/2023", 50, "2023-09-21", "50"]`,
			want: []entity.Option{{Value: "21/09/2023", Score: score(50)}, {Value: "2023-09-21", Score: score(50)}},
		},
		{
			name: "non numeric score becomes nil",
			raw:  `["PKR 105000", "high", "105,000", 30]`,
			want: []entity.Option{{Value: "PKR 105000", Score: nil}, {Value: "105,000", Score: score(30)}},
		},
		{
			name: "odd trailing value dropped",
			raw:  `["a", 1, "b"]`,
			want: []entity.Option{{Value: "a", Score: score(1)}},
		},
		{
			name: "mixed list is treated as flat",
			raw:  `[{"option":"x","score":1}, "y", 2, "z"]`,
			want: []entity.Option{{Value: `{"option":"x","score":1}`, Score: nil}, {Value: "2", Score: nil}},
		},
		{
			name: "object missing score is treated as flat",
			raw:  `[{"option":"x"},{"option":"y","score":3}]`,
			want: []entity.Option{{Value: `{"option":"x"}`, Score: nil}},
		},
		{
			name: "duplicates collapse to first",
			raw:  `[{"option":"A","score":70},{"option":"A","score":30}]`,
			want: []entity.Option{{Value: "A", Score: score(70)}},
		},
		{
			name: "empty",
			raw:  `[]`,
			want: []entity.Option{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeOptions(decode(t, tt.raw)))
		})
	}
}

func TestClassifyOptions(t *testing.T) {
	assert.IsType(t, StructuredPairs{}, ClassifyOptions(decode(t, `[{"option":"a","score":1}]`)))
	assert.IsType(t, FlatSequence{}, ClassifyOptions(decode(t, `["a", 1]`)))
	assert.IsType(t, FlatSequence{}, ClassifyOptions(nil))
	assert.Empty(t, NormalizeOptions("lonely"))
}

func TestAmbiguities(t *testing.T) {
	details := decode(t, `{
		"Invoice Number": {"options": ["INV-2023-001", 60, "Invoice # INV-2023-001", 40], "reason": "label merged with value"},
		"Supplier Name": {"options": ["ABC Textiles", 100]},
		"invoice_date": {"options": [{"option":"21/09/2023","score":50},{"option":"2023-09-21","score":50}]},
		"total": "not an object"
	}`).(map[string]any)

	got := Ambiguities(details)
	require.Len(t, got, 2)

	inv := got["invoice_number"]
	assert.Equal(t, "invoice_number", inv.FieldName)
	assert.Equal(t, "label merged with value", inv.Reason)
	assert.Len(t, inv.Options, 2)

	date := got["invoice_date"]
	assert.Empty(t, date.Reason)
	assert.Equal(t, "2023-09-21", date.Options[1].Value)
}

func TestFieldKey(t *testing.T) {
	assert.Equal(t, "invoice_number", FieldKey("Invoice Number"))
	assert.Equal(t, "po_numbers", FieldKey(" PO Numbers "))
	assert.Equal(t, "hs_code", FieldKey("hs_code"))
}
