package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOf(t *testing.T) {
	assert.Equal(t, "INV-001", ValueOf(" INV-001 ").String())
	assert.Equal(t, "1250.5", ValueOf(1250.5).String())
	assert.Equal(t, "42", ValueOf(json.Number("42")).String())
	assert.Equal(t, "", ValueOf(nil).String())
	assert.True(t, ValueOf(nil).IsEmpty())

	list := ValueOf([]any{"PO-1", 2.0, nil})
	require.True(t, list.IsList())
	assert.Equal(t, []string{"PO-1", "2", ""}, list.Items())
	assert.Equal(t, "PO-1, 2, ", list.String())
}

func TestValueJSON(t *testing.T) {
	in := []byte(`{"a":"x","b":12.50,"c":["1",2],"d":null,"e":[]}`)
	var f Fields
	require.NoError(t, json.Unmarshal(in, &f))

	assert.Equal(t, "x", f["a"].String())
	assert.Equal(t, "12.50", f["b"].String())
	assert.Equal(t, []string{"1", "2"}, f["c"].Items())
	assert.True(t, f["d"].IsEmpty())
	assert.True(t, f["e"].IsList())

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":"12.50","c":["1","2"],"d":"","e":[]}`, string(out))
}

func TestFieldsCloneIsIndependent(t *testing.T) {
	f := Fields{"po": List("1", "2"), "n": Text("x")}
	c := f.Clone()
	c["n"] = Text("y")

	assert.Equal(t, "x", f["n"].String())
	assert.True(t, f["po"].Equal(c["po"]))
	assert.Equal(t, 2, f.Filled())
	assert.Equal(t, []string{"n", "po"}, f.Names())
}

func TestFinalRecordJSON(t *testing.T) {
	score := 80.0
	rec := FinalRecord{
		Record: Record{
			DocumentID: "invoice_A",
			Page:       PageImage{DocumentID: "invoice_A", PageIndex: 0, ImagePath: "/tmp/invoice_A/invoice_A_page-1.jpg"},
			Fields:     Fields{"invoice_number": Text("123")},
		},
		Ambiguities: map[string]AmbiguityEntry{
			"invoice_number": {FieldName: "invoice_number", Options: []Option{{Value: "123", Score: &score}, {Value: "128"}}},
		},
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"document_id":"invoice_A",
		"page":{"document_id":"invoice_A","page_index":0,"image_path":"/tmp/invoice_A/invoice_A_page-1.jpg"},
		"fields":{"invoice_number":"123"},
		"ambiguities":{"invoice_number":{"field_name":"invoice_number","options":[{"option":"123","score":80},{"option":"128","score":null}]}}
	}`, string(b))
}
