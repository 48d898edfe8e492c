package entity

import "sort"

// Fields maps a field name to its extracted value.
type Fields map[string]Value

// NormalizeFields coerces a decoded model object into Fields.
func NormalizeFields(m map[string]any) Fields {
	out := make(Fields, len(m))
	for k, v := range m {
		out[k] = ValueOf(v)
	}
	return out
}

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if v.list {
			v = List(v.items...)
		}
		out[k] = v
	}
	return out
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Filled counts fields with a non-empty value.
func (f Fields) Filled() int {
	n := 0
	for _, v := range f {
		if !v.IsEmpty() {
			n++
		}
	}
	return n
}

// Record is one invoice reading tied to the page it came from. It is used for
// both the extracted and the verified form.
type Record struct {
	DocumentID string    `json:"document_id"`
	Page       PageImage `json:"page"`
	Fields     Fields    `json:"fields"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	r.Fields = r.Fields.Clone()
	return r
}

// Option is one alternative reading of an ambiguous field.
// Score is an opaque ranking hint and may be absent.
type Option struct {
	Value string   `json:"option"`
	Score *float64 `json:"score"`
}

// AmbiguityEntry lists the competing readings for one field.
type AmbiguityEntry struct {
	FieldName string   `json:"field_name"`
	Options   []Option `json:"options"`
	Reason    string   `json:"reason,omitempty"`
}

// FinalRecord is the pipeline's terminal output for one document.
type FinalRecord struct {
	Record
	Ambiguities map[string]AmbiguityEntry `json:"ambiguities,omitempty"`
}
