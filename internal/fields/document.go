package fields

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// Format is a serialization format for field configuration documents.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension (default JSON).
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ImportMode controls how an imported document combines with the schema.
type ImportMode string

const (
	ImportReplace ImportMode = "replace"
	ImportMerge   ImportMode = "merge"
)

// Document is the portable shape of a schema.
type Document struct {
	Fields  []FieldDefinition   `json:"fields" yaml:"fields"`
	Presets map[string][]string `json:"presets" yaml:"presets"`
}

// Document returns the schema as a Document.
func (s *Schema) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := Document{
		Fields:  make([]FieldDefinition, len(s.fields)),
		Presets: make(map[string][]string, len(s.presets)),
	}
	for i, f := range s.fields {
		doc.Fields[i] = f.Clone()
	}
	for k, v := range s.presets {
		doc.Presets[k] = append([]string{}, v...)
	}
	return doc
}

// Export serializes the schema.
func (s *Schema) Export(format Format) ([]byte, error) {
	doc := s.Document()
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatJSON, "":
		return json.MarshalIndent(doc, "", "  ")
	default:
		return nil, common.NewAppError("EXPORT_ERROR", fmt.Sprintf("unknown format %q", format), common.ErrInvalidInput)
	}
}

// Import applies a serialized document. Replace swaps the whole schema;
// merge updates fields with matching names, appends new ones and overwrites
// presets with matching names. The schema is unchanged on error.
func (s *Schema) Import(data []byte, format Format, mode ImportMode) error {
	doc, err := ParseDocument(data, format)
	if err != nil {
		return err
	}
	return s.Apply(doc, mode)
}

// Apply merges or replaces the schema contents with doc.
func (s *Schema) Apply(doc Document, mode ImportMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *Schema
	switch mode {
	case ImportReplace, "":
		n, err := NewSchema(doc.Fields, doc.Presets)
		if err != nil {
			return err
		}
		next = n
	case ImportMerge:
		next = &Schema{
			fields:  append([]FieldDefinition(nil), s.fields...),
			presets: make(map[string][]string, len(s.presets)),
		}
		next.reindex()
		for k, v := range s.presets {
			next.presets[k] = append([]string(nil), v...)
		}
		for _, f := range doc.Fields {
			var err error
			if _, exists := next.index[f.Name]; exists {
				err = next.update(f)
			} else {
				err = next.add(f)
			}
			if err != nil {
				return err
			}
		}
		for name, names := range doc.Presets {
			if err := next.addPreset(name, names); err != nil {
				return err
			}
		}
	default:
		return common.NewAppError("IMPORT_ERROR", fmt.Sprintf("unknown import mode %q", mode), common.ErrInvalidInput)
	}

	s.fields, s.index, s.presets = next.fields, next.index, next.presets
	return nil
}

// ParseDocument decodes and validates a configuration document.
func ParseDocument(data []byte, format Format) (Document, error) {
	raw := data
	if format == FormatYAML {
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return Document{}, common.NewAppError("IMPORT_ERROR", "decode yaml", err)
		}
		b, err := json.Marshal(generic)
		if err != nil {
			return Document{}, common.NewAppError("IMPORT_ERROR", "yaml is not json compatible", err)
		}
		raw = b
	}
	if err := common.ValidateJSONAgainstSchema(documentJSONSchema(), raw); err != nil {
		return Document{}, common.NewAppError("IMPORT_ERROR", "invalid field configuration", fmt.Errorf("%w: %v", common.ErrValidation, err))
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, common.NewAppError("IMPORT_ERROR", "decode document", err)
	}
	return doc, nil
}

func documentJSONSchema() map[string]any {
	types := make([]any, 0, len(constants.DataTypes))
	for _, dt := range constants.DataTypes {
		types = append(types, string(dt))
	}
	field := map[string]any{
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name":             map[string]any{"type": "string", "minLength": 1},
			"label":            map[string]any{"type": "string"},
			"description":      map[string]any{"type": "string"},
			"data_type":        map[string]any{"enum": types},
			"required":         map[string]any{"type": "boolean"},
			"default_value":    map[string]any{"type": []any{"string", "null"}},
			"validation_rules": map[string]any{"type": []any{"object", "null"}},
			"extraction_hints": map[string]any{"type": "string"},
		},
	}
	return map[string]any{
		"type":     "object",
		"required": []any{"fields"},
		"properties": map[string]any{
			"fields": map[string]any{"type": "array", "items": field},
			"presets": map[string]any{
				"type": []any{"object", "null"},
				"additionalProperties": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
		},
	}
}

// RecordJSONSchema describes a single extracted record for the active fields.
// It is permissive about presence and checks value shapes only.
func RecordJSONSchema(active []FieldDefinition) map[string]any {
	props := make(map[string]any, len(active))
	for _, f := range active {
		props[f.Name] = valueProp(f)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties":           props,
	}
}

func valueProp(f FieldDefinition) map[string]any {
	scalar := []any{"string", "number", "null"}
	switch f.DataType {
	case constants.DataTypeArray:
		return map[string]any{
			"anyOf": []any{
				map[string]any{"type": "array", "items": map[string]any{"type": scalar}},
				map[string]any{"type": scalar},
			},
		}
	case constants.DataTypeNumber, constants.DataTypeCurrency:
		return map[string]any{"type": scalar}
	default:
		return map[string]any{"type": []any{"string", "number", "boolean", "null"}}
	}
}
