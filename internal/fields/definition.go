// Package fields owns the configurable set of invoice fields and renders it
// into the instructions sent to the vision model.
package fields

import (
	"fmt"
	"math"
	"strconv"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// FieldDefinition describes one field the model is asked to extract.
type FieldDefinition struct {
	Name            string             `json:"name" yaml:"name"`
	Label           string             `json:"label" yaml:"label"`
	Description     string             `json:"description" yaml:"description"`
	DataType        constants.DataType `json:"data_type" yaml:"data_type"`
	Required        bool               `json:"required" yaml:"required"`
	DefaultValue    string             `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	ValidationRules map[string]any     `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`
	ExtractionHints string             `json:"extraction_hints,omitempty" yaml:"extraction_hints,omitempty"`
}

// Format returns the date format rule, if any.
func (f FieldDefinition) Format() (string, bool) {
	if f.DataType != constants.DataTypeDate {
		return "", false
	}
	s, ok := f.ValidationRules[constants.RuleFormat].(string)
	return s, ok && s != ""
}

// MinValue returns the min_value rule for numeric fields.
func (f FieldDefinition) MinValue() (float64, bool) {
	if !f.DataType.IsNumeric() {
		return 0, false
	}
	v, ok := f.ValidationRules[constants.RuleMinValue].(float64)
	return v, ok
}

// ItemType returns the element type of an array field.
func (f FieldDefinition) ItemType() (constants.DataType, bool) {
	if f.DataType != constants.DataTypeArray {
		return "", false
	}
	s, ok := f.ValidationRules[constants.RuleItemType].(string)
	if !ok {
		return "", false
	}
	dt, err := constants.ParseDataType(s)
	return dt, err == nil
}

// Clone returns a copy that shares no maps with f.
func (f FieldDefinition) Clone() FieldDefinition {
	if f.ValidationRules != nil {
		rules := make(map[string]any, len(f.ValidationRules))
		for k, v := range f.ValidationRules {
			rules[k] = v
		}
		f.ValidationRules = rules
	}
	return f
}

// normalize fills defaults and canonicalizes rule values so that definitions
// compare equal whichever format they were decoded from.
func (f FieldDefinition) normalize() FieldDefinition {
	f = f.Clone()
	if f.DataType == "" {
		f.DataType = constants.DataTypeText
	}
	if f.Label == "" {
		f.Label = f.Name
	}
	if len(f.ValidationRules) == 0 {
		f.ValidationRules = nil
		return f
	}
	for k, v := range f.ValidationRules {
		if n, ok := toFloat(v); ok {
			f.ValidationRules[k] = n
		}
	}
	return f
}

// Validate checks the definition invariants.
func (f FieldDefinition) Validate() error {
	v := common.NewValidator()
	v.Field("name", f.Name, common.Required, common.Identifier, common.MaxLength(64)).
		Field("label", f.Label, common.MaxLength(128))

	types := make([]string, 0, len(constants.DataTypes))
	for _, dt := range constants.DataTypes {
		types = append(types, string(dt))
	}
	v.Field("data_type", string(f.DataType), common.OneOf(types...))

	for key, val := range f.ValidationRules {
		switch key {
		case constants.RuleFormat:
			_, isString := val.(string)
			v.Check(f.DataType == constants.DataTypeDate, "validation_rules."+key, val, "only applies to date fields").
				Check(isString, "validation_rules."+key, val, "must be a string")
		case constants.RuleMinValue:
			_, isNumber := toFloat(val)
			v.Check(f.DataType.IsNumeric(), "validation_rules."+key, val, "only applies to number and currency fields").
				Check(isNumber, "validation_rules."+key, val, "must be a number")
		case constants.RuleItemType:
			s, _ := val.(string)
			_, err := constants.ParseDataType(s)
			v.Check(f.DataType == constants.DataTypeArray, "validation_rules."+key, val, "only applies to array fields").
				Check(err == nil && s != "" && s != string(constants.DataTypeArray), "validation_rules."+key, val, "must name a scalar data type")
		}
	}
	if err := v.Error(); err != nil {
		return fmt.Errorf("field %q: %w", f.Name, err)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case interface{ String() string }:
		f, err := strconv.ParseFloat(t.String(), 64)
		return f, err == nil
	}
	return 0, false
}
