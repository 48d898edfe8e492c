package pipeline

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// OptionList is the raw shape a model used for one field's alternatives.
// It is either StructuredPairs or FlatSequence.
type OptionList interface {
	options() []entity.Option
}

// StructuredPair is one {"option": ..., "score": ...} object.
type StructuredPair struct {
	Option any
	Score  any
}

// StructuredPairs is a list where every element is an option object.
type StructuredPairs []StructuredPair

// FlatSequence is an alternating [value, score, value, score, ...] list.
// A trailing value without a score is dropped.
type FlatSequence []any

func (p StructuredPairs) options() []entity.Option {
	out := make([]entity.Option, 0, len(p))
	for _, sp := range p {
		out = append(out, entity.Option{Value: optionText(sp.Option), Score: parseScore(sp.Score)})
	}
	return out
}

func (f FlatSequence) options() []entity.Option {
	out := make([]entity.Option, 0, len(f)/2)
	for i := 0; i+1 < len(f); i += 2 {
		out = append(out, entity.Option{Value: optionText(f[i]), Score: parseScore(f[i+1])})
	}
	return out
}

// ClassifyOptions decides which shape raw has. It is StructuredPairs only
// when every element is an object carrying both "option" and "score".
func ClassifyOptions(raw any) OptionList {
	items, ok := raw.([]any)
	if !ok {
		if raw == nil {
			return FlatSequence{}
		}
		return FlatSequence{raw}
	}
	pairs := make(StructuredPairs, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return FlatSequence(items)
		}
		opt, hasOpt := m["option"]
		score, hasScore := m["score"]
		if !hasOpt || !hasScore {
			return FlatSequence(items)
		}
		pairs = append(pairs, StructuredPair{Option: opt, Score: score})
	}
	return pairs
}

// NormalizeOptions turns a raw options value into distinct options. Options
// are compared by their text; the first occurrence wins.
func NormalizeOptions(raw any) []entity.Option {
	return distinct(ClassifyOptions(raw).options())
}

func distinct(opts []entity.Option) []entity.Option {
	seen := make(map[string]struct{}, len(opts))
	out := make([]entity.Option, 0, len(opts))
	for _, o := range opts {
		if _, dup := seen[o.Value]; dup {
			continue
		}
		seen[o.Value] = struct{}{}
		out = append(out, o)
	}
	return out
}

func optionText(v any) string {
	return entity.ValueOf(v).String()
}

// parseScore returns nil for anything that is not a number.
func parseScore(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return nil
		}
		f = x
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = x
	default:
		return nil
	}
	return &f
}
