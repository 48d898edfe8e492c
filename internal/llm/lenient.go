package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no JSON object or array can be recovered.
var ErrNoJSON = errors.New("no json found in model output")

var reFenced = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// maxDecodeAttempts bounds how many '{' or '[' positions are tried per
// candidate text.
const maxDecodeAttempts = 64

// ExtractJSON recovers a list of JSON objects from free-form model output.
// It prefers a fenced code block, then the whole text, then the first
// decodable value carrying at least one object starting at any '{' or '['.
// Values without objects, such as "[1]" in prose, are skipped. Trailing
// prose after the value is ignored. A single object is returned as a
// one-element list and non-object array elements are dropped. An empty
// array is returned as an empty list when nothing better is found.
func ExtractJSON(text string) ([]map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoJSON
	}

	var candidates []string
	for _, m := range reFenced.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, text)

	sawEmpty := false
	for _, c := range candidates {
		objs, empty := firstObjects(c)
		if len(objs) > 0 {
			return objs, nil
		}
		sawEmpty = sawEmpty || empty
	}
	if sawEmpty {
		return []map[string]any{}, nil
	}
	return nil, ErrNoJSON
}

// ExtractJSONObject returns the first object recovered by ExtractJSON.
func ExtractJSONObject(text string) (map[string]any, error) {
	objs, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, ErrNoJSON
	}
	return objs[0], nil
}

// firstObjects decodes values starting at each '{' or '[' in s and returns
// the objects of the first one holding any. empty reports whether an empty
// array was decoded along the way. A decoded value is skipped as a whole.
func firstObjects(s string) (objs []map[string]any, empty bool) {
	attempts := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if attempts == maxDecodeAttempts {
			break
		}
		attempts++
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		if found := objects(v); len(found) > 0 {
			return found, empty
		}
		if arr, ok := v.([]any); ok && len(arr) == 0 {
			empty = true
		}
		i += int(dec.InputOffset()) - 1
	}
	return nil, empty
}

func objects(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, el := range t {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
