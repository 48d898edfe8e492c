package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []map[string]any
	}{
		{
			name: "fenced array",
			in:   "Here you go:\n```json\n[{\"invoice_number\": \"A1\"}]\n```\nThanks!",
			want: []map[string]any{{"invoice_number": "A1"}},
		},
		{
			name: "fenced object wrapped",
			in:   "```json\n{\"invoice_number\": \"A1\"}\n```",
			want: []map[string]any{{"invoice_number": "A1"}},
		},
		{
			name: "fence without language tag",
			in:   "```\n[{\"a\": \"b\"}]\n```",
			want: []map[string]any{{"a": "b"}},
		},
		{
			name: "bare object",
			in:   `{"a": "b"}`,
			want: []map[string]any{{"a": "b"}},
		},
		{
			name: "trailing prose with braces",
			in:   `[{"a": "b"}] Note: {missing} fields were null.`,
			want: []map[string]any{{"a": "b"}},
		},
		{
			name: "leading prose",
			in:   `The result is {"total": 12.50}`,
			want: []map[string]any{{"total": json.Number("12.50")}},
		},
		{
			name: "non-object elements dropped",
			in:   `[{"a": "b"}, 3, "x", {"c": null}]`,
			want: []map[string]any{{"a": "b"}, {"c": nil}},
		},
		{
			name: "bracketed prose before object",
			in:   "See note [1] below.\n{\"invoice_number\": \"42\"}",
			want: []map[string]any{{"invoice_number": "42"}},
		},
		{
			name: "fenced scalar list then object",
			in:   "```json\n[1, 2]\n```\nActually: [{\"a\": \"b\"}]",
			want: []map[string]any{{"a": "b"}},
		},
		{
			name: "empty array",
			in:   `[]`,
			want: []map[string]any{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractJSON_NotJSON(t *testing.T) {
	for _, in := range []string{"", "not json", "{broken", "```json\n{oops}\n```", "pages [1] and [2, 3]"} {
		_, err := ExtractJSON(in)
		assert.ErrorIs(t, err, ErrNoJSON, in)
	}
}

func TestExtractJSON_BoundedAttempts(t *testing.T) {
	in := strings.Repeat("[", 100000) + `{"a": "b"}`
	_, err := ExtractJSON(in)
	assert.ErrorIs(t, err, ErrNoJSON)

	near := strings.Repeat("[", maxDecodeAttempts-1) + ` {"a": "b"}`
	got, err := ExtractJSON(near)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"a": "b"}}, got)
}

func TestExtractJSONObject(t *testing.T) {
	obj, err := ExtractJSONObject(`[{"x": "1"}, {"y": "2"}]`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": "1"}, obj)

	_, err = ExtractJSONObject(`[]`)
	assert.ErrorIs(t, err, ErrNoJSON)
}
