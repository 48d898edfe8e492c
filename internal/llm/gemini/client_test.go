package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{
			genai.Text("  [{\"a\":"),
			genai.Blob{MIMEType: "image/png", Data: []byte{1}},
			genai.Text("\"b\"}]\n"),
		}}},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
	}}
	assert.Equal(t, `[{"a":"b"}]`, responseText(resp))

	assert.Empty(t, responseText(nil))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))
}
