package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 300, cfg.Raster.DPI)
	assert.Equal(t, "first", cfg.Pipeline.Collapse)
	assert.Equal(t, "openai", cfg.Enrich.Provider)
	assert.Equal(t, "sk-test", cfg.Enrich.APIKey)
	assert.InDelta(t, 0.8, cfg.Enrich.Temperature, 1e-6)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[llm]
provider = "gemini"
model = "gemini-1.5-pro"
api_key = "from-file"

[enrich]
model = "gemini-1.5-flash"

[pipeline]
document_workers = 2
page_workers = 3
collapse = "most_complete"

[fields]
select = ["invoice_number", "total_invoice_amount"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("PIPELINE_PAGE_WORKERS", "7")
	t.Setenv("RASTER_DPI", "150")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "from-file", cfg.LLM.APIKey)
	assert.Equal(t, 2, cfg.Pipeline.DocumentWorkers)
	assert.Equal(t, 7, cfg.Pipeline.PageWorkers)
	assert.Equal(t, 150, cfg.Raster.DPI)
	assert.Equal(t, "most_complete", cfg.Pipeline.Collapse)
	assert.Equal(t, []string{"invoice_number", "total_invoice_amount"}, cfg.Fields.Select)

	enrich := cfg.EnrichLLM()
	assert.Equal(t, "gemini-1.5-flash", enrich.Model)
	assert.Equal(t, "from-file", enrich.APIKey)
	assert.Equal(t, 90*time.Second, enrich.Timeout)
}

func TestLoadConfig_BadFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing key", func(c *Config) { c.LLM.APIKey = "" }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "mystery" }},
		{"vertex without project", func(c *Config) { c.LLM.Provider = "vertex"; c.LLM.ProjectID = "" }},
		{"bad dpi", func(c *Config) { c.Raster.DPI = 0 }},
		{"bad format", func(c *Config) { c.Raster.Format = "tiff" }},
		{"bad workers", func(c *Config) { c.Pipeline.PageWorkers = 0 }},
		{"bad collapse", func(c *Config) { c.Pipeline.Collapse = "last" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LLM.APIKey = "k"
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	v.Field("name", "invoice_number", Required, Identifier, MaxLength(64)).
		Field("data_type", "currency", OneOf("text", "currency"))
	assert.False(t, v.HasErrors())
	assert.NoError(t, v.Error())

	v = NewValidator()
	v.Field("name", "Invoice Number", Identifier).
		Field("label", " ", Required).
		Field("data_type", "blob", OneOf("text")).
		Check(false, "validation_rules", "x", "bad rule")
	require.Len(t, v.Errors(), 4)
	assert.ErrorIs(t, v.Error(), ErrValidation)
	assert.Contains(t, v.ErrorMessage(), "must be one of text")
}

func TestStatusFromError(t *testing.T) {
	assert.Nil(t, StatusFromError(nil))
	assert.Contains(t, StatusFromError(WrapError(ErrNoInput, "process")).Error(), "InvalidArgument")
	assert.Contains(t, StatusFromError(ErrNotFound).Error(), "NotFound")
	assert.Contains(t, StatusFromError(errors.New("boom")).Error(), "Internal")
}
