package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Enrich   EnrichConfig   `toml:"enrich"`
	Raster   RasterConfig   `toml:"raster"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Fields   FieldsConfig   `toml:"fields"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	LogLevel string         `toml:"log_level"`
}

// LLMConfig selects the vision model used for extraction and verification.
type LLMConfig struct {
	Provider          string        `toml:"provider"` // openai | gemini | vertex | anthropic
	Model             string        `toml:"model"`
	APIKey            string        `toml:"api_key"`
	BaseURL           string        `toml:"base_url"`
	ProjectID         string        `toml:"project_id"`
	Region            string        `toml:"region"`
	Temperature       float32       `toml:"temperature"`
	MaxTokens         int           `toml:"max_tokens"`
	Timeout           time.Duration `toml:"timeout"`
	MaxRetries        int           `toml:"max_retries"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Burst             int           `toml:"burst"`
}

// EnrichConfig holds the reasoning model used for ambiguity enrichment.
// Empty fields inherit from LLMConfig, except APIKey which only inherits
// when the provider is the same.
type EnrichConfig struct {
	Enabled     bool    `toml:"enabled"`
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	Temperature float32 `toml:"temperature"`
}

// RasterConfig holds PDF/image rasterization settings.
type RasterConfig struct {
	Pdftoppm      string `toml:"pdftoppm"`
	HeicConverter string `toml:"heic_converter"`
	DPI           int    `toml:"dpi"`
	Format        string `toml:"format"` // jpeg | png
	MaxPages      int    `toml:"max_pages"`
	OutputDir     string `toml:"output_dir"`
	Workers       int    `toml:"workers"`
}

// PipelineConfig bounds the fan-out at each nesting level.
type PipelineConfig struct {
	DocumentWorkers int    `toml:"document_workers"`
	PageWorkers     int    `toml:"page_workers"`
	Collapse        string `toml:"collapse"` // first | most_complete
}

// FieldsConfig points at the field configuration store.
type FieldsConfig struct {
	Path   string   `toml:"path"` // .json / .yaml file; empty uses DSN or defaults
	DSN    string   `toml:"dsn"`
	Preset string   `toml:"preset"`
	Select []string `toml:"select"`
}

// StorageConfig holds settings for remote (gs://) inputs.
type StorageConfig struct {
	DownloadDir string `toml:"download_dir"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	MaxConns         int32         `toml:"max_conns"`
	MinConns         int32         `toml:"min_conns"`
	MaxConnLifetime  time.Duration `toml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `toml:"max_conn_idle_time"`
	DialTimeout      time.Duration `toml:"dial_timeout"`
	StatementTimeout time.Duration `toml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr      string        `toml:"grpc_addr"`
	BatchWorkers  int           `toml:"batch_workers"`
	BatchQueue    int           `toml:"batch_queue"`
	BatchTimeout  time.Duration `toml:"batch_timeout"`
	BatchInterval time.Duration `toml:"batch_interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			Region:            "us-central1",
			Temperature:       0,
			MaxTokens:         4096,
			Timeout:           90 * time.Second,
			MaxRetries:        2,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Enrich: EnrichConfig{
			Enabled:     true,
			Temperature: 0.8,
		},
		Raster: RasterConfig{
			Pdftoppm:      "pdftoppm",
			HeicConverter: "magick",
			DPI:           300,
			Format:        "jpeg",
			OutputDir:     "./tmp/pages",
			Workers:       4,
		},
		Pipeline: PipelineConfig{
			DocumentWorkers: 4,
			PageWorkers:     4,
			Collapse:        "first",
		},
		Storage: StorageConfig{
			DownloadDir: "./tmp/inputs",
		},
		Database: DatabaseConfig{
			MaxConns:        5,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			GRPCAddr:      ":8080",
			BatchWorkers:  1,
			BatchQueue:    64,
			BatchTimeout:  15 * time.Minute,
			BatchInterval: 2 * time.Second,
		},
		LogLevel: "info",
	}
}

// LoadConfig builds the configuration from defaults, an optional TOML file
// and environment variables, in that order of precedence (env wins).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := toml.Unmarshal(b, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("parse %s", path), err)
		}
	}
	cfg.applyEnv()
	cfg.inheritEnrich()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = providerKey(c.LLM.Provider)
	}
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.ProjectID = getEnv("GOOGLE_CLOUD_PROJECT", c.LLM.ProjectID)
	c.LLM.Region = getEnv("GOOGLE_CLOUD_REGION", c.LLM.Region)
	c.LLM.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.MaxTokens = getEnvAsInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxRetries = getEnvAsInt("LLM_MAX_RETRIES", c.LLM.MaxRetries)
	c.LLM.RequestsPerSecond = getEnvAsFloat64("LLM_RPS", c.LLM.RequestsPerSecond)
	c.LLM.Burst = getEnvAsInt("LLM_BURST", c.LLM.Burst)

	c.Enrich.Enabled = getEnvAsBool("ENRICH_ENABLED", c.Enrich.Enabled)
	c.Enrich.Provider = strings.ToLower(getEnv("ENRICH_PROVIDER", c.Enrich.Provider))
	c.Enrich.Model = getEnv("ENRICH_MODEL", c.Enrich.Model)
	c.Enrich.APIKey = getEnv("ENRICH_API_KEY", c.Enrich.APIKey)
	c.Enrich.Temperature = getEnvAsFloat32("ENRICH_TEMPERATURE", c.Enrich.Temperature)

	c.Raster.Pdftoppm = getEnv("PDFTOPPM", c.Raster.Pdftoppm)
	c.Raster.HeicConverter = getEnv("HEIC_CONVERTER", c.Raster.HeicConverter)
	c.Raster.DPI = getEnvAsInt("RASTER_DPI", c.Raster.DPI)
	c.Raster.Format = getEnv("RASTER_FORMAT", c.Raster.Format)
	c.Raster.MaxPages = getEnvAsInt("RASTER_MAX_PAGES", c.Raster.MaxPages)
	c.Raster.OutputDir = getEnv("RASTER_OUTPUT_DIR", c.Raster.OutputDir)
	c.Raster.Workers = getEnvAsInt("RASTER_WORKERS", c.Raster.Workers)

	c.Pipeline.DocumentWorkers = getEnvAsInt("PIPELINE_DOCUMENT_WORKERS", c.Pipeline.DocumentWorkers)
	c.Pipeline.PageWorkers = getEnvAsInt("PIPELINE_PAGE_WORKERS", c.Pipeline.PageWorkers)
	c.Pipeline.Collapse = getEnv("PIPELINE_COLLAPSE", c.Pipeline.Collapse)

	c.Fields.Path = getEnv("FIELDS_PATH", c.Fields.Path)
	c.Fields.DSN = getEnv("FIELDS_DSN", c.Fields.DSN)
	c.Fields.Preset = getEnv("FIELDS_PRESET", c.Fields.Preset)
	if v := getEnv("FIELDS_SELECT", ""); v != "" {
		c.Fields.Select = splitList(v)
	}

	c.Storage.DownloadDir = getEnv("DOWNLOAD_DIR", c.Storage.DownloadDir)

	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.BatchWorkers = getEnvAsInt("BATCH_WORKERS", c.Server.BatchWorkers)
	c.Server.BatchQueue = getEnvAsInt("BATCH_QUEUE", c.Server.BatchQueue)
	c.Server.BatchTimeout = getEnvAsDuration("BATCH_TIMEOUT", c.Server.BatchTimeout)
	c.Server.BatchInterval = getEnvAsDuration("BATCH_INTERVAL", c.Server.BatchInterval)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func (c *Config) inheritEnrich() {
	if c.Enrich.Provider == "" {
		c.Enrich.Provider = c.LLM.Provider
	}
	if c.Enrich.Model == "" {
		c.Enrich.Model = c.LLM.Model
	}
	if c.Enrich.APIKey == "" {
		if c.Enrich.Provider == c.LLM.Provider {
			c.Enrich.APIKey = c.LLM.APIKey
		} else {
			c.Enrich.APIKey = providerKey(c.Enrich.Provider)
		}
	}
}

// EnrichLLM returns the LLM settings for the enrichment model.
func (c *Config) EnrichLLM() LLMConfig {
	out := c.LLM
	out.Provider = c.Enrich.Provider
	out.Model = c.Enrich.Model
	out.APIKey = c.Enrich.APIKey
	out.Temperature = c.Enrich.Temperature
	if out.Provider != c.LLM.Provider {
		out.BaseURL = ""
	}
	return out
}

// providerKey reads the conventional API key variable of a provider.
func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini", "anthropic":
		if c.LLM.APIKey == "" {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("api key is required for provider %q", c.LLM.Provider), ErrInvalidInput)
		}
	case "vertex":
		if c.LLM.ProjectID == "" {
			return NewAppError("CONFIG_ERROR", "GOOGLE_CLOUD_PROJECT is required for provider vertex", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown llm provider %q", c.LLM.Provider), ErrInvalidInput)
	}
	if c.LLM.Model == "" {
		return NewAppError("CONFIG_ERROR", "LLM_MODEL is required", ErrInvalidInput)
	}
	if c.Raster.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "RASTER_DPI must be positive", ErrInvalidInput)
	}
	if f := strings.ToLower(c.Raster.Format); f != "jpeg" && f != "png" {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("RASTER_FORMAT must be jpeg or png, got %q", c.Raster.Format), ErrInvalidInput)
	}
	if c.Pipeline.DocumentWorkers <= 0 || c.Pipeline.PageWorkers <= 0 {
		return NewAppError("CONFIG_ERROR", "pipeline workers must be positive", ErrInvalidInput)
	}
	if c.Pipeline.Collapse != "first" && c.Pipeline.Collapse != "most_complete" {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown collapse policy %q", c.Pipeline.Collapse), ErrInvalidInput)
	}
	return nil
}

// ValidateServer checks the settings only the daemon needs.
func (c *Config) ValidateServer() error {
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}
