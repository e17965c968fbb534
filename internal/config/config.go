// Package config provides configuration loading for docmind.
//
// Configuration comes from a YAML file overlaid with DOCMIND_* environment
// variables, then defaults are applied and the result is validated.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds the complete docmind configuration.
type Config struct {
	Data        DataConfig        `koanf:"data"`
	NATS        NATSConfig        `koanf:"nats"`
	Database    DatabaseConfig    `koanf:"database"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Chromem     ChromemConfig     `koanf:"chromem"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Intake      IntakeConfig      `koanf:"intake"`
}

// DataConfig locates uploaded documents. Files live at <dir>/<group>/<file>.
type DataConfig struct {
	Dir string `koanf:"dir"`
}

// NATSConfig holds the JetStream queue settings.
type NATSConfig struct {
	URL            string   `koanf:"url"`
	Stream         string   `koanf:"stream"`
	Subject        string   `koanf:"subject"`
	Durable        string   `koanf:"durable"`
	AckWait        Duration `koanf:"ack_wait"`
	DroppedStream  string   `koanf:"dropped_stream"`
	DroppedSubject string   `koanf:"dropped_subject"`
	DisableDropped bool     `koanf:"disable_dropped"`
	ConnectTimeout Duration `koanf:"connect_timeout"`
}

// DatabaseConfig holds metadata store settings.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver       string `koanf:"driver"`
	DSN          Secret `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	LogLevel     string `koanf:"log_level"`
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	// Provider is "qdrant" or "chromem".
	Provider string `koanf:"provider"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	APIKey         Secret   `koanf:"api_key"`
	UseTLS         bool     `koanf:"use_tls"`
	RequestTimeout Duration `koanf:"request_timeout"`
	RetryAttempts  int      `koanf:"retry_attempts"`
}

// ChromemConfig holds embedded vector store settings.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// EmbeddingsConfig holds the OpenAI-compatible embedding endpoint settings.
type EmbeddingsConfig struct {
	BaseURL     string `koanf:"base_url"`
	Model       string `koanf:"model"`
	APIKey      Secret `koanf:"api_key"`
	BatchSize   int    `koanf:"batch_size"`
	Concurrency int    `koanf:"concurrency"`
}

// LLMConfig holds the chat model settings used for summaries and mind-maps.
type LLMConfig struct {
	BaseURL           string  `koanf:"base_url"`
	Model             string  `koanf:"model"`
	APIKey            Secret  `koanf:"api_key"`
	Temperature       float64 `koanf:"temperature"`
	MaxTokens         int     `koanf:"max_tokens"`
	RequestsPerMinute int     `koanf:"requests_per_minute"`
}

// PipelineConfig holds chunking policy and per-stage timeouts.
type PipelineConfig struct {
	ChunkSize      int      `koanf:"chunk_size"`
	ChunkOverlap   int      `koanf:"chunk_overlap"`
	ExtractTimeout Duration `koanf:"extract_timeout"`
	IndexTimeout   Duration `koanf:"index_timeout"`
	SummaryTimeout Duration `koanf:"summary_timeout"`
	MindMapTimeout Duration `koanf:"mindmap_timeout"`
	JobTimeout     Duration `koanf:"job_timeout"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds the subset of logging settings exposed in config files.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	OTEL     bool   `koanf:"otel"`
	Sampling bool   `koanf:"sampling"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// IntakeConfig holds directory watcher settings.
type IntakeConfig struct {
	Debounce Duration `koanf:"debounce"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Data.Dir == "" {
		errs = append(errs, errors.New("data.dir is required"))
	}
	if c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required"))
	}
	if c.NATS.Stream == "" || c.NATS.Subject == "" || c.NATS.Durable == "" {
		errs = append(errs, errors.New("nats.stream, nats.subject and nats.durable are required"))
	}
	if c.NATS.AckWait.Duration() <= 0 {
		errs = append(errs, errors.New("nats.ack_wait must be positive"))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if !c.Database.DSN.IsSet() {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid qdrant port: %d", c.Qdrant.Port))
		}
	case "chromem":
	default:
		errs = append(errs, fmt.Errorf("vectorstore.provider must be qdrant or chromem, got %q", c.VectorStore.Provider))
	}

	if c.Embeddings.BatchSize < 1 {
		errs = append(errs, errors.New("embeddings.batch_size must be >= 1"))
	}
	if c.Embeddings.Concurrency < 1 {
		errs = append(errs, errors.New("embeddings.concurrency must be >= 1"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature))
	}

	if c.Pipeline.ChunkSize < 1 {
		errs = append(errs, errors.New("pipeline.chunk_size must be >= 1"))
	}
	if c.Pipeline.ChunkOverlap < 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		errs = append(errs, fmt.Errorf("pipeline.chunk_overlap must be within [0, chunk_size), got %d", c.Pipeline.ChunkOverlap))
	}
	for name, d := range map[string]Duration{
		"extract_timeout": c.Pipeline.ExtractTimeout,
		"index_timeout":   c.Pipeline.IndexTimeout,
		"summary_timeout": c.Pipeline.SummaryTimeout,
		"mindmap_timeout": c.Pipeline.MindMapTimeout,
		"job_timeout":     c.Pipeline.JobTimeout,
	} {
		if d.Duration() <= 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must be positive", name))
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate))
	}

	return errors.Join(errs...)
}
