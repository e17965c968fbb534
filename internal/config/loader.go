package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DOCMIND_"
)

// LoadWithFile loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (DOCMIND_NATS_URL, DOCMIND_LLM_API_KEY, ...)
//  2. YAML config file (~/.config/docmind/config.yaml by default)
//  3. Defaults
//
// A missing file is not an error. An existing file must live under
// ~/.config/docmind/ or /etc/docmind/, be at most 1MB, and have 0600 or 0400
// permissions.
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix:
//
//	DOCMIND_NATS_ACK_WAIT      -> nats.ack_wait
//	DOCMIND_PIPELINE_CHUNK_SIZE -> pipeline.chunk_size
//
// OPENAI_API_KEY is used for llm.api_key and embeddings.api_key when those are
// not set otherwise.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "docmind", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with only defaults applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// envKey maps DOCMIND_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens the file once and validates it through the open
// descriptor to avoid a stat/read race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath checks that path is inside an allowed directory.
// It runs even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	for _, dir := range []string{
		filepath.Join(home, ".config", "docmind"),
		"/etc/docmind",
	} {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/docmind/ or /etc/docmind/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "./data"
	}

	// NATS defaults
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "DOCUMENTS"
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "documents.ingest"
	}
	if cfg.NATS.Durable == "" {
		cfg.NATS.Durable = "docmind-worker"
	}
	if cfg.NATS.AckWait == 0 {
		cfg.NATS.AckWait = Duration(2 * time.Minute)
	}
	if cfg.NATS.DroppedStream == "" {
		cfg.NATS.DroppedStream = "DOCUMENTS_DROPPED"
	}
	if cfg.NATS.DroppedSubject == "" {
		cfg.NATS.DroppedSubject = "documents.dropped"
	}
	if cfg.NATS.ConnectTimeout == 0 {
		cfg.NATS.ConnectTimeout = Duration(5 * time.Second)
	}

	// Metadata store defaults (sqlite is default - no external deps)
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if !cfg.Database.DSN.IsSet() && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = Secret(filepath.Join(cfg.Data.Dir, "docmind.db"))
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 4
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	// Vector store defaults
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.RequestTimeout == 0 {
		cfg.Qdrant.RequestTimeout = Duration(30 * time.Second)
	}
	if cfg.Qdrant.RetryAttempts == 0 {
		cfg.Qdrant.RetryAttempts = 3
	}

	// Model endpoints
	openAIKey := os.Getenv("OPENAI_API_KEY")
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
	if !cfg.Embeddings.APIKey.IsSet() {
		cfg.Embeddings.APIKey = Secret(openAIKey)
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 32
	}
	if cfg.Embeddings.Concurrency == 0 {
		cfg.Embeddings.Concurrency = 1
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-3.5-turbo"
	}
	if !cfg.LLM.APIKey.IsSet() {
		cfg.LLM.APIKey = Secret(openAIKey)
	}
	if cfg.LLM.RequestsPerMinute == 0 {
		cfg.LLM.RequestsPerMinute = 60
	}

	// Pipeline defaults
	if cfg.Pipeline.ChunkSize == 0 {
		cfg.Pipeline.ChunkSize = 1000
	}
	if cfg.Pipeline.ChunkOverlap == 0 {
		cfg.Pipeline.ChunkOverlap = 200
	}
	if cfg.Pipeline.ExtractTimeout == 0 {
		cfg.Pipeline.ExtractTimeout = Duration(time.Minute)
	}
	if cfg.Pipeline.IndexTimeout == 0 {
		cfg.Pipeline.IndexTimeout = Duration(5 * time.Minute)
	}
	if cfg.Pipeline.SummaryTimeout == 0 {
		cfg.Pipeline.SummaryTimeout = Duration(3 * time.Minute)
	}
	if cfg.Pipeline.MindMapTimeout == 0 {
		cfg.Pipeline.MindMapTimeout = Duration(3 * time.Minute)
	}
	if cfg.Pipeline.JobTimeout == 0 {
		cfg.Pipeline.JobTimeout = Duration(15 * time.Minute)
	}

	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "docmind"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	if cfg.Intake.Debounce == 0 {
		cfg.Intake.Debounce = Duration(2 * time.Second)
	}
}
