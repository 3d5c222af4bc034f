// Package config provides the configuration structure for voice-studio.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/audio"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/text"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	BackendNATS  = "nats"
	BackendLocal = "local"
)

// Defaults.
const (
	DefaultNATSURL            = "nats://127.0.0.1:4222"
	DefaultGenerateSubject    = "voice.generate"
	DefaultQueueGroup         = "voice-studio"
	DefaultObjectStoreBucket  = "VOICE_AUDIO"
	DefaultLedgerBucket       = "VOICE_LEDGER"
	DefaultAPIKeyEnv          = "GEMINI_API_KEY"
	DefaultTimeoutSeconds     = 60
	DefaultRequestsPerMinute  = 30
	DefaultHydrationWorkers   = 8
	DefaultScope              = "local_user"
	DefaultMetricsListenAddr  = ":9464"
	DefaultLedgerFileName     = "ledger.db"
	DefaultBlobDirName        = "blobs"
	defaultLogsDirName        = "voice-studio-logs"
	defaultEnvFile            = ".env"
	errFmtInvalidField        = "%w: %s"
	errFmtInvalidFieldWithVal = "%w: %s (got %q)"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL               string `toml:"url"`
	GenerateSubject   string `toml:"generate_subject"`
	QueueGroup        string `toml:"queue_group"`
	ObjectStoreBucket string `toml:"object_store_bucket"`
	LedgerBucket      string `toml:"ledger_bucket"`
}

// StorageConfig selects where blobs and ledgers live.
type StorageConfig struct {
	// Backend is "nats" (object store + key-value) or "local" (files + sqlite).
	Backend string `toml:"backend"`
	DataDir string `toml:"data_dir"`
}

// GenerationConfig holds the speech backend settings.
type GenerationConfig struct {
	APIKey            string `toml:"api_key"`
	APIKeyEnv         string `toml:"api_key_env"`
	BaseURL           string `toml:"base_url"`
	SpeechModel       string `toml:"speech_model"`
	AnalysisModel     string `toml:"analysis_model"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// LibraryConfig bounds user input and hydration.
type LibraryConfig struct {
	MaxTextLength     int    `toml:"max_text_length"`
	DisplayTextLength int    `toml:"display_text_length"`
	HydrationWorkers  int    `toml:"hydration_workers"`
	DefaultScope      string `toml:"default_scope"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Storage    StorageConfig    `toml:"storage"`
	Generation GenerationConfig `toml:"generation"`
	Audio      audio.Format     `toml:"audio"`
	Library    LibraryConfig    `toml:"library"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the service configuration through the central configurator, after reading a
// local .env file when one exists.
func Load(log *logger.Logger) (*Config, error) {
	envErr := godotenv.Load(defaultEnvFile)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn("Failed to read %s: %v", defaultEnvFile, envErr)
	}

	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads a local TOML file. An empty path yields the defaults.
func LoadFile(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	return finish(&cfg)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()

	return cfg
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	cfg.ResolveSecrets()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	setString(&c.NATS.URL, DefaultNATSURL)
	setString(&c.NATS.GenerateSubject, DefaultGenerateSubject)
	setString(&c.NATS.QueueGroup, DefaultQueueGroup)
	setString(&c.NATS.ObjectStoreBucket, DefaultObjectStoreBucket)
	setString(&c.NATS.LedgerBucket, DefaultLedgerBucket)

	setString(&c.Storage.Backend, BackendNATS)

	setString(&c.Generation.APIKeyEnv, DefaultAPIKeyEnv)
	setInt(&c.Generation.TimeoutSeconds, DefaultTimeoutSeconds)
	setInt(&c.Generation.RequestsPerMinute, DefaultRequestsPerMinute)

	if c.Audio == (audio.Format{}) {
		c.Audio = audio.DefaultFormat()
	}

	setInt(&c.Library.MaxTextLength, text.DefaultMaxLength)
	setInt(&c.Library.DisplayTextLength, text.DefaultDisplayLength)
	setInt(&c.Library.HydrationWorkers, DefaultHydrationWorkers)
	setString(&c.Library.DefaultScope, DefaultScope)

	setString(&c.Metrics.ListenAddr, DefaultMetricsListenAddr)

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir() + string(os.PathSeparator) + defaultLogsDirName
	}
}

// ResolveSecrets reads the API key from the environment when the file does not carry one.
func (c *Config) ResolveSecrets() {
	if c.Generation.APIKey == "" && c.Generation.APIKeyEnv != "" {
		c.Generation.APIKey = os.Getenv(c.Generation.APIKeyEnv)
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendNATS:
		if c.NATS.URL == "" || c.NATS.ObjectStoreBucket == "" || c.NATS.LedgerBucket == "" {
			return fmt.Errorf(errFmtInvalidField, ErrInvalidConfig, "nats url and buckets are required for the nats backend")
		}
	case BackendLocal:
		if strings.TrimSpace(c.Storage.DataDir) == "" {
			return fmt.Errorf(errFmtInvalidField, ErrInvalidConfig, "storage.data_dir is required for the local backend")
		}
	default:
		return fmt.Errorf(errFmtInvalidFieldWithVal, ErrInvalidConfig, "storage.backend must be nats or local", c.Storage.Backend)
	}

	if c.NATS.GenerateSubject == "" {
		return fmt.Errorf(errFmtInvalidField, ErrInvalidConfig, "nats.generate_subject is required")
	}

	err := c.Audio.Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Library.MaxTextLength < 1 || c.Library.DisplayTextLength < 1 || c.Library.HydrationWorkers < 1 {
		return fmt.Errorf(errFmtInvalidField, ErrInvalidConfig, "library limits must be positive")
	}

	err = core.ValidateScope(c.Library.DefaultScope)
	if err != nil {
		return fmt.Errorf("%w: library.default_scope: %w", ErrInvalidConfig, err)
	}

	if c.Generation.TimeoutSeconds < 1 {
		return fmt.Errorf(errFmtInvalidField, ErrInvalidConfig, "generation.timeout_seconds must be positive")
	}

	return nil
}

func setString(field *string, fallback string) {
	if strings.TrimSpace(*field) == "" {
		*field = fallback
	}
}

func setInt(field *int, fallback int) {
	if *field == 0 {
		*field = fallback
	}
}
