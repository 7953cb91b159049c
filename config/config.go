package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"tickflow/models"
)

type Config struct {
	Tickflow TickflowConfig `yaml:"tickflow"`
	Data     DataConfig     `yaml:"data"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Filters  FilterConfig   `yaml:"filters"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Enrich   EnrichConfig   `yaml:"enrich"`
	Writer   WriterConfig   `yaml:"writer"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type TickflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DataConfig describes where the raw per-ticker archives live and which
// slice of them a run ingests.
type DataConfig struct {
	Root       string   `yaml:"root"`
	Tickers    []string `yaml:"tickers"`
	Months     []string `yaml:"months"`
	ArchiveExt string   `yaml:"archive_ext"`
	MemberExt  string   `yaml:"member_ext"`
}

type ExchangeConfig struct {
	Timezone     string `yaml:"timezone"`
	TradingOpen  string `yaml:"trading_open"`
	TradingClose string `yaml:"trading_close"`
}

// FilterConfig toggles the individual quality predicates. All default to
// enabled; an explicit false in the file switches one off.
type FilterConfig struct {
	OnlyRegularHours     bool `yaml:"only_regular_hours"`
	OnlyNonSpecialTrades bool `yaml:"only_non_special_trades"`
	MergeSameTimestamp   bool `yaml:"merge_same_timestamp"`
}

type PipelineConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type EnrichConfig struct {
	Enabled         bool `yaml:"enabled"`
	DropNullIndex   bool `yaml:"drop_null_index"`
	Deduplicate     bool `yaml:"deduplicate"`
	EnforcePositive bool `yaml:"enforce_positive"`
}

type WriterConfig struct {
	OutputDir    string             `yaml:"output_dir"`
	Compression  string             `yaml:"compression"`
	Partitioning PartitioningConfig `yaml:"partitioning"`
}

type PartitioningConfig struct {
	TimeFormat     string   `yaml:"time_format"`
	AdditionalKeys []string `yaml:"additional_keys"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled          bool    `yaml:"enabled"`
	Bucket           string  `yaml:"bucket"`
	Region           string  `yaml:"region"`
	Endpoint         string  `yaml:"endpoint"`
	PathStyle        bool    `yaml:"path_style"`
	UploadsPerSecond float64 `yaml:"uploads_per_second"`
	AccessKeyID      string  `yaml:"access_key_id"`
	SecretAccessKey  string  `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Region     string `yaml:"region"`
	Namespace  string `yaml:"namespace"`
	Dashboard  string `yaml:"dashboard"`
}

// ValidationError reports a configuration problem. These are fatal and
// raised to the caller before any archive I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// LoadConfig reads a YAML configuration file, applies defaults and
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// defaultConfig carries the documented option defaults. Booleans that
// default to true are pre-set here so an absent key keeps the default while
// an explicit false in the file still wins.
func defaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			ArchiveExt: ".tar",
			MemberExt:  ".csv.gz",
		},
		Exchange: ExchangeConfig{
			Timezone:     "America/New_York",
			TradingOpen:  "09:30:00",
			TradingClose: "16:00:00",
		},
		Filters: FilterConfig{
			OnlyRegularHours:     true,
			OnlyNonSpecialTrades: true,
			MergeSameTimestamp:   true,
		},
		Pipeline: PipelineConfig{
			MaxWorkers: 4,
		},
		Enrich: EnrichConfig{
			DropNullIndex: true,
			Deduplicate:   true,
		},
		Writer: WriterConfig{
			OutputDir:   "data/out",
			Compression: "snappy",
			Partitioning: PartitioningConfig{
				TimeFormat:     "year={year}/month={month}",
				AdditionalKeys: []string{"kind"},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

var monthPrefixRegexp = regexp.MustCompile(`^\d{4}-\d{2}$`)

func validateConfig(cfg *Config) error {
	if cfg.Tickflow.Name == "" {
		return &ValidationError{"tickflow.name", "is required"}
	}
	if cfg.Tickflow.Version == "" {
		return &ValidationError{"tickflow.version", "is required"}
	}

	if cfg.Data.Root == "" {
		return &ValidationError{"data.root", "is required"}
	}
	if len(cfg.Data.Months) == 0 {
		return &ValidationError{"data.months", "must list at least one YYYY-MM prefix"}
	}
	for _, m := range cfg.Data.Months {
		if !monthPrefixRegexp.MatchString(m) {
			return &ValidationError{"data.months", fmt.Sprintf("entry %q is not a YYYY-MM prefix", m)}
		}
	}
	if !strings.HasPrefix(cfg.Data.ArchiveExt, ".") {
		return &ValidationError{"data.archive_ext", "must start with a dot"}
	}

	if cfg.Exchange.Timezone == "" {
		return &ValidationError{"exchange.timezone", "is required"}
	}
	open, err := models.ParseHHMMSS(cfg.Exchange.TradingOpen)
	if err != nil {
		return &ValidationError{"exchange.trading_open", err.Error()}
	}
	close, err := models.ParseHHMMSS(cfg.Exchange.TradingClose)
	if err != nil {
		return &ValidationError{"exchange.trading_close", err.Error()}
	}
	if open >= close {
		return &ValidationError{"exchange.trading_open", "must be before exchange.trading_close"}
	}

	if cfg.Pipeline.MaxWorkers <= 0 {
		return &ValidationError{"pipeline.max_workers", "must be greater than 0"}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return &ValidationError{"storage.s3.bucket", "is required when S3 is enabled"}
		}
		if cfg.Storage.S3.Region == "" {
			return &ValidationError{"storage.s3.region", "is required when S3 is enabled"}
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return &ValidationError{"storage.s3.access_key_id", "and storage.s3.secret_access_key are required when S3 is enabled"}
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return &ValidationError{"storage.s3.bucket", fmt.Sprintf("%q is invalid", cfg.Storage.S3.Bucket)}
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
