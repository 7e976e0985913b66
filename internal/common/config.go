// -----------------------------------------------------------------------
// Last Modified: Wednesday, 26th August 2026 08:15:47 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment" validate:"omitempty,oneof=development production"`
	Logging     LoggingConfig  `toml:"logging"`
	Storage     StorageConfig  `toml:"storage"`
	Queue       QueueConfig    `toml:"queue"`
	Crawler     CrawlerConfig  `toml:"crawler"`
	Chunker     ChunkerConfig  `toml:"chunker"`
	Indexer     IndexerConfig  `toml:"indexer"`
	Pipeline    PipelineConfig `toml:"pipeline"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"` // "debug", "info", "warn", "error"
	Output []string `toml:"output"`                                             // "stdout", "file"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval      time.Duration `toml:"poll_interval" validate:"min=1ms"`      // How often workers poll for messages
	Concurrency       int           `toml:"concurrency" validate:"min=1"`          // Number of concurrent pollers per queue
	VisibilityTimeout time.Duration `toml:"visibility_timeout" validate:"min=1s"`  // Redelivery window for unacknowledged messages
	MaxReceive        int           `toml:"max_receive" validate:"min=1"`          // Receives before a message is dropped as poison
}

// CrawlerConfig bounds the dual-strategy crawler
type CrawlerConfig struct {
	MaxDepth          int           `toml:"max_depth" validate:"min=0"`           // Default maximum crawl depth
	MaxPages          int           `toml:"max_pages" validate:"min=1"`           // Default maximum pages per crawl
	RequestTimeout    time.Duration `toml:"request_timeout" validate:"min=1s"`    // Per-attempt HTTP budget
	BrowserTimeout    time.Duration `toml:"browser_timeout" validate:"min=1s"`    // Browser navigation budget
	BrowserEnabled    bool          `toml:"browser_enabled"`                      // Allow the headless-browser fallback
	SettleDelay       time.Duration `toml:"settle_delay"`                         // Post-navigation render wait
	RequestsPerSecond float64       `toml:"requests_per_second" validate:"gt=0"`  // Per-host politeness ceiling
	FollowLinks       bool          `toml:"follow_links"`                         // Extract and enqueue page links
	SameDomainOnly    bool          `toml:"same_domain_only"`                     // Restrict followed links to the seed host
	MaxBodySize       int           `toml:"max_body_size" validate:"min=1024"`    // Response body cap in bytes
}

// ChunkerConfig bounds the markdown splitter
type ChunkerConfig struct {
	MaxChunkSize      int  `toml:"max_chunk_size" validate:"min=100"` // Characters per chunk
	OverlapSize       int  `toml:"overlap_size" validate:"min=0"`     // Shared characters between adjacent chunks
	RespectParagraphs bool `toml:"respect_paragraphs"`                // Prefer paragraph boundaries when splitting
}

type IndexerConfig struct {
	BatchSize int `toml:"batch_size" validate:"min=1"` // Documents per index upload
}

// PipelineConfig tunes orchestration and maintenance
type PipelineConfig struct {
	CleanupSchedule   string        `toml:"cleanup_schedule" validate:"required"`    // Cron expression for the retention sweep
	RetentionDays     int           `toml:"retention_days" validate:"min=1"`         // Terminal jobs older than this are deleted
	StuckJobThreshold time.Duration `toml:"stuck_job_threshold" validate:"min=1m"`   // Processing jobs idle past this are reactivation candidates
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings belong in colligo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			PollInterval:      1 * time.Second,
			Concurrency:       2,
			VisibilityTimeout: 5 * time.Minute,
			MaxReceive:        3,
		},
		Crawler: CrawlerConfig{
			MaxDepth:          2,
			MaxPages:          10,
			RequestTimeout:    15 * time.Second,
			BrowserTimeout:    30 * time.Second,
			BrowserEnabled:    true,
			SettleDelay:       2 * time.Second,
			RequestsPerSecond: 1.0,
			FollowLinks:       true,
			SameDomainOnly:    true,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
		},
		Chunker: ChunkerConfig{
			MaxChunkSize:      2000,
			OverlapSize:       200,
			RespectParagraphs: true,
		},
		Indexer: IndexerConfig{
			BatchSize: 100,
		},
		Pipeline: PipelineConfig{
			CleanupSchedule:   "0 3 * * *", // Daily at 03:00
			RetentionDays:     30,
			StuckJobThreshold: 30 * time.Minute,
		},
	}
}

// LoadFromFiles loads configuration from multiple files. Later files
// override earlier files; environment variables override all files.
// Priority: env > last config file > ... > first config file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration using go-playground/validator tags
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Chunker.OverlapSize >= c.Chunker.MaxChunkSize {
		return fmt.Errorf("invalid configuration: chunker overlap_size (%d) must be smaller than max_chunk_size (%d)",
			c.Chunker.OverlapSize, c.Chunker.MaxChunkSize)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COLLIGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Logging
	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Storage
	if badgerPath := os.Getenv("COLLIGO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if reset := os.Getenv("COLLIGO_BADGER_RESET"); reset != "" {
		if r, err := strconv.ParseBool(reset); err == nil {
			config.Storage.Badger.ResetOnStartup = r
		}
	}

	// Queue
	if pollInterval := os.Getenv("COLLIGO_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		if d, err := time.ParseDuration(pollInterval); err == nil {
			config.Queue.PollInterval = d
		}
	}
	if concurrency := os.Getenv("COLLIGO_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("COLLIGO_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		if d, err := time.ParseDuration(visibilityTimeout); err == nil {
			config.Queue.VisibilityTimeout = d
		}
	}
	if maxReceive := os.Getenv("COLLIGO_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}

	// Crawler
	if maxDepth := os.Getenv("COLLIGO_CRAWLER_MAX_DEPTH"); maxDepth != "" {
		if md, err := strconv.Atoi(maxDepth); err == nil {
			config.Crawler.MaxDepth = md
		}
	}
	if maxPages := os.Getenv("COLLIGO_CRAWLER_MAX_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Crawler.MaxPages = mp
		}
	}
	if requestTimeout := os.Getenv("COLLIGO_CRAWLER_REQUEST_TIMEOUT"); requestTimeout != "" {
		if d, err := time.ParseDuration(requestTimeout); err == nil {
			config.Crawler.RequestTimeout = d
		}
	}
	if browserTimeout := os.Getenv("COLLIGO_CRAWLER_BROWSER_TIMEOUT"); browserTimeout != "" {
		if d, err := time.ParseDuration(browserTimeout); err == nil {
			config.Crawler.BrowserTimeout = d
		}
	}
	if browserEnabled := os.Getenv("COLLIGO_CRAWLER_BROWSER_ENABLED"); browserEnabled != "" {
		if be, err := strconv.ParseBool(browserEnabled); err == nil {
			config.Crawler.BrowserEnabled = be
		}
	}
	if rps := os.Getenv("COLLIGO_CRAWLER_REQUESTS_PER_SECOND"); rps != "" {
		if r, err := strconv.ParseFloat(rps, 64); err == nil && r > 0 {
			config.Crawler.RequestsPerSecond = r
		}
	}
	if followLinks := os.Getenv("COLLIGO_CRAWLER_FOLLOW_LINKS"); followLinks != "" {
		if fl, err := strconv.ParseBool(followLinks); err == nil {
			config.Crawler.FollowLinks = fl
		}
	}
	if sameDomain := os.Getenv("COLLIGO_CRAWLER_SAME_DOMAIN_ONLY"); sameDomain != "" {
		if sd, err := strconv.ParseBool(sameDomain); err == nil {
			config.Crawler.SameDomainOnly = sd
		}
	}

	// Chunker
	if maxChunkSize := os.Getenv("COLLIGO_CHUNKER_MAX_CHUNK_SIZE"); maxChunkSize != "" {
		if mcs, err := strconv.Atoi(maxChunkSize); err == nil {
			config.Chunker.MaxChunkSize = mcs
		}
	}
	if overlapSize := os.Getenv("COLLIGO_CHUNKER_OVERLAP_SIZE"); overlapSize != "" {
		if ol, err := strconv.Atoi(overlapSize); err == nil {
			config.Chunker.OverlapSize = ol
		}
	}

	// Indexer
	if batchSize := os.Getenv("COLLIGO_INDEXER_BATCH_SIZE"); batchSize != "" {
		if bs, err := strconv.Atoi(batchSize); err == nil {
			config.Indexer.BatchSize = bs
		}
	}

	// Pipeline
	if schedule := os.Getenv("COLLIGO_PIPELINE_CLEANUP_SCHEDULE"); schedule != "" {
		config.Pipeline.CleanupSchedule = schedule
	}
	if retentionDays := os.Getenv("COLLIGO_PIPELINE_RETENTION_DAYS"); retentionDays != "" {
		if rd, err := strconv.Atoi(retentionDays); err == nil {
			config.Pipeline.RetentionDays = rd
		}
	}
	if stuckThreshold := os.Getenv("COLLIGO_PIPELINE_STUCK_JOB_THRESHOLD"); stuckThreshold != "" {
		if d, err := time.ParseDuration(stuckThreshold); err == nil {
			config.Pipeline.StuckJobThreshold = d
		}
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
