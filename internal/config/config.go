package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables. Lane settings here are the
// defaults every lane starts from; see LaneConfigs for per-lane overrides.
type Config struct {
	Lanes     []string `envconfig:"LANES" default:"cabecera,detalle,leyenda"`
	LanesFile string   `envconfig:"LANES_FILE"`

	InboundDir   string `envconfig:"INBOUND_DIR" default:"data/inbound"`
	ProcessedDir string `envconfig:"PROCESSED_DIR" default:"data/processed"`
	FailedDir    string `envconfig:"FAILED_DIR" default:"data/failed"`
	OutDir       string `envconfig:"OUT_DIR" default:"data/out"`

	PollPeriodMs          int    `envconfig:"POLL_PERIOD_MS" default:"1000"`
	MaxMessagesPerPoll    int    `envconfig:"MAX_MESSAGES_PER_POLL" default:"10"`
	ThreadPoolSize        int    `envconfig:"THREAD_POOL_SIZE" default:"4"`
	OutFilenameDateFormat string `envconfig:"OUT_FILENAME_DATE_FORMAT" default:"yyyyMMddHHmmss"`
	OutFilenameSuffix     string `envconfig:"OUT_FILENAME_SUFFIX" default:".txt"`
	Recursive             bool   `envconfig:"RECURSIVE" default:"true"`
	AutoCreateDirectory   bool   `envconfig:"AUTO_CREATE_DIRECTORY" default:"true"`
	Watch                 bool   `envconfig:"WATCH" default:"false"`

	LogLevel           string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath             string        `envconfig:"DB_PATH" default:"intake.db"`
	LockPath           string        `envconfig:"LOCK_PATH" default:"file_poller.lock"`
	ProcessedRetention time.Duration `envconfig:"PROCESSED_RETENTION" default:"0"`
	CleanupInterval    time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	DiscordWebhookURL  string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool          `split_words:"true" default:"true"`
		ServiceName  string        `split_words:"true" default:"file_poller"`
		OTLPEndpoint string        `envconfig:"OTLP_ENDPOINT"`
		PushInterval time.Duration `split_words:"true" default:"30s"`
	}

	Web struct {
		Enabled         bool          `split_words:"true" default:"true"`
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LaneDefaults builds the configuration a lane named name gets before any
// override is applied.
func (c *Config) LaneDefaults(name string) LaneConfig {
	return LaneConfig{
		Name:                 name,
		Pattern:              name + "_.*",
		SourceDir:            c.InboundDir,
		ProcessedDir:         c.ProcessedDir,
		FailedDir:            c.FailedDir,
		OutputDir:            c.OutDir,
		PollPeriodMs:         c.PollPeriodMs,
		MaxMessagesPerPoll:   c.MaxMessagesPerPoll,
		ThreadPoolSize:       c.ThreadPoolSize,
		OutputFilenamePrefix: name,
		OutputDateFormat:     c.OutFilenameDateFormat,
		OutputFilenameSuffix: c.OutFilenameSuffix,
		Recursive:            c.Recursive,
		AutoCreateDirectory:  c.AutoCreateDirectory,
		Watch:                c.Watch,
	}
}

// LaneConfigs resolves every configured lane: defaults, then the lanes
// file, then LANE_<NAME>_* environment variables. Lanes listed only in the
// lanes file are appended after those in LANES.
func (c *Config) LaneConfigs() ([]LaneConfig, error) {
	var entries []LaneFileEntry

	if c.LanesFile != "" {
		var err error

		entries, err = LoadLanesFile(c.LanesFile)
		if err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(c.Lanes)+len(entries))
	byName := make(map[string]LaneFileEntry, len(entries))
	seen := make(map[string]struct{})

	for _, name := range c.Lanes {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate lane %q", name)
		}

		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, e := range entries {
		if _, dup := byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate lane %q in %s", e.Name, c.LanesFile)
		}

		byName[e.Name] = e

		if _, ok := seen[e.Name]; !ok {
			seen[e.Name] = struct{}{}
			names = append(names, e.Name)
		}
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no lanes configured")
	}

	lanes := make([]LaneConfig, 0, len(names))

	for _, name := range names {
		lane := c.LaneDefaults(name)

		if e, ok := byName[name]; ok {
			e.apply(&lane)
		}

		if err := envconfig.Process(lanePrefix(name), &lane); err != nil {
			return nil, fmt.Errorf("error processing env for lane %s: %w", name, err)
		}

		if err := lane.Validate(); err != nil {
			return nil, err
		}

		lanes = append(lanes, lane)
	}

	return lanes, nil
}

// lanePrefix maps a lane name to its env prefix, e.g. "cabecera" to
// "LANE_CABECERA".
func lanePrefix(name string) string {
	replacer := strings.NewReplacer("-", "_", ".", "_", " ", "_")

	return "LANE_" + strings.ToUpper(replacer.Replace(name))
}
