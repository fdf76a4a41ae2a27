package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// LaneConfig is the immutable configuration of one intake lane. Env keys are
// LANE_<NAME>_<FIELD> with no defaults, so unset keys keep the value resolved
// so far. Fields must not carry envconfig tags: envconfig also looks up the
// unprefixed tag name, so LANE_X_WATCH would fall back to WATCH.
type LaneConfig struct {
	Name string `ignored:"true"`

	Pattern      string `split_words:"true"`
	SourceDir    string `split_words:"true"`
	ProcessedDir string `split_words:"true"`
	FailedDir    string `split_words:"true"`
	OutputDir    string `split_words:"true"`

	PollPeriodMs       int `split_words:"true"`
	MaxMessagesPerPoll int `split_words:"true"`
	ThreadPoolSize     int `split_words:"true"`

	OutputFilenamePrefix string `split_words:"true"`
	OutputDateFormat     string `split_words:"true"`
	OutputFilenameSuffix string `split_words:"true"`

	Recursive           bool `split_words:"true"`
	AutoCreateDirectory bool `split_words:"true"`
	Watch               bool `split_words:"true"`
}

func (l LaneConfig) PollPeriod() time.Duration {
	return time.Duration(l.PollPeriodMs) * time.Millisecond
}

// Validate checks the lane on its own. Overlap between lanes is a deployment
// concern and is not checked here.
func (l LaneConfig) Validate() error {
	var errs []error

	if l.Name == "" {
		errs = append(errs, errors.New("lane name is required"))
	}

	if l.Pattern == "" {
		errs = append(errs, errors.New("pattern is required"))
	} else if _, err := regexp.Compile(l.Pattern); err != nil {
		errs = append(errs, fmt.Errorf("invalid pattern: %w", err))
	}

	for key, v := range map[string]int{
		"poll period ms":        l.PollPeriodMs,
		"max messages per poll": l.MaxMessagesPerPoll,
		"thread pool size":      l.ThreadPoolSize,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", key, v))
		}
	}

	if l.OutputDateFormat == "" {
		errs = append(errs, errors.New("output date format is required"))
	}

	for key, dir := range map[string]string{
		"source dir":    l.SourceDir,
		"processed dir": l.ProcessedDir,
		"failed dir":    l.FailedDir,
		"output dir":    l.OutputDir,
	} {
		if dir == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	if l.SourceDir != "" {
		src := filepath.Clean(l.SourceDir)

		if l.ProcessedDir != "" && filepath.Clean(l.ProcessedDir) == src {
			errs = append(errs, errors.New("processed dir must differ from source dir"))
		}

		if l.FailedDir != "" && filepath.Clean(l.FailedDir) == src {
			errs = append(errs, errors.New("failed dir must differ from source dir"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("lane %q: %w", l.Name, errors.Join(errs...))
	}

	return nil
}
