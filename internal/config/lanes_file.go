package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LaneFileEntry is one lane in a YAML lanes file. Unset fields keep the
// global defaults.
//
//	lanes:
//	  - name: cabecera
//	    pattern: 'cabecera_.*\.txt'
//	    thread_pool_size: 2
type LaneFileEntry struct {
	Name                 string  `yaml:"name"`
	Pattern              *string `yaml:"pattern"`
	SourceDir            *string `yaml:"source_dir"`
	ProcessedDir         *string `yaml:"processed_dir"`
	FailedDir            *string `yaml:"failed_dir"`
	OutputDir            *string `yaml:"output_dir"`
	PollPeriodMs         *int    `yaml:"poll_period_ms"`
	MaxMessagesPerPoll   *int    `yaml:"max_messages_per_poll"`
	ThreadPoolSize       *int    `yaml:"thread_pool_size"`
	OutputFilenamePrefix *string `yaml:"output_filename_prefix"`
	OutputDateFormat     *string `yaml:"output_date_format"`
	OutputFilenameSuffix *string `yaml:"output_filename_suffix"`
	Recursive            *bool   `yaml:"recursive"`
	AutoCreateDirectory  *bool   `yaml:"auto_create_directory"`
	Watch                *bool   `yaml:"watch"`
}

type lanesFile struct {
	Lanes []LaneFileEntry `yaml:"lanes"`
}

// LoadLanesFile reads lane overrides from a YAML file.
func LoadLanesFile(path string) ([]LaneFileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lanes file: %w", err)
	}

	var f lanesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse lanes file %s: %w", path, err)
	}

	for i, e := range f.Lanes {
		if e.Name == "" {
			return nil, fmt.Errorf("lanes file %s: entry %d: %w", path, i, errors.New("name is required"))
		}
	}

	return f.Lanes, nil
}

func (e LaneFileEntry) apply(l *LaneConfig) {
	setString(&l.Pattern, e.Pattern)
	setString(&l.SourceDir, e.SourceDir)
	setString(&l.ProcessedDir, e.ProcessedDir)
	setString(&l.FailedDir, e.FailedDir)
	setString(&l.OutputDir, e.OutputDir)
	setInt(&l.PollPeriodMs, e.PollPeriodMs)
	setInt(&l.MaxMessagesPerPoll, e.MaxMessagesPerPoll)
	setInt(&l.ThreadPoolSize, e.ThreadPoolSize)
	setString(&l.OutputFilenamePrefix, e.OutputFilenamePrefix)
	setString(&l.OutputDateFormat, e.OutputDateFormat)
	setString(&l.OutputFilenameSuffix, e.OutputFilenameSuffix)
	setBool(&l.Recursive, e.Recursive)
	setBool(&l.AutoCreateDirectory, e.AutoCreateDirectory)
	setBool(&l.Watch, e.Watch)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
