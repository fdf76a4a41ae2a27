package intake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const filePerm = 0644

// FilenameGenerator names output files <prefix>_<timestamp><suffix>. Two writes
// for the same lane within one resolution window of the date format produce
// the same name and the later one replaces the earlier.
type FilenameGenerator struct {
	prefix string
	format *DateFormat
	suffix string
}

func NewFilenameGenerator(prefix, dateFormat, suffix string) (*FilenameGenerator, error) {
	df, err := ParseDateFormat(dateFormat)
	if err != nil {
		return nil, err
	}

	return &FilenameGenerator{prefix: prefix, format: df, suffix: suffix}, nil
}

func (g *FilenameGenerator) Generate(now time.Time) string {
	return g.prefix + "_" + g.format.Format(now) + g.suffix
}

// Writer persists handler output and returns the path it wrote.
type Writer interface {
	Write(ctx context.Context, lane string, content []byte) (string, error)
}

// FileWriter writes output files into a single directory, creating it on
// demand. Content lands in a temp file first and is renamed into place.
type FileWriter struct {
	dir string
	gen *FilenameGenerator
	now func() time.Time
}

func NewFileWriter(dir string, gen *FilenameGenerator) *FileWriter {
	return &FileWriter{dir: dir, gen: gen, now: time.Now}
}

func (w *FileWriter) Write(ctx context.Context, lane string, content []byte) (string, error) {
	target := filepath.Join(w.dir, w.gen.Generate(w.now()))

	if err := os.MkdirAll(w.dir, dirPerm); err != nil {
		return "", &WriteError{Lane: lane, Path: target, Err: fmt.Errorf("failed to create output directory: %w", err)}
	}

	if err := atomicWrite(w.dir, target, content); err != nil {
		return "", &WriteError{Lane: lane, Path: target, Err: err}
	}

	return target, nil
}

func atomicWrite(dir, target string, content []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, filePerm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	tmp = nil

	return nil
}
