package intake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

const dirPerm = 0755

// FileFilter decides whether a scanned entry is eligible for a lane.
type FileFilter interface {
	Accept(ref FileRef) bool
}

// FileFilterFunc adapts a function to FileFilter.
type FileFilterFunc func(ref FileRef) bool

func (f FileFilterFunc) Accept(ref FileRef) bool {
	return f(ref)
}

// RegexFilter accepts files whose base name fully matches a pattern.
type RegexFilter struct {
	re *regexp.Regexp
}

// NewRegexFilter compiles pattern anchored to the whole file name.
func NewRegexFilter(pattern string) (*RegexFilter, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}

	return &RegexFilter{re: re}, nil
}

func (f *RegexFilter) Accept(ref FileRef) bool {
	return f.re.MatchString(ref.Name)
}

// CompositeFilter accepts a file only when every filter accepts it. Filters run
// in order and stop at the first rejection.
type CompositeFilter struct {
	filters []FileFilter
}

func NewCompositeFilter(filters ...FileFilter) *CompositeFilter {
	return &CompositeFilter{filters: filters}
}

func (f *CompositeFilter) Accept(ref FileRef) bool {
	for _, filter := range f.filters {
		if !filter.Accept(ref) {
			return false
		}
	}

	return true
}

// Scanner lists the eligible files of a directory.
type Scanner interface {
	Scan(ctx context.Context, dir string) ([]FileRef, error)
}

// ScannerOptions configures a DirectoryScanner.
type ScannerOptions struct {
	Filter     FileFilter
	Recursive  bool
	AutoCreate bool
	// Exclude lists directories that are never descended into, typically the
	// lane's own processed, failed and output directories.
	Exclude []string
}

// DirectoryScanner lists regular files under a directory in lexical walk
// order. It never opens the files it reports.
type DirectoryScanner struct {
	filter     FileFilter
	recursive  bool
	autoCreate bool
	exclude    map[string]struct{}
}

func NewDirectoryScanner(opts ScannerOptions) *DirectoryScanner {
	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, dir := range opts.Exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			exclude[abs] = struct{}{}
		}
	}

	return &DirectoryScanner{
		filter:     opts.Filter,
		recursive:  opts.Recursive,
		autoCreate: opts.AutoCreate,
		exclude:    exclude,
	}
}

// Scan returns the accepted files under dir. A missing directory is created
// when auto-create is enabled and yields an empty result.
func (s *DirectoryScanner) Scan(ctx context.Context, dir string) ([]FileRef, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && s.autoCreate {
			if err := os.MkdirAll(root, dirPerm); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}

			return nil, nil
		}

		return nil, err
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var refs []FileRef

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}

			// entries can vanish between listing and stat
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path == root {
				return nil
			}

			if _, skip := s.exclude[path]; skip || !s.recursive {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		ref := FileRef{
			Path:    path,
			Name:    d.Name(),
			RelPath: rel,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		}

		if s.filter == nil || s.filter.Accept(ref) {
			refs = append(refs, ref)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return refs, nil
}
