package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coordinatorDirs struct {
	src, processed, failed, out string
}

func newCoordinatorDirs(t *testing.T) coordinatorDirs {
	t.Helper()

	root := t.TempDir()

	return coordinatorDirs{
		src:       filepath.Join(root, "inbound"),
		processed: filepath.Join(root, "processed"),
		failed:    filepath.Join(root, "failed"),
		out:       filepath.Join(root, "out"),
	}
}

func (d coordinatorDirs) ref(t *testing.T, name, content string) FileRef {
	t.Helper()

	path := writeFile(t, d.src, name, content)

	return FileRef{Path: path, Name: name, Size: int64(len(content))}
}

func newTestWriter(t *testing.T, dir, prefix string) *FileWriter {
	t.Helper()

	gen, err := NewFilenameGenerator(prefix, "yyyyMMddHHmmss", ".txt")
	require.NoError(t, err)

	w := NewFileWriter(dir, gen)
	w.now = func() time.Time { return fixedNow }

	return w
}

type recordingListener struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingListener) OnOutcome(_ context.Context, out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = append(r.outcomes, out)
}

func (r *recordingListener) all() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Outcome(nil), r.outcomes...)
}

type failingWriter struct{ err error }

func (f failingWriter) Write(context.Context, string, []byte) (string, error) {
	return "", f.err
}

func TestCoordinator_Commit(t *testing.T) {
	dirs := newCoordinatorDirs(t)
	listener := &recordingListener{}

	c := NewCoordinator(CoordinatorConfig{
		Lane:         "cabecera",
		Writer:       newTestWriter(t, dirs.out, "cabecera"),
		ProcessedDir: dirs.processed,
		FailedDir:    dirs.failed,
		Listeners:    []OutcomeListener{listener},
	})

	ref := dirs.ref(t, "cabecera_001.txt", "header line")
	out := c.Process(quietContext(), ref)

	require.True(t, out.Committed())
	require.True(t, out.Relocated())
	assert.NoError(t, out.Err)
	assert.NotEmpty(t, out.IntakeID)
	assert.Equal(t, filepath.Join(dirs.processed, "cabecera_001.txt"), out.Destination)
	assert.Equal(t, filepath.Join(dirs.out, "cabecera_20240102030405.txt"), out.OutputPath)
	assert.False(t, out.FinishedAt.Before(out.StartedAt))

	assert.NoFileExists(t, ref.Path)
	assert.Equal(t, "header line", readFile(t, out.Destination))
	assert.Equal(t, "header line", readFile(t, out.OutputPath))
	assert.Empty(t, listNames(t, dirs.failed))

	require.Len(t, listener.all(), 1)
	assert.Equal(t, out.IntakeID, listener.all()[0].IntakeID)
}

func TestCoordinator_KeepsSubpathOnRelocation(t *testing.T) {
	dirs := newCoordinatorDirs(t)

	c := NewCoordinator(CoordinatorConfig{
		Lane:         "detalle",
		ProcessedDir: dirs.processed,
		FailedDir:    dirs.failed,
	})

	s := NewDirectoryScanner(ScannerOptions{Recursive: true})

	writeFile(t, dirs.src, filepath.Join("norte", "detalle_001.txt"), "north")
	writeFile(t, dirs.src, filepath.Join("sur", "detalle_001.txt"), "south")

	refs, err := s.Scan(context.Background(), dirs.src)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	for _, ref := range refs {
		require.True(t, c.Process(quietContext(), ref).Committed())
	}

	assert.Equal(t, "north", readFile(t, filepath.Join(dirs.processed, "norte", "detalle_001.txt")))
	assert.Equal(t, "south", readFile(t, filepath.Join(dirs.processed, "sur", "detalle_001.txt")))
}

func TestCoordinator_Rollback(t *testing.T) {
	cause := errors.New("malformed record")

	tests := []struct {
		name    string
		handler Handler
		writer  Writer
		check   func(t *testing.T, err error)
	}{
		{
			name: "handler error",
			handler: HandlerFunc(func(context.Context, string, []byte) ([]byte, error) {
				return nil, cause
			}),
			check: func(t *testing.T, err error) {
				var herr *HandlerError
				require.True(t, errors.As(err, &herr))
				assert.ErrorIs(t, err, cause)
			},
		},
		{
			name: "handler panic",
			handler: HandlerFunc(func(context.Context, string, []byte) ([]byte, error) {
				panic("unexpected layout")
			}),
			check: func(t *testing.T, err error) {
				var herr *HandlerError
				require.True(t, errors.As(err, &herr))
				assert.Contains(t, err.Error(), "panic: unexpected layout")
			},
		},
		{
			name:   "write error",
			writer: failingWriter{err: errors.New("disk full")},
			check: func(t *testing.T, err error) {
				var werr *WriteError
				require.True(t, errors.As(err, &werr))
				assert.Contains(t, err.Error(), "disk full")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dirs := newCoordinatorDirs(t)

			writer := tt.writer
			if writer == nil {
				writer = newTestWriter(t, dirs.out, "detalle")
			}

			c := NewCoordinator(CoordinatorConfig{
				Lane:         "detalle",
				Handler:      tt.handler,
				Writer:       writer,
				ProcessedDir: dirs.processed,
				FailedDir:    dirs.failed,
			})

			ref := dirs.ref(t, "detalle_001.txt", "rows")
			out := c.Process(quietContext(), ref)

			assert.Equal(t, OutcomeRolledBack, out.Status)
			assert.True(t, out.Relocated())
			assert.Empty(t, out.OutputPath)
			assert.Equal(t, filepath.Join(dirs.failed, "detalle_001.txt"), out.Destination)
			tt.check(t, out.Err)

			assert.NoFileExists(t, ref.Path)
			assert.Equal(t, "rows", readFile(t, out.Destination))
			assert.Empty(t, listNames(t, dirs.processed))
			assert.Empty(t, listNames(t, dirs.out))
		})
	}
}

func TestCoordinator_ReadFailureRollsBack(t *testing.T) {
	dirs := newCoordinatorDirs(t)

	c := NewCoordinator(CoordinatorConfig{
		Lane:         "leyenda",
		ProcessedDir: dirs.processed,
		FailedDir:    dirs.failed,
	})

	// a directory cannot be read as a file, but can still be renamed
	path := filepath.Join(dirs.src, "leyenda_dir")
	require.NoError(t, os.MkdirAll(path, 0755))

	out := c.Process(quietContext(), FileRef{Path: path, Name: "leyenda_dir"})

	assert.Equal(t, OutcomeRolledBack, out.Status)
	assert.Contains(t, out.Err.Error(), "failed to read file")
	assert.DirExists(t, filepath.Join(dirs.failed, "leyenda_dir"))
}

func TestCoordinator_RelocationFailure(t *testing.T) {
	dirs := newCoordinatorDirs(t)

	// processed dir path is taken by a regular file
	writeFile(t, filepath.Dir(dirs.processed), filepath.Base(dirs.processed), "blocker")

	listener := &recordingListener{}

	c := NewCoordinator(CoordinatorConfig{
		Lane:         "cabecera",
		ProcessedDir: dirs.processed,
		FailedDir:    dirs.failed,
		Listeners:    []OutcomeListener{listener},
	})

	ref := dirs.ref(t, "cabecera_009.txt", "x")
	out := c.Process(quietContext(), ref)

	assert.True(t, out.Committed())
	assert.False(t, out.Relocated())

	var rerr *RelocationError
	require.True(t, errors.As(out.RelocateErr, &rerr))
	assert.Equal(t, ref.Path, rerr.File)
	assert.FileExists(t, ref.Path)
	require.Len(t, listener.all(), 1)
}

func TestCoordinator_NoWriter(t *testing.T) {
	dirs := newCoordinatorDirs(t)

	c := NewCoordinator(CoordinatorConfig{
		Lane:         "cabecera",
		ProcessedDir: dirs.processed,
		FailedDir:    dirs.failed,
	})

	out := c.Process(quietContext(), dirs.ref(t, "cabecera_010.txt", "x"))

	assert.True(t, out.Committed())
	assert.Empty(t, out.OutputPath)
}

func TestPassthroughHandler_LogsContent(t *testing.T) {
	ctx, logs := capturingContext()

	got, err := PassthroughHandler{}.Handle(ctx, "cabecera", []byte("001|ACME"))
	require.NoError(t, err)
	assert.Equal(t, []byte("001|ACME"), got)
	assert.True(t, strings.Contains(logs.String(), `"msg":"Cabecera = 001|ACME"`), logs.String())
	assert.Contains(t, logs.String(), `"content_length":8`)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "", want: ""},
		{in: "cabecera", want: "Cabecera"},
		{in: "ñandú", want: "Ñandú"},
		{in: "Detalle", want: "Detalle"},
		{in: "\xffraw", want: "\xffraw"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, title(tt.in))
		})
	}
}
