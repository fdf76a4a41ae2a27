package intake

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/file_poller/internal/config"
)

type laneDirs struct {
	inbound, processed, failed, out string
}

func newLaneDirs(t *testing.T) laneDirs {
	t.Helper()

	root := t.TempDir()

	return laneDirs{
		inbound:   filepath.Join(root, "inbound"),
		processed: filepath.Join(root, "processed"),
		failed:    filepath.Join(root, "failed"),
		out:       filepath.Join(root, "out"),
	}
}

func testLaneConfig(name string, dirs laneDirs) config.LaneConfig {
	return config.LaneConfig{
		Name:                 name,
		Pattern:              name + "_.*",
		SourceDir:            dirs.inbound,
		ProcessedDir:         dirs.processed,
		FailedDir:            dirs.failed,
		OutputDir:            dirs.out,
		PollPeriodMs:         10,
		MaxMessagesPerPoll:   10,
		ThreadPoolSize:       2,
		OutputFilenamePrefix: name,
		OutputDateFormat:     "yyyyMMddHHmmssSSSSSSSSS",
		OutputFilenameSuffix: ".txt",
		Recursive:            true,
		AutoCreateDirectory:  true,
	}
}

func TestNewLane_InvalidConfig(t *testing.T) {
	cfg := testLaneConfig("cabecera", newLaneDirs(t))
	cfg.Pattern = "cabecera_("

	_, err := NewLane(cfg)
	require.Error(t, err)

	cfg = testLaneConfig("cabecera", newLaneDirs(t))
	cfg.OutputDateFormat = "yyyyQ"

	_, err = NewLane(cfg)
	require.Error(t, err)
}

func TestLane_PatternIsolation(t *testing.T) {
	dirs := newLaneDirs(t)

	writeFile(t, dirs.inbound, "cabecera_001.txt", "H")
	writeFile(t, dirs.inbound, "detalle_001.txt", "D1")
	writeFile(t, dirs.inbound, "detalle_002.txt", "D2")
	writeFile(t, dirs.inbound, "leyenda_001.txt", "L")
	writeFile(t, dirs.inbound, "unrelated.txt", "?")

	ctx := quietContext()

	for _, name := range []string{"cabecera", "detalle", "leyenda"} {
		lane, err := NewLane(testLaneConfig(name, dirs))
		require.NoError(t, err)

		_, err = lane.Poller().Poll(ctx)
		require.NoError(t, err)

		lane.pool.Wait()
	}

	assert.ElementsMatch(t,
		[]string{"cabecera_001.txt", "detalle_001.txt", "detalle_002.txt", "leyenda_001.txt"},
		listNames(t, dirs.processed),
	)
	assert.Equal(t, []string{"unrelated.txt"}, listNames(t, dirs.inbound))

	outputs := listNames(t, dirs.out)
	require.Len(t, outputs, 4)

	byPrefix := map[string]int{}
	for _, name := range outputs {
		byPrefix[strings.SplitN(name, "_", 2)[0]]++
	}

	assert.Equal(t, map[string]int{"cabecera": 1, "detalle": 2, "leyenda": 1}, byPrefix)
}

func TestLane_Run(t *testing.T) {
	dirs := newLaneDirs(t)
	listener := &recordingListener{}

	reject := HandlerFunc(func(_ context.Context, _ string, content []byte) ([]byte, error) {
		if strings.Contains(string(content), "bad") {
			return nil, errors.New("invalid detail row")
		}

		return content, nil
	})

	lane, err := NewLane(testLaneConfig("detalle", dirs), WithHandler(reject), WithListener(listener))
	require.NoError(t, err)
	assert.Equal(t, "detalle", lane.Name())

	writeFile(t, dirs.inbound, "detalle_001.txt", "good")
	writeFile(t, dirs.inbound, filepath.Join("2024", "detalle_002.txt"), "bad")

	ctx, cancel := context.WithCancel(quietContext())
	runErr := make(chan error, 1)

	go func() { runErr <- lane.Run(ctx) }()

	require.Eventually(t, func() bool { return len(listener.all()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-runErr)

	assert.Equal(t, []string{"detalle_001.txt"}, listNames(t, dirs.processed))
	assert.Equal(t, []string{"2024"}, listNames(t, dirs.failed))
	assert.FileExists(t, filepath.Join(dirs.failed, "2024", "detalle_002.txt"))
	assert.Len(t, listNames(t, dirs.out), 1)

	stats := lane.Stats()
	assert.Equal(t, int64(1), stats.Committed)
	assert.Equal(t, int64(1), stats.RolledBack)
	assert.Equal(t, 2, stats.Claimed)
	assert.Zero(t, stats.InFlight)
	assert.False(t, stats.LastPollAt.IsZero())
	assert.Empty(t, stats.LastPollError)
}

func TestLane_RunFailsOnUncreatableDestination(t *testing.T) {
	dirs := newLaneDirs(t)
	writeFile(t, filepath.Dir(dirs.failed), filepath.Base(dirs.failed), "blocker")

	lane, err := NewLane(testLaneConfig("leyenda", dirs))
	require.NoError(t, err)

	require.Error(t, lane.Run(quietContext()))
}

func TestRunLanes_FailingLaneStopsTheOthers(t *testing.T) {
	healthyDirs := newLaneDirs(t)
	brokenDirs := newLaneDirs(t)
	writeFile(t, filepath.Dir(brokenDirs.failed), filepath.Base(brokenDirs.failed), "blocker")

	healthy, err := NewLane(testLaneConfig("cabecera", healthyDirs))
	require.NoError(t, err)

	broken, err := NewLane(testLaneConfig("detalle", brokenDirs))
	require.NoError(t, err)

	ctx, buf := capturingContext()
	done := make(chan error, 1)

	go func() { done <- RunLanes(ctx, healthy, broken) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lane detalle")
	case <-time.After(2 * time.Second):
		t.Fatal("RunLanes did not return after a lane failed")
	}

	assert.Contains(t, buf.String(), "lane failed, stopping all lanes")
}

func TestLane_SharedClaimSetAcrossInstances(t *testing.T) {
	dirs := newLaneDirs(t)
	writeFile(t, dirs.inbound, "cabecera_001.txt", "H")

	blocked := make(chan struct{})
	released := make(chan struct{})

	slow := HandlerFunc(func(_ context.Context, _ string, content []byte) ([]byte, error) {
		close(blocked)
		<-released

		return content, nil
	})

	claims := NewClaimSet()
	listener := &recordingListener{}

	first, err := NewLane(testLaneConfig("cabecera", dirs), WithClaimSet(claims), WithHandler(slow), WithListener(listener))
	require.NoError(t, err)

	second, err := NewLane(testLaneConfig("cabecera", dirs), WithClaimSet(claims), WithListener(listener))
	require.NoError(t, err)

	ctx := quietContext()

	n, err := first.Poller().Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	<-blocked

	// the file is still in the source directory but already claimed
	n, err = second.Poller().Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	close(released)
	first.pool.Wait()

	require.Len(t, listener.all(), 1)
	assert.True(t, listener.all()[0].Committed())
}
