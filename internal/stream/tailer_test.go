package stream_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pollInterval = 20 * time.Millisecond

func startTailer(t *testing.T, path string) (<-chan string, context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string, 16)
	done := make(chan error, 1)
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		done <- stream.NewTailer(path, pollInterval).Run(ctx, lines)
	}()

	t.Cleanup(func() {
		cancel()
		<-finished
	})

	return lines, cancel, done
}

func nextLine(t *testing.T, lines <-chan string) string {
	t.Helper()

	select {
	case line, ok := <-lines:
		require.True(t, ok, "line channel closed")
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func appendTo(t *testing.T, path, data string) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestTailerReadsExistingAndAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.csv")
	appendTo(t, path, "first\r\nsecond\n")

	lines, _, _ := startTailer(t, path)

	assert.Equal(t, "first", nextLine(t, lines))
	assert.Equal(t, "second", nextLine(t, lines))

	appendTo(t, path, "third\n")
	assert.Equal(t, "third", nextLine(t, lines))
}

func TestTailerWaitsForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.csv")

	lines, _, _ := startTailer(t, path)

	time.Sleep(3 * pollInterval)
	appendTo(t, path, "created\n")

	assert.Equal(t, "created", nextLine(t, lines))
}

func TestTailerJoinsPartialLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.csv")
	appendTo(t, path, "")

	lines, _, _ := startTailer(t, path)

	appendTo(t, path, "10:00:01,System.Runtime,")
	time.Sleep(3 * pollInterval)
	select {
	case line := <-lines:
		t.Fatalf("unexpected partial line %q", line)
	default:
	}

	appendTo(t, path, "ThreadPool Thread Count,Metric,12\n")
	assert.Equal(t, "10:00:01,System.Runtime,ThreadPool Thread Count,Metric,12", nextLine(t, lines))
}

func TestTailerRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.csv")
	appendTo(t, path, "a long line before truncation\n")

	lines, _, _ := startTailer(t, path)
	assert.Equal(t, "a long line before truncation", nextLine(t, lines))

	require.NoError(t, os.Truncate(path, 0))
	time.Sleep(3 * pollInterval)
	appendTo(t, path, "after\n")

	assert.Equal(t, "after", nextLine(t, lines))
}

func TestTailerStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.csv")
	lines, cancel, done := startTailer(t, path)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tailer did not stop")
	}

	_, ok := <-lines
	assert.False(t, ok, "expected closed channel")
}

func TestResetDropsStaleLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.csv")
	appendTo(t, path, "10/16/2026 03:15:00,System.Runtime,ThreadPool Thread Count,Metric,500\n")

	require.NoError(t, stream.Reset(path))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	lines, _, _ := startTailer(t, path)
	appendTo(t, path, "fresh\n")

	assert.Equal(t, "fresh", nextLine(t, lines))
}

func TestResetMissingFile(t *testing.T) {
	require.NoError(t, stream.Reset(filepath.Join(t.TempDir(), "absent.csv")))
}

func TestResetFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.csv")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0o755))

	err := stream.Reset(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, stream.ErrReset))
}
