package monitor_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/config"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/dump"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/monitor"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/rotate"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCapturer struct {
	calls atomic.Int32
}

func (c *countingCapturer) Capture(context.Context, int32, string) error {
	c.calls.Add(1)
	return nil
}

type countingUploader struct {
	calls atomic.Int32
}

func (u *countingUploader) Upload(context.Context, string, string) error {
	u.calls.Add(1)
	return nil
}

type harness struct {
	dir         string
	monitor     *monitor.Monitor
	coordinator *dump.Coordinator
	rotator     *rotate.Rotator
	capturer    *countingCapturer
	uploader    *countingUploader
	metrics     *telemetry.Metrics
}

func newHarness(t *testing.T, threshold int) *harness {
	t.Helper()

	dir := t.TempDir()
	clock := func() time.Time { return now }

	rotator, err := rotate.New(dir)
	require.NoError(t, err)
	rotator.SetClock(clock)
	t.Cleanup(func() { rotator.Close() })

	h := &harness{
		dir:      dir,
		rotator:  rotator,
		capturer: &countingCapturer{},
		uploader: &countingUploader{},
		metrics:  telemetry.New(),
	}

	h.coordinator, err = dump.New(dump.Options{
		Dir:         dir,
		PID:         1234,
		Instance:    "web-1",
		Destination: "https://acct.blob/dumps?sig=x",
		Capturer:    h.capturer,
		Uploader:    h.uploader,
		Status:      rotator,
		Observer:    h.metrics,
		Now:         clock,
	})
	require.NoError(t, err)

	h.monitor = monitor.New(monitor.Options{
		Threshold: threshold,
		Writer:    rotator,
		Trigger:   h.coordinator,
		Metrics:   h.metrics,
		Now:       clock,
	})

	return h
}

func line(ts string, value string) string {
	return ts + ",System.Runtime,ThreadPool Thread Count,Metric," + value
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestEndToEndDefaultThreshold(t *testing.T) {
	h := newHarness(t, config.DefaultThreshold)
	ctx := context.Background()

	h.monitor.Handle(ctx, line("10:00:01", "99"))
	h.monitor.Handle(ctx, line("10:00:02", "150"))
	h.coordinator.Wait()
	h.monitor.Handle(ctx, line("10:00:03", "200"))
	h.coordinator.Wait()

	assert.Equal(t, int32(1), h.capturer.calls.Load())
	assert.Equal(t, int32(1), h.uploader.calls.Load())

	lines := readLines(t, rotate.FileName(h.dir, rotate.HourKey(time.Date(2026, 10, 17, 10, 0, 0, 0, time.Local))))
	require.Len(t, lines, 6)
	assert.Equal(t, "10:00:01: Thread Pool Thread Count: 99", lines[0])
	assert.Equal(t, "10:00:02: Thread Pool Thread Count: 150", lines[1])
	assert.Contains(t, lines[2], "exceeded threshold 100, collecting memory dump")
	assert.Contains(t, lines[3], "Memory dump collected at "+filepath.Join(h.dir, "dump_web-1_"))
	assert.Contains(t, lines[4], "Memory dump uploaded")
	assert.Equal(t, "10:00:03: Thread Pool Thread Count: 200", lines[5])

	_, err := os.Stat(filepath.Join(h.dir, dump.LockFileName))
	require.NoError(t, err)
}

func TestBelowThresholdNeverCaptures(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	for v := 0; v < 100; v++ {
		h.monitor.Handle(ctx, line("10:00:01", monitor.FormatValue(float64(v))))
	}
	h.coordinator.Wait()

	assert.Zero(t, h.capturer.calls.Load())
	assert.Equal(t, dump.Armed, h.coordinator.State())
	_, err := os.Stat(filepath.Join(h.dir, dump.LockFileName))
	assert.True(t, os.IsNotExist(err))

	expected := `
# HELP countersmon_breaches_total Samples at or above the threshold.
# TYPE countersmon_breaches_total counter
countersmon_breaches_total 0
# HELP countersmon_samples_total Thread count samples processed.
# TYPE countersmon_samples_total counter
countersmon_samples_total 100
`
	require.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected),
		"countersmon_samples_total", "countersmon_breaches_total"))
}

func TestManyBreachesCaptureOnce(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	for v := 100; v < 400; v += 7 {
		h.monitor.Handle(ctx, line("10:00:01", monitor.FormatValue(float64(v))))
	}
	h.coordinator.Wait()

	assert.Equal(t, int32(1), h.capturer.calls.Load())
	assert.Equal(t, dump.Locked, h.coordinator.State())
}

func TestSkipsIrrelevantAndMalformedLines(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	h.monitor.Handle(ctx, "Timestamp,Provider,Counter Name,Counter Type,Mean/Increment")
	h.monitor.Handle(ctx, line("10:00:01", "lots"))
	h.monitor.Handle(ctx, line("10:00:02", "5"))

	lines := readLines(t, h.rotator.Current())
	assert.Equal(t, []string{"10:00:02: Thread Pool Thread Count: 5"}, lines)
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	h := newHarness(t, 100)

	lines := make(chan string, 3)
	lines <- line("10:59:59", "1")
	lines <- line("11:00:00", "2")
	close(lines)

	require.NoError(t, h.monitor.Run(context.Background(), lines))

	assert.Equal(t, []string{"10:59:59: Thread Pool Thread Count: 1"},
		readLines(t, rotate.FileName(h.dir, "2026-10-17_10")))
	assert.Equal(t, []string{"11:00:00: Thread Pool Thread Count: 2"},
		readLines(t, rotate.FileName(h.dir, "2026-10-17_11")))
}
