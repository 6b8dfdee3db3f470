package rotate_test

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/rotate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func logFiles(t *testing.T, dir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "threadcount_*.log"))
	require.NoError(t, err)
	sort.Strings(matches)

	return matches
}

func TestHourKey(t *testing.T) {
	ts := time.Date(2026, 10, 17, 9, 59, 59, 0, time.Local)
	assert.Equal(t, "2026-10-17_09", rotate.HourKey(ts))
	assert.Equal(t, "/logs/threadcount_2026-10-17_09.log", rotate.FileName("/logs", "2026-10-17_09"))
}

func TestFirstWriteOpensOneFile(t *testing.T) {
	dir := t.TempDir()
	r, err := rotate.New(dir)
	require.NoError(t, err)
	defer r.Close()

	assert.Empty(t, r.Current())
	assert.Empty(t, logFiles(t, dir))

	ts := time.Date(2026, 10, 17, 10, 0, 1, 0, time.Local)
	require.NoError(t, r.WriteLine(ts, "one"))
	require.NoError(t, r.WriteLine(ts.Add(time.Minute), "two"))

	files := logFiles(t, dir)
	require.Len(t, files, 1)
	assert.Equal(t, rotate.FileName(dir, "2026-10-17_10"), r.Current())
	assert.Equal(t, []string{"one", "two"}, readLines(t, files[0]))
}

func TestRotationAcrossThreeHours(t *testing.T) {
	dir := t.TempDir()
	r, err := rotate.New(dir)
	require.NoError(t, err)
	defer r.Close()

	h1 := time.Date(2026, 10, 17, 10, 59, 59, 0, time.Local)
	h2 := time.Date(2026, 10, 17, 11, 0, 0, 0, time.Local)
	h3 := time.Date(2026, 10, 17, 12, 30, 0, 0, time.Local)

	require.NoError(t, r.WriteLine(h1, "h1-a"))
	require.NoError(t, r.WriteLine(h1, "h1-b"))
	require.NoError(t, r.WriteLine(h2, "h2-boundary"))
	require.NoError(t, r.WriteLine(h2.Add(time.Minute), "h2-b"))
	require.NoError(t, r.WriteLine(h3, "h3-a"))

	files := logFiles(t, dir)
	require.Len(t, files, 3)

	assert.Equal(t, []string{"h1-a", "h1-b"}, readLines(t, rotate.FileName(dir, "2026-10-17_10")))
	assert.Equal(t, []string{"h2-boundary", "h2-b"}, readLines(t, rotate.FileName(dir, "2026-10-17_11")))
	assert.Equal(t, []string{"h3-a"}, readLines(t, rotate.FileName(dir, "2026-10-17_12")))
}

func TestStatusGoesToActiveFile(t *testing.T) {
	dir := t.TempDir()
	r, err := rotate.New(dir)
	require.NoError(t, err)
	defer r.Close()

	ts := time.Date(2026, 10, 17, 10, 0, 0, 0, time.Local)
	require.NoError(t, r.WriteLine(ts, "sample"))
	require.NoError(t, r.Statusf("status %d", 1))

	assert.Equal(t, []string{"sample", "status 1"}, readLines(t, rotate.FileName(dir, "2026-10-17_10")))
}

func TestStatusBeforeFirstSampleUsesClock(t *testing.T) {
	dir := t.TempDir()
	r, err := rotate.New(dir)
	require.NoError(t, err)
	defer r.Close()

	r.SetClock(func() time.Time { return time.Date(2026, 10, 17, 8, 15, 0, 0, time.Local) })
	require.NoError(t, r.Statusf("starting"))

	assert.Equal(t, []string{"starting"}, readLines(t, rotate.FileName(dir, "2026-10-17_08")))
}

func TestCloseReleasesFile(t *testing.T) {
	dir := t.TempDir()
	r, err := rotate.New(dir)
	require.NoError(t, err)

	require.NoError(t, r.WriteLine(time.Now(), "x"))
	require.NoError(t, r.Close())
	assert.Empty(t, r.Current())
	require.NoError(t, r.Close())
}
