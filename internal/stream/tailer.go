// Package stream follows an append-only text file and delivers each complete
// line as it is written.
package stream

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
)

const defaultPollInterval = time.Second

// Tailer reads lines appended to a file. A Tailer is single use.
type Tailer struct {
	path         string
	pollInterval time.Duration

	watcher *fsnotify.Watcher
	file    *os.File
	reader  *bufio.Reader
	offset  int64
	partial strings.Builder
}

// NewTailer creates a tailer for path. pollInterval bounds the wait between
// checks when no filesystem event arrives.
func NewTailer(path string, pollInterval time.Duration) *Tailer {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Tailer{
		path:         path,
		pollInterval: pollInterval,
	}
}

// Reset removes a counter stream left behind by an earlier run so a Tailer
// started afterwards only sees lines written from now on. A missing file is
// not an error.
func Reset(path string) error {
	err := os.Remove(path)
	if err == nil {
		logger.Info().Str("path", path).Msg("Removed stale counter stream")
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}

	return errors.New().Wrap(ErrReset, err)
}

// Run sends every complete line appended to the file to out until ctx is
// cancelled. Run closes out before returning. A file that does not exist yet
// is waited for; a truncated file is read again from the start.
func (t *Tailer) Run(ctx context.Context, out chan<- string) error {
	defer close(out)
	defer t.close()

	t.startWatcher()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if t.file == nil {
			opened, err := t.open()
			if err != nil {
				return err
			}
			if !opened {
				if !t.wait(ctx) {
					return nil
				}
				continue
			}
		}

		if err := t.checkTruncated(); err != nil {
			return err
		}

		chunk, err := t.reader.ReadString('\n')
		t.offset += int64(len(chunk))

		switch {
		case err == nil:
			t.partial.WriteString(chunk)
			line := strings.TrimRight(t.partial.String(), "\r\n")
			t.partial.Reset()
			select {
			case out <- line:
			case <-ctx.Done():
				return nil
			}
		case errors.Is(err, io.EOF):
			// Keep the fragment until its newline arrives
			t.partial.WriteString(chunk)
			if !t.wait(ctx) {
				return nil
			}
		default:
			return errors.New().Wrap(ErrReadStream, err)
		}
	}
}

func (t *Tailer) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("File watcher unavailable, falling back to polling")
		return
	}

	// Watch the directory so creation and recreation of the file are seen
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		logger.Warn().Err(err).Str("path", t.path).Msg("Failed to watch counter stream directory")
		watcher.Close()
		return
	}

	t.watcher = watcher
}

func (t *Tailer) open() (bool, error) {
	file, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.New().Wrap(ErrOpenStream, err)
	}

	t.file = file
	t.reader = bufio.NewReader(file)
	t.offset = 0
	t.partial.Reset()

	logger.Debug().Str("path", t.path).Msg("Opened counter stream")

	return true, nil
}

// checkTruncated rewinds when the file shrank below the read offset, and
// drops the handle when the file was removed so it can be reopened.
func (t *Tailer) checkTruncated() error {
	info, err := os.Stat(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.closeFile()
			return nil
		}
		return errors.New().Wrap(ErrReadStream, err)
	}

	if !os.SameFile(info, statOrNil(t.file)) {
		t.closeFile()
		return nil
	}

	if info.Size() >= t.offset {
		return nil
	}

	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return errors.New().Wrap(ErrReadStream, err)
	}
	t.reader.Reset(t.file)
	t.offset = 0
	t.partial.Reset()

	logger.Debug().Str("path", t.path).Msg("Counter stream truncated, reading from start")

	return nil
}

// wait blocks until the file may have changed. It returns false when ctx is
// done.
func (t *Tailer) wait(ctx context.Context) bool {
	timer := time.NewTimer(t.pollInterval)
	defer timer.Stop()

	if t.watcher == nil {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		}
	}

	name := filepath.Clean(t.path)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case event, ok := <-t.watcher.Events:
			if !ok {
				t.watcher = nil
				return true
			}
			if filepath.Clean(event.Name) == name {
				return true
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				t.watcher = nil
				return true
			}
			logger.Warn().Err(errors.New().Wrap(ErrWatch, err)).Msg("File watcher error")
		}
	}
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		t.file.Close()
		t.file = nil
		t.reader = nil
	}
}

func (t *Tailer) close() {
	t.closeFile()
	if t.watcher != nil {
		t.watcher.Close()
		t.watcher = nil
	}
}

func statOrNil(f *os.File) os.FileInfo {
	info, err := f.Stat()
	if err != nil {
		return nil
	}

	return info
}
