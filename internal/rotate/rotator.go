// Package rotate writes human-readable log lines into one file per hour.
package rotate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
)

const (
	// HourLayout formats the hour key embedded in file names.
	HourLayout = "2006-01-02_15"

	filePrefix = "threadcount_"
	fileSuffix = ".log"
	dirPerm    = 0o755
	filePerm   = 0o644
)

// HourKey returns the rotation key for t in local time.
func HourKey(t time.Time) string {
	return t.Local().Format(HourLayout)
}

// FileName returns the output file for an hour key.
func FileName(dir, hourKey string) string {
	return filepath.Join(dir, filePrefix+hourKey+fileSuffix)
}

// state is the active hour and its open file.
type state struct {
	hourKey string
	file    *os.File
}

// Rotator routes lines to threadcount_<hour>.log in its directory. Exactly one
// file is open at a time. It is safe for concurrent use.
type Rotator struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	state state
}

func New(dir string) (*Rotator, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.New().Wrap(ErrOpenLog, err)
	}

	return &Rotator{
		dir: dir,
		now: time.Now,
	}, nil
}

// SetClock replaces the wall clock used for status lines.
func (r *Rotator) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// WriteLine appends line to the file for ts's hour, rotating first when the
// hour changed since the previous write.
func (r *Rotator) WriteLine(ts time.Time, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.rotate(HourKey(ts)); err != nil {
		return err
	}

	return r.write(line)
}

// Statusf appends a formatted status line to the active file. Before the first
// sample it opens the file for the current hour.
func (r *Rotator) Statusf(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.file == nil {
		if err := r.rotate(HourKey(r.now())); err != nil {
			return err
		}
	}

	return r.write(fmt.Sprintf(format, args...))
}

// Current returns the active file path, or "" before the first write.
func (r *Rotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.file == nil {
		return ""
	}

	return r.state.file.Name()
}

// Close releases the active file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.release()
}

func (r *Rotator) rotate(hourKey string) error {
	if r.state.file != nil && r.state.hourKey == hourKey {
		return nil
	}

	path := FileName(r.dir, hourKey)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return errors.New().WithData(ErrOpenLog, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	if err := r.release(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close previous log file")
	}

	r.state = state{hourKey: hourKey, file: file}

	logger.Debug().Str("path", path).Msg("Rotated thread count log")

	return nil
}

func (r *Rotator) write(line string) error {
	if _, err := r.state.file.WriteString(line + "\n"); err != nil {
		return errors.New().Wrap(ErrWriteLog, err)
	}

	return nil
}

func (r *Rotator) release() error {
	if r.state.file == nil {
		return nil
	}

	file := r.state.file
	r.state = state{}

	if err := file.Close(); err != nil {
		return errors.New().Wrap(ErrCloseLog, err)
	}

	return nil
}
