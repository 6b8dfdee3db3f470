// Package sizeguard bounds the growth of the counter stream file.
package sizeguard

import (
	"context"
	"os"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
)

const (
	DefaultLimit    = 1 << 20
	DefaultInterval = 500 * time.Millisecond

	ErrCheckSize = errors.ErrorCode("sizeguard_check_failed")
	ErrTruncate  = errors.ErrorCode("sizeguard_truncate_failed")
)

// Observer is notified of every truncation.
type Observer interface {
	ObserveTruncation(size int64)
}

// Guard truncates a file to zero length once it reaches Limit bytes.
type Guard struct {
	path     string
	limit    int64
	interval time.Duration
	observer Observer
}

func New(path string, limit int64, interval time.Duration, observer Observer) *Guard {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Guard{
		path:     path,
		limit:    limit,
		interval: interval,
		observer: observer,
	}
}

// Check performs one size check. exists is false when the file is missing.
func (g *Guard) Check() (exists, truncated bool, err error) {
	info, err := os.Stat(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return false, false, errors.New().Wrap(ErrCheckSize, err)
	}

	size := info.Size()
	if size < g.limit {
		return true, false, nil
	}

	// Zero only: a reader restarts from the beginning instead of mid-line
	if err := os.Truncate(g.path, 0); err != nil {
		if os.IsNotExist(err) {
			return false, false, nil
		}
		return true, false, errors.New().Wrap(ErrTruncate, err)
	}

	logger.Info().
		Str("path", g.path).
		Int64("size", size).
		Int64("limit", g.limit).
		Msg("Counter stream truncated")

	if g.observer != nil {
		g.observer.ObserveTruncation(size)
	}

	return true, true, nil
}

// Run checks the file every interval until ctx is done. It waits for the file
// to appear and returns nil once a previously seen file is gone.
func (g *Guard) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	seen := false
	for {
		exists, _, err := g.Check()
		if err != nil {
			logger.Warn().Err(err).Str("path", g.path).Msg("Size check failed")
		}

		if exists {
			seen = true
		} else if seen && err == nil {
			logger.Info().Str("path", g.path).Msg("Counter stream removed, size guard stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
