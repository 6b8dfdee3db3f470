// Package monitor turns counter stream lines into hourly log entries and dump
// triggers.
package monitor

import (
	"context"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/history"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/telemetry"
)

// LineWriter stores a rendered sample under its timestamp.
type LineWriter interface {
	WriteLine(ts time.Time, line string) error
}

// Trigger starts the dump workflow for a breaching value.
type Trigger interface {
	Trigger(ctx context.Context, value float64, threshold int) bool
}

type Options struct {
	Threshold int
	Writer    LineWriter
	Trigger   Trigger
	Recorder  history.Recorder
	Metrics   *telemetry.Metrics
	Now       func() time.Time
}

// Monitor processes one line at a time; it is not safe for concurrent use.
type Monitor struct {
	threshold int
	writer    LineWriter
	trigger   Trigger
	recorder  history.Recorder
	metrics   *telemetry.Metrics
	now       func() time.Time
}

func New(opts Options) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Metrics.SetThreshold(opts.Threshold)

	return &Monitor{
		threshold: opts.Threshold,
		writer:    opts.Writer,
		trigger:   opts.Trigger,
		recorder:  opts.Recorder,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// Run handles lines until the channel closes or ctx is done.
func (m *Monitor) Run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			m.Handle(ctx, line)
		}
	}
}

// Handle processes a single line. Irrelevant and malformed lines are skipped;
// no error escapes so one bad sample cannot stop the watchdog.
func (m *Monitor) Handle(ctx context.Context, line string) {
	sample, err := ParseSample(line, m.now())
	if err != nil {
		if errors.HasCode(err, ErrMalformedSample) {
			m.metrics.ObserveMalformed()
			logger.Debug().Err(err).Str("line", line).Msg("Skipping malformed sample")
		}
		return
	}

	if err := m.writer.WriteLine(sample.Time, sample.LogLine()); err != nil {
		logger.Warn().Err(err).Msg("Failed to write thread count log line")
	}

	breached := Exceeds(sample.Value, m.threshold)
	m.metrics.ObserveSample(sample.Counter, sample.Value, breached)

	if m.recorder != nil {
		record := history.SampleRecord{Timestamp: sample.Time, Value: sample.Value, Breached: breached}
		if err := m.recorder.RecordSample(ctx, record); err != nil {
			logger.Debug().Err(err).Msg("Failed to record sample")
		}
	}

	if !breached {
		return
	}

	logger.Debug().
		Float64("value", sample.Value).
		Int("threshold", m.threshold).
		Msg("Thread count at or above threshold")

	if m.trigger.Trigger(ctx, sample.Value, m.threshold) {
		logger.Warn().
			Float64("value", sample.Value).
			Int("threshold", m.threshold).
			Msg("Thread count exceeded threshold, memory dump started")
	}
}
