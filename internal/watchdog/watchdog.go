// Package watchdog wires the counter source, size guard, stream reader and
// sample pipeline for one monitored process.
package watchdog

import (
	"context"
	"strconv"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/dump"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/history"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/monitor"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/rotate"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/sizeguard"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/stream"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// LineBuffer is how many stream lines may queue ahead of the pipeline.
const LineBuffer = 1024

// Collector produces the counter stream file for a process.
type Collector interface {
	Collect(ctx context.Context, pid int32, output string) error
}

type Options struct {
	PID         int32
	Instance    string
	Destination string
	Threshold   int

	OutputDir         string
	MetricsFile       string
	MaxMetricsSize    int64
	SizeCheckInterval time.Duration
	PollInterval      time.Duration
	MetricsAddr       string

	Collector Collector
	Capturer  dump.Capturer
	Uploader  dump.Uploader
	Recorder  history.Recorder
	Metrics   *telemetry.Metrics
}

// Run watches the process until ctx is cancelled, the collector exits or an
// activity fails. A counter stream left by an earlier run is removed first so
// only samples from this run are evaluated.
func Run(ctx context.Context, opts Options) error {
	if err := stream.Reset(opts.MetricsFile); err != nil {
		return err
	}

	rotator, err := rotate.New(opts.OutputDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := rotator.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close thread count log")
		}
	}()

	coordinator, err := dump.New(dump.Options{
		Dir:         opts.OutputDir,
		PID:         opts.PID,
		Instance:    opts.Instance,
		Destination: opts.Destination,
		Capturer:    opts.Capturer,
		Uploader:    opts.Uploader,
		Status:      rotator,
		Recorder:    opts.Recorder,
		Observer:    opts.Metrics,
	})
	if err != nil {
		return err
	}

	pipeline := monitor.New(monitor.Options{
		Threshold: opts.Threshold,
		Writer:    rotator,
		Trigger:   coordinator,
		Recorder:  opts.Recorder,
		Metrics:   opts.Metrics,
	})

	observer := &TruncationObserver{Metrics: opts.Metrics, Recorder: opts.Recorder, Instance: opts.Instance}
	guard := sizeguard.New(opts.MetricsFile, opts.MaxMetricsSize, opts.SizeCheckInterval, observer)
	tailer := stream.NewTailer(opts.MetricsFile, opts.PollInterval)
	lines := make(chan string, LineBuffer)

	g, gctx := errgroup.WithContext(ctx)
	gctx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		// Without the counter source there is nothing left to watch
		defer stop()
		if err := opts.Collector.Collect(gctx, opts.PID, opts.MetricsFile); err != nil {
			return err
		}
		if ctx.Err() == nil {
			logger.Info().Int32("pid", opts.PID).Msg("Counter collector exited")
		}
		return nil
	})
	g.Go(func() error {
		return guard.Run(gctx)
	})
	g.Go(func() error {
		return tailer.Run(gctx, lines)
	})
	g.Go(func() error {
		return pipeline.Run(gctx, lines)
	})
	if opts.MetricsAddr != "" && opts.Metrics != nil {
		g.Go(func() error {
			return opts.Metrics.Serve(gctx, opts.MetricsAddr)
		})
	}

	return g.Wait()
}

// TruncationObserver reports size guard truncations to metrics and history.
type TruncationObserver struct {
	Metrics  *telemetry.Metrics
	Recorder history.Recorder
	Instance string
}

func (o *TruncationObserver) ObserveTruncation(size int64) {
	o.Metrics.ObserveTruncation(size)

	if o.Recorder == nil {
		return
	}

	event := history.Event{
		Timestamp: time.Now(),
		Kind:      history.EventStreamTruncate,
		Instance:  o.Instance,
		Detail:    strconv.FormatInt(size, 10),
	}
	if err := o.Recorder.RecordEvent(context.Background(), event); err != nil {
		logger.Debug().Err(err).Msg("Failed to record truncation")
	}
}
