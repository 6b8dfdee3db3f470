package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/config"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/history"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/pid"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/proc"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/telemetry"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/tools"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/watchdog"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if cfg.Cleanup {
		runCleanup(ctx)
		return
	}

	if err := run(ctx); err != nil {
		fatal(err, "Watchdog stopped")
	}
	logger.Info().Msg("Exiting...")
}

// run discovers the target and watches it until the watchdog stops.
func run(ctx context.Context) error {
	errFactory := errors.New()

	target, err := proc.Discover(ctx, cfg.ProcessName)
	if err != nil {
		return err
	}

	env, err := proc.Environ(ctx, target)
	if err != nil {
		return err
	}

	instance := env[cfg.InstanceEnv]
	if instance == "" {
		return errFactory.WithData(errors.ErrMissingEnv, cfg.InstanceEnv)
	}

	destination := env[cfg.UploadEnv]
	if destination == "" {
		logger.Warn().Str("variable", cfg.UploadEnv).Msg("Upload destination not set, memory dumps will not be uploaded")
	}

	logger.Info().
		Int32("pid", target).
		Str("instance", instance).
		Int("threshold", cfg.Threshold).
		Str("output_dir", cfg.OutputDir).
		Msg("Monitoring thread pool")

	if err := pid.Write(cfg.OutputDir); err != nil {
		return err
	}
	defer removePID()

	historyCfg := history.DefaultConfig(cfg.HistoryDB)
	historyCfg.Enabled = cfg.History
	recorder, err := history.NewService(historyCfg, logger.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to flush history")
		}
	}()

	return watchdog.Run(ctx, watchdog.Options{
		PID:               target,
		Instance:          instance,
		Destination:       destination,
		Threshold:         cfg.Threshold,
		OutputDir:         cfg.OutputDir,
		MetricsFile:       cfg.MetricsFile,
		MaxMetricsSize:    cfg.MaxMetricsSize,
		SizeCheckInterval: cfg.SizeCheckInterval,
		PollInterval:      cfg.PollInterval,
		MetricsAddr:       cfg.MetricsAddr,
		Collector: tools.CounterCollector{
			Binary:          cfg.DotnetCounters,
			Counters:        cfg.Counters,
			RefreshInterval: cfg.RefreshInterval,
		},
		Capturer: tools.DumpCapturer{Binary: cfg.DotnetDump},
		Uploader: tools.AzCopy{Binary: cfg.AzCopy},
		Recorder: recorder,
		Metrics:  telemetry.New(),
	})
}

func runCleanup(ctx context.Context) {
	names := []string{
		filepath.Base(cfg.DotnetCounters),
		filepath.Base(cfg.DotnetDump),
		filepath.Base(cfg.AzCopy),
	}

	killed, err := proc.Terminate(ctx, names...)
	if err != nil {
		logger.Warn().Err(err).Msg("Some processes could not be terminated")
	}
	removePID()

	logger.Info().Int("terminated", killed).Strs("names", names).Msg("Cleanup complete")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func removePID() {
	if err := pid.Remove(cfg.OutputDir); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
}

func fatal(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.FatalWithCode(appErr).Msg(msg)
	}
	logger.Fatal().Err(err).Msg(msg)
}
