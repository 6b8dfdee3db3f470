// Package tools drives the external .NET diagnostics and upload binaries.
package tools

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
)

const (
	ErrCollectCounters = errors.ErrorCode("tools_collect_counters_failed")
	ErrCaptureDump     = errors.ErrorCode("tools_capture_dump_failed")
	ErrUpload          = errors.ErrorCode("tools_upload_failed")
	ErrMissingURL      = errors.ErrorCode("tools_missing_destination")

	maxOutputInError = 512
)

// CounterCollector runs dotnet-counters and streams CSV samples to a file.
type CounterCollector struct {
	Binary          string
	Counters        string
	RefreshInterval int
}

// Args returns the dotnet-counters command line.
func (c CounterCollector) Args(pid int32, output string) []string {
	args := []string{
		"collect",
		"-p", strconv.Itoa(int(pid)),
		"--counters", c.Counters,
		"--format", "csv",
		"-o", output,
	}
	if c.RefreshInterval > 0 {
		args = append(args, "--refresh-interval", strconv.Itoa(c.RefreshInterval))
	}

	return args
}

// Collect blocks while dotnet-counters runs. Cancelling ctx stops it and is
// not an error.
func (c CounterCollector) Collect(ctx context.Context, pid int32, output string) error {
	err := run(ctx, c.Binary, c.Args(pid, output))
	if err != nil && ctx.Err() == nil {
		return errors.New().Wrap(ErrCollectCounters, err)
	}

	return nil
}

// DumpCapturer runs dotnet-dump collect.
type DumpCapturer struct {
	Binary string
}

func (d DumpCapturer) Args(pid int32, output string) []string {
	return []string{"collect", "-p", strconv.Itoa(int(pid)), "-o", output}
}

func (d DumpCapturer) Capture(ctx context.Context, pid int32, output string) error {
	if err := run(ctx, d.Binary, d.Args(pid, output)); err != nil {
		return errors.New().Wrap(ErrCaptureDump, err)
	}

	return nil
}

// AzCopy uploads files with azcopy copy.
type AzCopy struct {
	Binary string
}

func (a AzCopy) Args(path, destination string) []string {
	return []string{"copy", path, destination}
}

func (a AzCopy) Upload(ctx context.Context, path, destination string) error {
	if destination == "" {
		return errors.New().New(ErrMissingURL)
	}

	if err := run(ctx, a.Binary, a.Args(path, destination)); err != nil {
		return errors.New().Wrap(ErrUpload, err)
	}

	return nil
}

// run executes binary and folds a trimmed tail of its output into the error.
func run(ctx context.Context, binary string, args []string) error {
	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	logger.Debug().Str("binary", binary).Strs("args", redact(args)).Msg("Running external tool")

	if err := cmd.Run(); err != nil {
		return errors.New().WithData(errors.ErrOperationFailed, struct {
			Binary string
			Error  string
			Output string
		}{
			Binary: binary,
			Error:  err.Error(),
			Output: tail(output.String(), maxOutputInError),
		})
	}

	return nil
}

// redact strips query strings so SAS tokens never reach the logs.
func redact(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "https://") || strings.HasPrefix(arg, "http://") {
			if base, _, ok := strings.Cut(arg, "?"); ok {
				arg = base + "?REDACTED"
			}
		}
		out[i] = arg
	}

	return out
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}

	return s[len(s)-n:]
}
