// Package proc finds the monitored process, reads its environment and tears
// down collaborator processes.
package proc

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	ErrListProcesses = errors.ErrorCode("proc_list_failed")
	ErrReadEnviron   = errors.ErrorCode("proc_environ_failed")
	ErrTerminate     = errors.ErrorCode("proc_terminate_failed")
)

// Discover returns the PID of the first process named name, excluding this
// process. The name matches the executable name or the base name of the
// first command line argument.
func Discover(ctx context.Context, name string) (int32, error) {
	errFactory := errors.New()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, errFactory.Wrap(ErrListProcesses, err)
	}

	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		if matches(ctx, p, name) {
			logger.Debug().Int32("pid", p.Pid).Str("name", name).Msg("Found target process")
			return p.Pid, nil
		}
	}

	return 0, errFactory.WithData(errors.ErrTargetNotFound, name)
}

func matches(ctx context.Context, p *process.Process, name string) bool {
	if n, err := p.NameWithContext(ctx); err == nil && n == name {
		return true
	}

	args, err := p.CmdlineSliceWithContext(ctx)
	if err != nil || len(args) == 0 {
		return false
	}

	return filepath.Base(args[0]) == name
}

// Environ returns the environment of pid as a map.
func Environ(ctx context.Context, pid int32) (map[string]string, error) {
	errFactory := errors.New()

	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, errFactory.Wrap(ErrReadEnviron, err)
	}

	env, err := p.EnvironWithContext(ctx)
	if err != nil {
		return nil, errFactory.Wrap(ErrReadEnviron, err)
	}

	return ParseEnviron(env), nil
}

// ParseEnviron converts KEY=VALUE pairs into a map. Entries without '=' are
// dropped; later duplicates win.
func ParseEnviron(env []string) map[string]string {
	vars := make(map[string]string, len(env))
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = value
	}

	return vars
}

// Terminate kills every process whose name is in names and returns how many
// were killed. It keeps going past individual failures.
func Terminate(ctx context.Context, names ...string) (int, error) {
	errFactory := errors.New()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, errFactory.Wrap(ErrListProcesses, err)
	}

	self := int32(os.Getpid())
	killed := 0
	var firstErr error
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		for _, name := range names {
			if !matches(ctx, p, name) {
				continue
			}
			if err := p.KillWithContext(ctx); err != nil {
				logger.Warn().Err(err).Int32("pid", p.Pid).Str("name", name).Msg("Failed to terminate process")
				if firstErr == nil {
					firstErr = errFactory.Wrap(ErrTerminate, err)
				}
				break
			}
			logger.Info().Int32("pid", p.Pid).Str("name", name).Msg("Terminated process")
			killed++
			break
		}
	}

	return killed, firstErr
}
