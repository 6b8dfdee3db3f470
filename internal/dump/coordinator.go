// Package dump runs the one-shot memory dump workflow.
//
// A Coordinator starts Armed. The first breach moves it to Locked, creates the
// lock file and launches capture then upload on a detached goroutine. Locked
// is permanent; the lock file is never removed by this process, and a lock
// file left behind by an earlier run starts the Coordinator Locked.
package dump

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/history"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
)

const (
	LockFileName = "dump_taken.lock"

	artifactTimeLayout = "20060102_150405"
	filePerm           = 0o644
)

type State int32

const (
	Armed State = iota
	Locked
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Locked:
		return "locked"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ArtifactPath returns dir/dump_<instance>_<yyyyMMdd_HHmmss>.dmp.
func ArtifactPath(dir, instance string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("dump_%s_%s.dmp", instance, at.Format(artifactTimeLayout)))
}

// Options configures a Coordinator.
type Options struct {
	Dir         string
	PID         int32
	Instance    string
	Destination string

	Capturer Capturer
	Uploader Uploader
	Status   StatusWriter
	Recorder history.Recorder
	Observer Observer
	Now      func() time.Time
}

type Coordinator struct {
	opts     Options
	lockPath string
	state    atomic.Int32
	wg       sync.WaitGroup
}

func New(opts Options) (*Coordinator, error) {
	if opts.Dir == "" || opts.Capturer == nil || opts.Uploader == nil || opts.Status == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "dump coordinator requires dir, capturer, uploader and status writer")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Coordinator{
		opts:     opts,
		lockPath: filepath.Join(opts.Dir, LockFileName),
	}

	if _, err := os.Stat(c.lockPath); err == nil {
		c.state.Store(int32(Locked))
		logger.Warn().
			Str("lock", c.lockPath).
			Msg("Dump lock already present, memory dumps disabled for this run")
	}

	return c, nil
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// LockPath returns the lock file location.
func (c *Coordinator) LockPath() string {
	return c.lockPath
}

// Trigger handles a breaching sample. It returns true only for the call that
// moved the Coordinator from Armed to Locked and started the workflow; every
// other call is a no-op. Trigger never blocks on capture or upload.
func (c *Coordinator) Trigger(ctx context.Context, value float64, threshold int) bool {
	if !c.state.CompareAndSwap(int32(Armed), int32(Locked)) {
		return false
	}

	now := c.opts.Now()
	c.status("%s: Thread count %s exceeded threshold %d, collecting memory dump",
		now.Format(time.DateTime), formatValue(value), threshold)
	c.record(ctx, history.Event{Timestamp: now, Kind: history.EventBreach, Detail: formatValue(value)})

	if err := c.acquireLock(now); err != nil {
		if errors.HasCode(err, ErrLockHeld) {
			logger.Warn().Str("lock", c.lockPath).Msg("Dump lock created externally, skipping capture")
			c.status("%s: Memory dump not collected: lock %s already exists", now.Format(time.DateTime), c.lockPath)
		} else {
			logger.ErrorWithCode(err).Msg("Failed to create dump lock")
			c.status("%s: Memory dump not collected: %v", now.Format(time.DateTime), errors.Unwrap(err))
		}
		return false
	}

	if c.opts.Observer != nil {
		c.opts.Observer.ObserveLocked()
	}
	c.record(ctx, history.Event{Timestamp: now, Kind: history.EventLockAcquired})

	artifact := ArtifactPath(c.opts.Dir, c.opts.Instance, now)

	// The workflow outlives the pipeline: shutdown does not cancel or await it
	bg := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.collect(bg, artifact)
	}()

	return true
}

// Wait blocks until a started workflow finishes.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) acquireLock(now time.Time) errors.Error {
	errFactory := errors.New()

	file, err := os.OpenFile(c.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		if os.IsExist(err) {
			return errFactory.Wrap(ErrLockHeld, err)
		}
		return errFactory.Wrap(ErrCreateLock, err)
	}
	defer file.Close()

	line := fmt.Sprintf("Dump taken by %s", c.opts.Instance)
	if c.opts.Recorder != nil {
		line += fmt.Sprintf(" (run %s)", c.opts.Recorder.RunID())
	}
	line += fmt.Sprintf(" at %s\n", now.Format(time.RFC3339))

	// The lock is held once the file exists; its content is informational
	if _, err := file.WriteString(line); err != nil {
		logger.Warn().Err(err).Str("lock", c.lockPath).Msg("Failed to write dump lock details")
	}

	return nil
}

func (c *Coordinator) collect(ctx context.Context, artifact string) {
	errFactory := errors.New()
	log := logger.Info().Str("artifact", artifact).Int32("pid", c.opts.PID)
	log.Msg("Collecting memory dump")

	if err := c.opts.Capturer.Capture(ctx, c.opts.PID, artifact); err != nil {
		wrapped := errFactory.Wrap(ErrCaptureFailed, err)
		logger.ErrorWithCode(wrapped).Str("artifact", artifact).Msg("Memory dump capture failed")
		c.status("%s: Memory dump collection failed: %v", c.opts.Now().Format(time.DateTime), err)
		c.observeCapture(wrapped)
		c.record(ctx, history.Event{Timestamp: c.opts.Now(), Kind: history.EventCaptureFailed, Artifact: artifact, Detail: err.Error()})
		return
	}

	c.observeCapture(nil)
	c.status("%s: Memory dump collected at %s", c.opts.Now().Format(time.DateTime), artifact)
	c.record(ctx, history.Event{Timestamp: c.opts.Now(), Kind: history.EventCaptureDone, Artifact: artifact})
	logger.Info().Str("artifact", artifact).Msg("Memory dump collected")

	if err := c.opts.Uploader.Upload(ctx, artifact, c.opts.Destination); err != nil {
		wrapped := errFactory.Wrap(ErrUploadFailed, err)
		logger.ErrorWithCode(wrapped).Str("artifact", artifact).Msg("Memory dump upload failed")
		c.status("%s: Memory dump upload failed: %v", c.opts.Now().Format(time.DateTime), err)
		c.observeUpload(wrapped)
		c.record(ctx, history.Event{Timestamp: c.opts.Now(), Kind: history.EventUploadFailed, Artifact: artifact, Detail: err.Error()})
		return
	}

	c.observeUpload(nil)
	c.status("%s: Memory dump uploaded", c.opts.Now().Format(time.DateTime))
	c.record(ctx, history.Event{Timestamp: c.opts.Now(), Kind: history.EventUploadDone, Artifact: artifact})
	logger.Info().Str("artifact", artifact).Msg("Memory dump uploaded")
}

func (c *Coordinator) status(format string, args ...any) {
	if err := c.opts.Status.Statusf(format, args...); err != nil {
		logger.Warn().Err(err).Msg("Failed to write status line")
	}
}

func (c *Coordinator) record(ctx context.Context, event history.Event) {
	if c.opts.Recorder == nil {
		return
	}
	event.Instance = c.opts.Instance
	if err := c.opts.Recorder.RecordEvent(ctx, event); err != nil {
		logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("Failed to record dump event")
	}
}

func (c *Coordinator) observeCapture(err error) {
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveCapture(err)
	}
}

func (c *Coordinator) observeUpload(err error) {
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveUpload(err)
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
