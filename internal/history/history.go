// Package history keeps an optional SQLite record of thread count samples and
// dump workflow events.
package history

import (
	"context"

	"github.com/google/uuid"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"
	"github.com/mainulhossain123/netcore-counters-monitoring/internal/logger"
)

type service struct {
	repo  Repository
	runID string
}

type noopRecorder struct {
	runID string
}

// NewService returns a SQLite-backed Recorder, or a no-op Recorder when
// history is disabled. Every run gets a fresh run id.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	runID := uuid.NewString()

	if !cfg.Enabled {
		log.Debug().Msg("History disabled, using no-op recorder")
		return &noopRecorder{runID: runID}, nil
	}

	repo, err := NewRepository(cfg, runID, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	return &service{
		repo:  repo,
		runID: runID,
	}, nil
}

func (s *service) RecordSample(ctx context.Context, sample SampleRecord) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.RecordSample(sample); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) RecordEvent(ctx context.Context, event Event) error {
	if err := s.repo.RecordEvent(ctx, event); err != nil {
		return errors.New().Wrap(ErrRecordFailed, err)
	}

	return nil
}

func (s *service) RunID() string {
	return s.runID
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*noopRecorder) RecordSample(_ context.Context, _ SampleRecord) error {
	return nil
}

func (*noopRecorder) RecordEvent(_ context.Context, _ Event) error {
	return nil
}

func (n *noopRecorder) RunID() string {
	return n.runID
}

func (*noopRecorder) Close() error {
	return nil
}
