package stream

import "github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"

const (
	ErrOpenStream = errors.ErrorCode("stream_open_failed")
	ErrReadStream = errors.ErrorCode("stream_read_failed")
	ErrWatch      = errors.ErrorCode("stream_watch_failed")
	ErrReset      = errors.ErrorCode("stream_reset_failed")
)
