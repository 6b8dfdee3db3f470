package rotate

import "github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"

const (
	ErrOpenLog  = errors.ErrorCode("rotate_open_failed")
	ErrWriteLog = errors.ErrorCode("rotate_write_failed")
	ErrCloseLog = errors.ErrorCode("rotate_close_failed")
)
