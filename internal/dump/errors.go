package dump

import "github.com/mainulhossain123/netcore-counters-monitoring/internal/errors"

const (
	ErrLockHeld      = errors.ErrorCode("dump_lock_held")
	ErrCreateLock    = errors.ErrorCode("dump_lock_create_failed")
	ErrCaptureFailed = errors.ErrorCode("dump_capture_failed")
	ErrUploadFailed  = errors.ErrorCode("dump_upload_failed")
)
