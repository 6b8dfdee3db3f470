package dump

import "context"

// Capturer writes a diagnostic snapshot of pid to path.
type Capturer interface {
	Capture(ctx context.Context, pid int32, path string) error
}

// Uploader ships a local file to a destination URL.
type Uploader interface {
	Upload(ctx context.Context, path, destination string) error
}

// StatusWriter receives human-readable workflow messages.
type StatusWriter interface {
	Statusf(format string, args ...any) error
}

// Observer receives workflow outcomes.
type Observer interface {
	ObserveLocked()
	ObserveCapture(err error)
	ObserveUpload(err error)
}
