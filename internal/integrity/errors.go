package integrity

import "errors"

var (
	// ErrRootMissing is returned when the web root does not exist or is not
	// a directory.
	ErrRootMissing = errors.New("web root does not exist")

	// ErrNotificationUnavailable is returned by EventWatcher when
	// filesystem notifications cannot be set up or stop being delivered.
	ErrNotificationUnavailable = errors.New("filesystem notifications unavailable")
)
