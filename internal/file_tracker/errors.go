package file_tracker

import "errors"

// ErrFileIDUnavailable is returned when the platform or filesystem does not expose
// a device/inode pair for a file (e.g. Windows, in-memory filesystems).
var ErrFileIDUnavailable = errors.New("file id not available")

// IsFileIDUnavailable reports whether err means the file has no usable identity.
func IsFileIDUnavailable(err error) bool {
	return errors.Is(err, ErrFileIDUnavailable)
}
