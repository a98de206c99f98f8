//go:build !unix

package file_tracker

import "os"

// GetFileID is not supported here; callers fall back to size-based rotation detection.
func GetFileID(info os.FileInfo) (FileID, error) {
	return FileID{}, ErrFileIDUnavailable
}
