// Package watcher decides, from file metadata, whether a followed path still refers
// to the same growing file.
package watcher

import (
	"os"

	"github.com/loykin/tailserver/internal/file_tracker"
)

// Decision is the outcome of one rotation check.
type Decision int

const (
	// Continue means the path is the same file, possibly grown.
	Continue Decision = iota
	// Rotated means the file was replaced or truncated; the reader must reopen at offset 0.
	Rotated
	// Unreadable means the path could not be inspected this time; retry on the next poll.
	Unreadable
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Rotated:
		return "rotated"
	case Unreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

const (
	ReasonReplaced  = "replaced"
	ReasonTruncated = "truncated"
)

// Detector remembers the identity and size of the file last read and compares
// fresh metadata against it.
//
// A changed device/inode pair means the path now points at a different file
// (logrotate "create"). An unchanged identity with a smaller size means the file
// was truncated in place (logrotate "copytruncate"). When the filesystem does not
// expose an identity, only the size rule applies.
type Detector struct {
	id     file_tracker.FileID
	hasID  bool
	size   int64
	reason string
}

// Observe sets the baseline to info, typically right after (re)opening the file.
func (d *Detector) Observe(info os.FileInfo) {
	id, err := file_tracker.GetFileID(info)
	d.id, d.hasID = id, err == nil
	d.size = 0
	if info != nil {
		d.size = info.Size()
	}
	d.reason = ""
}

// SetSize records how far the file has been consumed.
func (d *Detector) SetSize(size int64) { d.size = size }

// Size returns the last recorded size.
func (d *Detector) Size() int64 { return d.size }

// FileID returns the identity of the observed file, if known.
func (d *Detector) FileID() (file_tracker.FileID, bool) { return d.id, d.hasID }

// Reason explains the most recent Rotated decision.
func (d *Detector) Reason() string { return d.reason }

// Check classifies the result of stat'ing the followed path.
func (d *Detector) Check(info os.FileInfo, err error) Decision {
	if err != nil || info == nil {
		return Unreadable
	}
	if d.hasID {
		if id, idErr := file_tracker.GetFileID(info); idErr == nil && id != d.id {
			d.reason = ReasonReplaced
			return Rotated
		}
	}
	if info.Size() < d.size {
		d.reason = ReasonTruncated
		return Rotated
	}
	return Continue
}
