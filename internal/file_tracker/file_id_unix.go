//go:build unix

package file_tracker

import (
	"os"
	"syscall"
)

func GetFileID(info os.FileInfo) (FileID, error) {
	if info == nil {
		return FileID{}, ErrFileIDUnavailable
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok || stat == nil {
		return FileID{}, ErrFileIDUnavailable
	}
	return FileID{Dev: uint64(stat.Dev), Ino: uint64(stat.Ino)}, nil
}
