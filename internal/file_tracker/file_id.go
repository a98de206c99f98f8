package file_tracker

import (
	"fmt"
	"os"
)

// FileID identifies the file behind a path independent of its name.
// Two stats of the same path with different FileIDs mean the path was replaced.
type FileID struct {
	Dev uint64
	Ino uint64
}

func (id FileID) String() string {
	return fmt.Sprintf("dev:%d-ino:%d", id.Dev, id.Ino)
}

func GetFileIDFromPath(path string) (FileID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileID{}, err
	}

	return GetFileID(info)
}
