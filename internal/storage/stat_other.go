//go:build !linux

package storage

import (
	"os"
	"time"
)

// creationTime falls back to the modification time where birth time cannot be read portably.
func creationTime(path string) (time.Time, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func preallocate(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	return writeZeros(f, size)
}
