//go:build linux

package storage

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// creationTime returns the birth time of path, falling back to the inode
// change time on filesystems that do not record one.
func creationTime(path string) (time.Time, error) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME|unix.STATX_CTIME, &stx)
	if err != nil {
		return time.Time{}, &os.PathError{Op: "statx", Path: path, Err: err}
	}
	if stx.Mask&unix.STATX_BTIME != 0 {
		return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
	}
	return time.Unix(stx.Ctime.Sec, int64(stx.Ctime.Nsec)), nil
}

// preallocate reserves size bytes for f. Filesystems without fallocate
// support get the space written out with zeros.
func preallocate(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		return writeZeros(f, size)
	}
	return &os.PathError{Op: "fallocate", Path: f.Name(), Err: err}
}
