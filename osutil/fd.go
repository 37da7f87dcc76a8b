// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2019 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package osutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenPath opens path as an O_PATH handle: the file is referenced but its
// contents are not accessible through the descriptor. Symlinks in the
// final component are not followed unless follow is set.
func OpenPath(path string, follow bool) (int, error) {
	flags := unix.O_PATH | unix.O_CLOEXEC | unix.O_RDONLY
	if !follow {
		flags |= unix.O_NOFOLLOW
	}
	for {
		fd, err := unix.Open(path, flags, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, &os.PathError{Op: "open", Path: path, Err: err}
		}
		return fd, nil
	}
}

// DupCloexec duplicates fd onto the lowest free descriptor, with
// close-on-exec set on the copy.
func DupCloexec(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("cannot duplicate fd %d: %v", fd, err)
	}
	return nfd, nil
}

// SameFile reports whether both descriptors refer to the same inode.
func SameFile(fd1, fd2 int) bool {
	var st1, st2 unix.Stat_t
	if err := unix.Fstat(fd1, &st1); err != nil {
		return false
	}
	if err := unix.Fstat(fd2, &st2); err != nil {
		return false
	}
	return st1.Dev == st2.Dev && st1.Ino == st2.Ino
}

// ReadFD reads everything readable from the file currently open as fd,
// going through /proc/self/fd so that the descriptor offset of a
// regular file is irrelevant.
func ReadFD(fd int) ([]byte, error) {
	return os.ReadFile(fmt.Sprintf("/proc/self/fd/%d", fd))
}
