// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2021 Canonical Ltd
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

package spawn

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/flatpak/flatpak-xdg-utils/osutil"
)

// Handle is an index into the descriptors attached to a message.
type Handle uint32

// FDList owns copies of the descriptors that travel with a request.
type FDList struct {
	fds []int
}

// Append attaches a close-on-exec copy of fd and returns its handle.
func (l *FDList) Append(fd int) (Handle, error) {
	nfd, err := osutil.DupCloexec(fd)
	if err != nil {
		return 0, err
	}
	l.fds = append(l.fds, nfd)
	return Handle(len(l.fds) - 1), nil
}

// adopt attaches fd itself, taking ownership of it.
func (l *FDList) adopt(fd int) Handle {
	l.fds = append(l.fds, fd)
	return Handle(len(l.fds) - 1)
}

// Len returns the number of attached descriptors.
func (l *FDList) Len() int {
	return len(l.fds)
}

// UnixFD returns the descriptor behind h in the form godbus sends.
func (l *FDList) UnixFD(h Handle) dbus.UnixFD {
	return dbus.UnixFD(l.fds[h])
}

// Close closes all attached descriptors. The list is empty afterwards.
func (l *FDList) Close() {
	for _, fd := range l.fds {
		unix.Close(fd)
	}
	l.fds = nil
}

// forwardableFDs returns the descriptors to forward besides the standard
// ones, without repetitions, failing if any of them is not open.
func forwardableFDs(fds []int) ([]int, error) {
	var forwarded []int
	seen := make(map[int]bool, len(fds))
	for _, fd := range fds {
		if fd <= 2 || seen[fd] {
			continue
		}
		seen[fd] = true
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
			return nil, fmt.Errorf("cannot duplicate fd %d: %v", fd, err)
		}
		forwarded = append(forwarded, fd)
	}
	return forwarded, nil
}
