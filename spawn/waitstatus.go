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
	"golang.org/x/sys/unix"

	"github.com/flatpak/flatpak-xdg-utils/logger"
)

// exitSoftware is EX_SOFTWARE from sysexits.h.
const exitSoftware = 70

// ExitCode maps a wait status reported by the service to the exit code
// of this process: the exit code of the command, or 128 plus the number
// of the signal that killed it.
func ExitCode(status uint32) int {
	ws := unix.WaitStatus(status)
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		logger.Noticef("Unexpected wait status 0x%x", status)
		return exitSoftware
	}
}
