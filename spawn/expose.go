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
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/flatpak/flatpak-xdg-utils/i18n"
	"github.com/flatpak/flatpak-xdg-utils/logger"
	"github.com/flatpak/flatpak-xdg-utils/osutil"
)

var userHomeDir = os.UserHomeDir

// pathExposer opens paths to be made available in a sub-sandbox.
type pathExposer struct {
	flatpakID string
	realHome  string
}

func newPathExposer() *pathExposer {
	e := &pathExposer{flatpakID: os.Getenv("FLATPAK_ID")}
	if e.flatpakID == "" {
		return e
	}
	home, err := userHomeDir()
	if err != nil {
		return e
	}
	if realHome, err := filepath.EvalSymlinks(home); err == nil {
		e.realHome = realHome
	}
	return e
}

// remap returns a descriptor for the copy of path in the per-app home
// directory if path is below the home directory and both refer to the
// same file. Apps see their ~/.var/app/$FLATPAK_ID as $HOME, and the
// portal can only resolve the latter.
func (e *pathExposer) remap(path string, fd int) (int, bool) {
	if e.realHome == "" {
		return -1, false
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return -1, false
	}
	rest, ok := osutil.PathAfter(real, e.realHome)
	if !ok {
		return -1, false
	}
	appPath := filepath.Join(e.realHome, ".var/app", e.flatpakID, rest)
	appFd, err := osutil.OpenPath(appPath, false)
	if err != nil {
		return -1, false
	}
	if !osutil.SameFile(fd, appFd) {
		unix.Close(appFd)
		return -1, false
	}
	logger.Debugf("exposing %s as %s", path, appPath)
	return appFd, true
}

// attach opens path and attaches it to list. The returned error is nil
// and ok false if the path could not be opened and optional is set.
func (e *pathExposer) attach(list *FDList, path string, optional bool) (h Handle, ok bool, err error) {
	fd, err := osutil.OpenPath(path, false)
	if err != nil {
		if optional {
			logger.Debugf("not exposing %s: %v", path, err)
			return 0, false, nil
		}
		var reason error = err
		if perr, isPathErr := err.(*os.PathError); isPathErr {
			reason = perr.Err
		}
		return 0, false, fmt.Errorf(i18n.G("Failed to open %s to expose in sandbox: %s"), path, reason)
	}
	if appFd, remapped := e.remap(path, fd); remapped {
		unix.Close(fd)
		fd = appFd
	}
	return list.adopt(fd), true, nil
}

// attachAll attaches every path in required, then every path that can
// be opened in optional.
func (e *pathExposer) attachAll(list *FDList, required, optional []string) ([]Handle, error) {
	var handles []Handle
	for _, path := range required {
		h, _, err := e.attach(list, path, false)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	for _, path := range optional {
		h, ok, err := e.attach(list, path, true)
		if err != nil {
			return nil, err
		}
		if ok {
			handles = append(handles, h)
		}
	}
	return handles, nil
}
