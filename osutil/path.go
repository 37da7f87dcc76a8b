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
	"strings"
)

// PathAfter returns the part of path that follows prefix, compared
// element by element so that repeated slashes do not matter and a
// partial element never matches ("/home/foo" is not below "/home/fo").
// The result has no leading slash and is empty if path and prefix name
// the same directory. The boolean is false if path is not below prefix.
func PathAfter(path, prefix string) (string, bool) {
	for {
		path = strings.TrimLeft(path, "/")
		prefix = strings.TrimLeft(prefix, "/")

		if prefix == "" {
			return path, true
		}

		elem := prefix
		if i := strings.IndexByte(prefix, '/'); i >= 0 {
			elem = prefix[:i]
		}
		if !strings.HasPrefix(path, elem) {
			return "", false
		}
		path = path[len(elem):]
		prefix = prefix[len(elem):]

		if path != "" && path[0] != '/' {
			return "", false
		}
	}
}
