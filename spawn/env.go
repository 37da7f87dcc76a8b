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
	"bytes"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/flatpak/flatpak-xdg-utils/i18n"
	"github.com/flatpak/flatpak-xdg-utils/osutil"
)

// EnvEdits collects the environment changes requested for the command.
// A variable is either set or unset, whichever was asked for last.
type EnvEdits struct {
	set   map[string]string
	unset map[string]bool
}

// NewEnvEdits returns an empty set of environment changes.
func NewEnvEdits() *EnvEdits {
	return &EnvEdits{
		set:   make(map[string]string),
		unset: make(map[string]bool),
	}
}

// Set records that name must be set to value.
func (e *EnvEdits) Set(name, value string) {
	delete(e.unset, name)
	e.set[name] = value
}

// Unset records that name must be removed from the environment.
func (e *EnvEdits) Unset(name string) error {
	if name == "" || strings.ContainsRune(name, '=') {
		return usageErrorf(i18n.G("Invalid env format %s"), name)
	}
	delete(e.set, name)
	e.unset[name] = true
	return nil
}

// SetFromAssignment parses a "VAR=VALUE" argument of --env.
func (e *EnvEdits) SetFromAssignment(assignment string) error {
	name, value, ok := strings.Cut(assignment, "=")
	if !ok || name == "" {
		return usageErrorf(i18n.G("Invalid env format %s"), assignment)
	}
	e.Set(name, value)
	return nil
}

// SetFromBlock applies a block of NUL-terminated "VAR=VALUE" entries, as
// found in /proc/PID/environ or produced by "env -0".
func (e *EnvEdits) SetFromBlock(block []byte) error {
	for len(block) > 0 {
		entry := block
		if i := bytes.IndexByte(block, 0); i >= 0 {
			entry, block = block[:i], block[i+1:]
		} else {
			block = nil
		}
		name, value, ok := strings.Cut(string(entry), "=")
		if !ok || name == "" {
			return usageErrorf(i18n.G("Environment variable must be given in the form VARIABLE=VALUE, not %s"), entry)
		}
		e.Set(name, value)
	}
	return nil
}

// SetFromFD reads an environment block from fd, then closes fd unless
// it is one of the standard descriptors.
func (e *EnvEdits) SetFromFD(fd int) error {
	data, err := osutil.ReadFD(fd)
	if err != nil {
		return fmt.Errorf(i18n.G("cannot read environment from fd %d: %v"), fd, err)
	}
	if err := e.SetFromBlock(data); err != nil {
		return err
	}
	if fd > 2 {
		unix.Close(fd)
	}
	return nil
}

// Env returns the variables to set.
func (e *EnvEdits) Env() map[string]string {
	env := make(map[string]string, len(e.set))
	for k, v := range e.set {
		env[k] = v
	}
	return env
}

// Unsets returns the sorted names of the variables to remove.
func (e *EnvEdits) Unsets() []string {
	names := make([]string, 0, len(e.unset))
	for k := range e.unset {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// UnsetShim returns argv wrapped so that the named variables are removed
// from the environment before the command runs, for services that cannot
// do it themselves. A program name containing '=' would be taken by env
// for an assignment, so such commands go through a shell.
func UnsetShim(argv []string, names []string) []string {
	if len(names) == 0 {
		return argv
	}
	shim := []string{"/usr/bin/env"}
	for _, name := range names {
		shim = append(shim, "-u", name)
	}
	if len(argv) > 0 && strings.ContainsRune(argv[0], '=') {
		shim = append(shim, "/bin/sh", "-euc", `exec "$@"`, "sh")
	}
	return append(shim, argv...)
}
