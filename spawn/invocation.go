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
	"strconv"
	"strings"

	"github.com/flatpak/flatpak-xdg-utils/i18n"
)

// UsageError is returned for command lines that cannot be acted upon.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string {
	return e.msg
}

func usageErrorf(format string, a ...interface{}) error {
	return &UsageError{msg: fmt.Sprintf(format, a...)}
}

// Invocation is everything the user asked for, before any of it is
// checked against what the remote service can do.
type Invocation struct {
	// Argv is the command to run, Argv[0] being the program.
	Argv []string
	// Directory is the working directory of the command; the current
	// directory is used if empty.
	Directory string
	// Host selects the host service instead of the portal.
	Host bool

	ClearEnv      bool
	WatchBus      bool
	ExposePids    bool
	SharePids     bool
	LatestVersion bool
	Sandbox       bool
	NoNetwork     bool

	// ForwardFDs are the descriptors to make available under the same
	// number in the command, in the order given.
	ForwardFDs []int

	Env *EnvEdits

	SandboxExpose          []string
	SandboxExposeRO        []string
	SandboxExposePath      []string
	SandboxExposePathRO    []string
	SandboxExposePathTry   []string
	SandboxExposePathROTry []string
	SandboxFlags           uint32

	// AppPath and UsrPath are nil when not given. An empty AppPath asks
	// for an empty /app.
	AppPath *string
	UsrPath *string
}

// NewInvocation returns an Invocation for the portal with no
// environment changes.
func NewInvocation() *Invocation {
	return &Invocation{Env: NewEnvEdits()}
}

// Service returns the service the invocation is addressed to.
func (inv *Invocation) Service() *Service {
	if inv.Host {
		return HostService
	}
	return PortalService
}

func (inv *Invocation) exposesPaths() bool {
	return len(inv.SandboxExposePath)+len(inv.SandboxExposePathTry) > 0
}

func (inv *Invocation) exposesPathsRO() bool {
	return len(inv.SandboxExposePathRO)+len(inv.SandboxExposePathROTry) > 0
}

// Validate checks the invocation for errors that do not depend on the
// remote service.
func (inv *Invocation) Validate() error {
	if len(inv.Argv) == 0 {
		return usageErrorf(i18n.G("No command specified"))
	}
	if !inv.Host {
		return nil
	}

	sandboxOnly := []struct {
		option string
		given  bool
	}{
		{"share-pids", inv.SharePids},
		{"expose-pids", inv.ExposePids},
		{"latest-version", inv.LatestVersion},
		{"sandbox", inv.Sandbox},
		{"no-network", inv.NoNetwork},
		{"sandbox-expose", len(inv.SandboxExpose) > 0},
		{"sandbox-expose-ro", len(inv.SandboxExposeRO) > 0},
		{"sandbox-flag", inv.SandboxFlags != 0},
		{"sandbox-expose-path", inv.exposesPaths()},
		{"sandbox-expose-path-ro", inv.exposesPathsRO()},
		{"app-path", inv.AppPath != nil},
		{"usr-path", inv.UsrPath != nil},
	}
	for _, o := range sandboxOnly {
		if o.given {
			return usageErrorf(i18n.G("--host not compatible with --%s"), o.option)
		}
	}
	return nil
}

// ParseForwardFD parses the argument of --forward-fd. Only plain
// decimal numbers are accepted; 0 is refused since stdin is always
// forwarded.
func ParseForwardFD(s string) (int, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return -1, usageErrorf(i18n.G("Invalid fd '%s'"), s)
	}
	fd, err := strconv.Atoi(s)
	if err != nil {
		return -1, usageErrorf(i18n.G("Invalid fd '%s'"), s)
	}
	if fd == 0 {
		return -1, usageErrorf(i18n.G("--forward-fd=0 makes no sense"))
	}
	return fd, nil
}

var sandboxFlagNames = []struct {
	name string
	flag uint32
}{
	{"share-display", SandboxFlagsShareDisplay},
	{"share-sound", SandboxFlagsShareSound},
	{"share-gpu", SandboxFlagsShareGPU},
	{"allow-dbus", SandboxFlagsAllowDBus},
	{"allow-a11y", SandboxFlagsAllowA11y},
}

// ParseSandboxFlag parses the argument of --sandbox-flag: one of the
// known flag names or a positive decimal value.
func ParseSandboxFlag(s string) (uint32, error) {
	for _, f := range sandboxFlagNames {
		if s == f.name {
			return f.flag, nil
		}
	}
	if v, err := strconv.ParseUint(s, 10, 32); err == nil && v > 0 {
		return uint32(v), nil
	}
	return 0, usageErrorf(i18n.G("Unknown sandbox flag %s"), s)
}
