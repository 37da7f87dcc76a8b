// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2018-2021 Canonical Ltd
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

// Package spawn implements a client for the Flatpak session helper and
// portal services that start commands outside of the calling sandbox,
// either on the host or in a new sub-sandbox, and relays signals and
// the exit status of the started process.
package spawn

import (
	"github.com/godbus/dbus/v5"
)

// Service describes one of the two remote interfaces able to start
// commands on our behalf.
type Service struct {
	BusName   string
	Path      dbus.ObjectPath
	Interface string

	SpawnMethod  string
	SignalMethod string
	ExitedSignal string

	// HasOptions is set if the spawn method takes an a{sv} of options.
	HasOptions bool

	// ClearEnvFlag and WatchBusFlag differ between the two interfaces.
	ClearEnvFlag uint32
	WatchBusFlag uint32
}

// Member returns the fully qualified name of a method or signal of the
// service interface.
func (s *Service) Member(name string) string {
	return s.Interface + "." + name
}

// Flags of the HostCommand method.
const (
	HostCommandFlagsClearEnv uint32 = 1 << 0
	HostCommandFlagsWatchBus uint32 = 1 << 1
)

// Flags of the Spawn method.
const (
	SpawnFlagsClearEnv      uint32 = 1 << 0
	SpawnFlagsLatestVersion uint32 = 1 << 1
	SpawnFlagsSandbox       uint32 = 1 << 2
	SpawnFlagsNoNetwork     uint32 = 1 << 3
	SpawnFlagsWatchBus      uint32 = 1 << 4
	SpawnFlagsExposePids    uint32 = 1 << 5
	SpawnFlagsNotifyStart   uint32 = 1 << 6
	SpawnFlagsSharePids     uint32 = 1 << 7
	SpawnFlagsEmptyApp      uint32 = 1 << 8
)

// Values of the "sandbox-flags" option.
const (
	SandboxFlagsShareDisplay uint32 = 1 << 0
	SandboxFlagsShareSound   uint32 = 1 << 1
	SandboxFlagsShareGPU     uint32 = 1 << 2
	SandboxFlagsAllowDBus    uint32 = 1 << 3
	SandboxFlagsAllowA11y    uint32 = 1 << 4
)

// Bits of the "supports" property.
const (
	SupportFlagsExposePids uint32 = 1 << 0
)

// HostService is the session helper development interface, which runs
// commands directly on the host.
var HostService = &Service{
	BusName:   "org.freedesktop.Flatpak",
	Path:      "/org/freedesktop/Flatpak/Development",
	Interface: "org.freedesktop.Flatpak.Development",

	SpawnMethod:  "HostCommand",
	SignalMethod: "HostCommandSignal",
	ExitedSignal: "HostCommandExited",

	ClearEnvFlag: HostCommandFlagsClearEnv,
	WatchBusFlag: HostCommandFlagsWatchBus,
}

// PortalService is the Flatpak portal, which runs commands in a new
// sandbox derived from the caller's.
var PortalService = &Service{
	BusName:   "org.freedesktop.portal.Flatpak",
	Path:      "/org/freedesktop/portal/Flatpak",
	Interface: "org.freedesktop.portal.Flatpak",

	SpawnMethod:  "Spawn",
	SignalMethod: "SpawnSignal",
	ExitedSignal: "SpawnExited",

	HasOptions: true,

	ClearEnvFlag: SpawnFlagsClearEnv,
	WatchBusFlag: SpawnFlagsWatchBus,
}

const (
	busDaemonName      = "org.freedesktop.DBus"
	busDaemonPath      = dbus.ObjectPath("/org/freedesktop/DBus")
	busDaemonInterface = "org.freedesktop.DBus"
)
