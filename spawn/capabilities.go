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

	"github.com/flatpak/flatpak-xdg-utils/i18n"
	"github.com/flatpak/flatpak-xdg-utils/logger"
)

// CapabilityError is returned when an option needs more than the remote
// service offers.
type CapabilityError struct {
	Option string
	// Need and Have are the required and advertised versions; both are
	// zero if a feature bit is missing.
	Need, Have uint32
	// Explanation is an optional extra line for the user.
	Explanation string
}

func (e *CapabilityError) Error() string {
	var msg string
	if e.Need != 0 {
		msg = fmt.Sprintf(i18n.G("--%s not supported by host portal version (need version %d, has %d)"), e.Option, e.Need, e.Have)
	} else {
		msg = fmt.Sprintf(i18n.G("--%s not supported by host portal"), e.Option)
	}
	if e.Explanation != "" {
		msg += "\n\n" + e.Explanation
	}
	return msg
}

// NotSetuidRootExplanation is shown when the portal cannot expose or
// share process ids.
var NotSetuidRootExplanation = `This feature requires Flatpak to be using a bubblewrap (bwrap) executable
that is not setuid root.

The non-setuid version of bubblewrap requires a kernel that allows
unprivileged users to create new user namespaces.

For more details please see:
https://github.com/flatpak/flatpak/wiki/User-namespace-requirements
`

// Capabilities reads the version and feature bits of the remote service,
// each at most once.
type Capabilities struct {
	obj   dbus.BusObject
	iface string

	version     uint32
	haveVersion bool
	supports    uint32
	haveSupport bool
}

// NewCapabilities returns the capabilities of svc as exposed by obj.
func NewCapabilities(obj dbus.BusObject, svc *Service) *Capabilities {
	return &Capabilities{obj: obj, iface: svc.Interface}
}

func (c *Capabilities) readUint32(prop string) uint32 {
	v, err := c.obj.GetProperty(c.iface + "." + prop)
	if err != nil {
		logger.Debugf("cannot read %s property: %v", prop, err)
		return 0
	}
	val, ok := v.Value().(uint32)
	if !ok {
		logger.Debugf("unexpected type of %s property: %s", prop, v.Signature())
		return 0
	}
	return val
}

// Version returns the advertised interface version, 0 if unknown.
func (c *Capabilities) Version() uint32 {
	if !c.haveVersion {
		c.version = c.readUint32("version")
		c.haveVersion = true
	}
	return c.version
}

// Supports returns the advertised feature bits. They only exist from
// version 3 on.
func (c *Capabilities) Supports() uint32 {
	if !c.haveSupport {
		if c.Version() >= 3 {
			c.supports = c.readUint32("supports")
		}
		c.haveSupport = true
	}
	return c.supports
}

// Require fails if option needs a newer version than advertised.
func (c *Capabilities) Require(option string, version uint32) error {
	if have := c.Version(); have < version {
		return &CapabilityError{Option: option, Need: version, Have: have}
	}
	return nil
}

// RequireSupport fails if any of bits is not advertised.
func (c *Capabilities) RequireSupport(option string, bits uint32, explanation string) error {
	if c.Supports()&bits != bits {
		return &CapabilityError{Option: option, Explanation: explanation}
	}
	return nil
}
