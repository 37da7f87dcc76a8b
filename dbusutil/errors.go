// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2020 Canonical Ltd
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

package dbusutil

import (
	"errors"

	"github.com/godbus/dbus/v5"
)

// Well-known error names of the message bus.
const (
	ErrorInvalidArgs    = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrorServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"
	ErrorUnknownMethod  = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrorFailed         = "org.freedesktop.DBus.Error.Failed"
)

func asError(err error) (dbus.Error, bool) {
	var derr dbus.Error
	if errors.As(err, &derr) {
		return derr, true
	}
	var pderr *dbus.Error
	if errors.As(err, &pderr) && pderr != nil {
		return *pderr, true
	}
	return dbus.Error{}, false
}

// ErrorName returns the D-Bus error name carried by err, or "" if err is
// not an error reply.
func ErrorName(err error) string {
	if derr, ok := asError(err); ok {
		return derr.Name
	}
	return ""
}

// IsError reports whether err is an error reply with the given name.
func IsError(err error, name string) bool {
	return err != nil && ErrorName(err) == name
}

// ErrorMessage returns the human readable part of err: the message
// carried in an error reply without the error name, or err.Error() for
// anything else.
func ErrorMessage(err error) string {
	if derr, ok := asError(err); ok {
		if len(derr.Body) > 0 {
			if msg, ok := derr.Body[0].(string); ok {
				return msg
			}
		}
		return derr.Name
	}
	return err.Error()
}
