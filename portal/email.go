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

package portal

import (
	"errors"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/flatpak/flatpak-xdg-utils/dbusutil"
)

// Email describes an e-mail to be composed by the user's mail client.
// Empty fields are left for the user to fill in.
type Email struct {
	Address string
	Subject string
	Body    string
	// Attachments are command line file names or file: URIs.
	Attachments []string
}

// Composer is a client for the portal that composes e-mails.
type Composer struct {
	obj dbus.BusObject
}

// NewComposer returns a client reaching the portal through conn.
func NewComposer(conn dbusutil.Conn) *Composer {
	return &Composer{obj: conn.Object(desktopBusName, desktopPath)}
}

// Compose opens a new message in the mail client.
func (p *Composer) Compose(email *Email) error {
	opts := map[string]dbus.Variant{
		"address": dbus.MakeVariant(email.Address),
	}
	if email.Subject != "" {
		opts["subject"] = dbus.MakeVariant(email.Subject)
	}
	if email.Body != "" {
		opts["body"] = dbus.MakeVariant(email.Body)
	}

	if len(email.Attachments) > 0 {
		var fds []dbus.UnixFD
		defer func() {
			for _, fd := range fds {
				unix.Close(int(fd))
			}
		}()
		for _, attachment := range email.Attachments {
			path, ok := NativePath(attachment)
			if !ok {
				return ErrNotNative
			}
			fd, err := openPath(path)
			if err != nil {
				return err
			}
			fds = append(fds, dbus.UnixFD(fd))
		}
		opts["attachments"] = dbus.MakeVariant(fds)
	}

	if err := p.obj.Call(emailInterface+".ComposeEmail", 0, "", opts).Err; err != nil {
		return &CallError{Err: err}
	}
	return nil
}

// ErrNotNative is returned for attachments that are not local files.
var ErrNotNative = errors.New("Only native files can be used as attachments")
