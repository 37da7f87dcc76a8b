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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/godbus/dbus/v5"
)

// Conn is the part of *dbus.Conn the tools rely on. It exists so that
// tests can substitute an in-memory bus.
type Conn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	// Context is cancelled when the connection is closed, for whatever
	// reason.
	Context() context.Context
	Close() error
}

// ErrNoSessionBus is returned when there is no session bus to connect to.
var ErrNoSessionBus = errors.New("cannot find session bus")

func isSessionBusLikelyPresent() bool {
	if addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS"); addr != "" {
		return true
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		if _, err := os.Stat(filepath.Join(runtimeDir, "bus")); err == nil {
			return true
		}
	}
	return false
}

// SessionBusPrivate opens a new private connection to the session bus
// and performs the handshake. The caller owns the connection.
func SessionBusPrivate() (*dbus.Conn, error) {
	if !isSessionBusLikelyPresent() {
		return nil, ErrNoSessionBus
	}

	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, err
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot authenticate to session bus: %v", err)
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cannot say hello to session bus: %v", err)
	}
	return conn, nil
}

var sessionBus = func() (Conn, error) {
	conn, err := SessionBusPrivate()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SessionBus returns a fresh connection to the session bus.
func SessionBus() (Conn, error) {
	return sessionBus()
}

// MockSessionBus makes SessionBus return whatever f returns.
func MockSessionBus(f func() (Conn, error)) (restore func()) {
	old := sessionBus
	sessionBus = f
	return func() {
		sessionBus = old
	}
}
