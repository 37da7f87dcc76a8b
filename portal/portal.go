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

// Package portal provides clients for the desktop portal interfaces
// used to open files and URIs and to compose e-mails from within a
// sandbox.
package portal

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/flatpak/flatpak-xdg-utils/dbusutil"
	"github.com/flatpak/flatpak-xdg-utils/i18n"
	"github.com/flatpak/flatpak-xdg-utils/osutil"
)

const (
	desktopBusName = "org.freedesktop.portal.Desktop"
	desktopPath    = dbus.ObjectPath("/org/freedesktop/portal/desktop")

	openURIInterface = "org.freedesktop.portal.OpenURI"
	emailInterface   = "org.freedesktop.portal.Email"
)

// FileError is returned when a local file cannot be handed to the
// portal.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf(i18n.G("Failed to open '%s': %v"), e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// CallError is returned when the portal refuses a request.
type CallError struct {
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf(i18n.G("Failed to call portal: %s"), dbusutil.ErrorMessage(e.Err))
}

func (e *CallError) Unwrap() error {
	return e.Err
}

var uriScheme = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

var getwd = os.Getwd

// NativePath interprets a command line argument as a file name or URI
// and returns the local path it designates. The boolean is false for
// URIs that do not designate local files.
func NativePath(arg string) (string, bool) {
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg), true
	}
	if uriScheme.MatchString(arg) {
		u, err := url.Parse(arg)
		if err != nil || u.Scheme != "file" {
			return "", false
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", false
		}
		return filepath.Clean(u.Path), u.Path != ""
	}
	cwd, err := getwd()
	if err != nil {
		return "", false
	}
	return filepath.Join(cwd, arg), true
}

// openPath opens path for the portal: the descriptor only designates
// the file, the portal decides on its own what to do with it.
func openPath(path string) (int, error) {
	fd, err := osutil.OpenPath(path, true)
	if err != nil {
		if perr, ok := err.(*os.PathError); ok {
			err = perr.Err
		}
		return -1, &FileError{Path: path, Err: err}
	}
	return fd, nil
}

// OpenURI is a client for the portal that opens files and URIs in the
// application chosen by the user.
type OpenURI struct {
	obj dbus.BusObject
}

// NewOpenURI returns a client reaching the portal through conn.
func NewOpenURI(conn dbusutil.Conn) *OpenURI {
	return &OpenURI{obj: conn.Object(desktopBusName, desktopPath)}
}

// OpenFile asks for the local file at path to be opened.
func (p *OpenURI) OpenFile(path string) error {
	fd, err := openPath(path)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	err = p.obj.Call(openURIInterface+".OpenFile", 0, "", dbus.UnixFD(fd), map[string]dbus.Variant{}).Err
	if err != nil {
		return &CallError{Err: err}
	}
	return nil
}

// OpenURI asks for uri to be opened.
func (p *OpenURI) OpenURI(uri string) error {
	err := p.obj.Call(openURIInterface+".OpenURI", 0, "", uri, map[string]dbus.Variant{}).Err
	if err != nil {
		return &CallError{Err: err}
	}
	return nil
}

// Open opens a file name or URI given on the command line. Local files
// are passed by descriptor, so they need not be visible to the portal.
func (p *OpenURI) Open(fileOrURI string) error {
	if path, ok := NativePath(fileOrURI); ok {
		return p.OpenFile(path)
	}
	return p.OpenURI(fileOrURI)
}
