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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"github.com/flatpak/flatpak-xdg-utils/cmd"
	"github.com/flatpak/flatpak-xdg-utils/dbusutil"
	"github.com/flatpak/flatpak-xdg-utils/i18n"
	"github.com/flatpak/flatpak-xdg-utils/logger"
	"github.com/flatpak/flatpak-xdg-utils/portal"
)

var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr

	progName = filepath.Base(os.Args[0])
)

// exit codes, compatible with the xdg-utils script
const (
	exitParseError  = 1
	exitNoBus       = 3
	exitCallFailed  = 4
	exitFileMissing = 5
)

type options struct {
	Manual  bool `long:"manual" hidden:"yes"`
	Version bool `long:"version" description:"Show program version"`

	Positional struct {
		FileOrURL []string `positional-arg-name:"file-or-URL"`
	} `positional-args:"yes"`
}

func run(args []string) int {
	logger.SimpleSetup(false)

	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = progName
	parser.Usage = i18n.G("[OPTION…] { file | URL }")
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(Stdout, ferr.Message)
			return 0
		}
		fmt.Fprintf(Stderr, i18n.G("Error parsing commandline options: %s")+"\n\n", err)
		fmt.Fprintf(Stderr, i18n.G("Try \"%s --help\" for more information.")+"\n", progName)
		return exitParseError
	}
	if opts.Version {
		fmt.Fprintln(Stdout, cmd.Version)
		return 0
	}
	if opts.Manual || len(opts.Positional.FileOrURL) != 1 {
		parser.WriteHelp(Stdout)
		return 0
	}

	conn, err := dbusutil.SessionBus()
	if err != nil {
		fmt.Fprintf(Stderr, i18n.G("Failed to connect to session bus: %v")+"\n", err)
		return exitNoBus
	}
	defer conn.Close()

	if err := portal.NewOpenURI(conn).Open(opts.Positional.FileOrURL[0]); err != nil {
		fmt.Fprintf(Stderr, "%s\n", err)
		var ferr *portal.FileError
		if errors.As(err, &ferr) {
			return exitFileMissing
		}
		return exitCallFailed
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
