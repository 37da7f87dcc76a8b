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
	exitParseError    = 1
	exitBadAttachment = 2
	exitNoBus         = 3
	exitCallFailed    = 4
)

type options struct {
	UTF8    bool         `long:"utf8" description:"Indicates that all command line options are in utf8"`
	CC      func(string) `long:"cc" value-name:"address" unquote:"false" description:"Specify a recipient to be copied on the e-mail"`
	BCC     func(string) `long:"bcc" value-name:"address" unquote:"false" description:"Specify a recipient to be blindly copied on the e-mail"`
	Subject string       `long:"subject" value-name:"text" unquote:"false" description:"Specify a subject for the e-mail"`
	Body    string       `long:"body" value-name:"text" unquote:"false" description:"Specify a body for the e-mail"`
	Attach  []string     `long:"attach" value-name:"file" unquote:"false" description:"Specify an attachment for the e-mail"`
	Manual  bool         `long:"manual" hidden:"yes"`
	Version bool         `long:"version" description:"Show program version"`

	Positional struct {
		Addresses []string `positional-arg-name:"mailto-uri | address"`
	} `positional-args:"yes"`
}

func ignoredOption(name string) func(string) {
	return func(value string) {
		fmt.Fprintf(Stderr, i18n.G("Option %s is not supported, ignoring value \"%s\"")+"\n", name, value)
	}
}

func run(args []string) int {
	logger.SimpleSetup(false)

	var opts options
	opts.CC = ignoredOption("--cc")
	opts.BCC = ignoredOption("--bcc")

	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = progName
	parser.Usage = i18n.G("[OPTION…] [ mailto-uri | address(es) ]")
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
	if opts.Manual || len(opts.Positional.Addresses) != 1 {
		parser.WriteHelp(Stdout)
		return 0
	}

	conn, err := dbusutil.SessionBus()
	if err != nil {
		fmt.Fprintf(Stderr, i18n.G("Failed to connect to session bus: %v")+"\n", err)
		return exitNoBus
	}
	defer conn.Close()

	email := &portal.Email{
		Address:     opts.Positional.Addresses[0],
		Subject:     opts.Subject,
		Body:        opts.Body,
		Attachments: opts.Attach,
	}
	if err := portal.NewComposer(conn).Compose(email); err != nil {
		var ferr *portal.FileError
		switch {
		case errors.Is(err, portal.ErrNotNative):
			fmt.Fprintf(Stderr, "%s\n", i18n.G("Only native files can be used as attachments"))
			return exitBadAttachment
		case errors.As(err, &ferr):
			fmt.Fprintf(Stderr, "%s\n", err)
			return exitBadAttachment
		}
		fmt.Fprintf(Stderr, "%s\n", err)
		return exitCallFailed
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
