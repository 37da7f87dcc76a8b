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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"

	"github.com/jessevdk/go-flags"

	"github.com/flatpak/flatpak-xdg-utils/cmd"
	"github.com/flatpak/flatpak-xdg-utils/dbusutil"
	"github.com/flatpak/flatpak-xdg-utils/i18n"
	"github.com/flatpak/flatpak-xdg-utils/logger"
	"github.com/flatpak/flatpak-xdg-utils/spawn"
)

var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr

	progName = filepath.Base(os.Args[0])

	setupLogger = logger.SimpleSetup

	signalNotify = func(sigs ...os.Signal) (ch chan os.Signal, stop func()) {
		ch = make(chan os.Signal, len(sigs))
		signal.Notify(ch, sigs...)
		return ch, func() {
			signal.Stop(ch)
		}
	}
)

const shortHelp = "Run a command outside of the sandbox"

const longHelp = `
Runs COMMAND in a new sandbox derived from the caller's, or directly on the
host with --host, relaying signals to it and exiting with its exit status.
`

type options struct {
	Verbose bool `short:"v" long:"verbose" description:"Enable debug output"`
	Version bool `long:"version" description:"Show program version"`

	ForwardFD func(string) error `long:"forward-fd" value-name:"FD" unquote:"false" description:"Connect a file descriptor to the corresponding one in the sandbox"`
	ClearEnv  bool               `long:"clear-env" description:"Run with a clean environment"`
	WatchBus  bool               `long:"watch-bus" description:"Make the spawned command exit if we do"`
	Env       func(string) error `long:"env" value-name:"VAR=VALUE" unquote:"false" description:"Set environment variable"`
	EnvFD     func(string) error `long:"env-fd" value-name:"FD" unquote:"false" description:"Read environment variables in env -0 format from FD"`
	UnsetEnv  func(string) error `long:"unset-env" value-name:"VAR" unquote:"false" description:"Unset environment variable"`
	Host      bool               `long:"host" description:"Start the command on the host"`
	Directory string             `long:"directory" value-name:"DIR" unquote:"false" description:"Working directory in which to run the command"`

	ExposePids             bool               `long:"expose-pids" description:"Expose sandbox pid in calling sandbox"`
	SharePids              bool               `long:"share-pids" description:"Use same pid namespace as calling sandbox"`
	LatestVersion          bool               `long:"latest-version" description:"Use latest version of refs for subsandbox"`
	NoNetwork              bool               `long:"no-network" description:"Run without network access"`
	Sandbox                bool               `long:"sandbox" description:"Run fully sandboxed"`
	SandboxExpose          []string           `long:"sandbox-expose" value-name:"NAME" unquote:"false" description:"Expose access to named file"`
	SandboxExposeRO        []string           `long:"sandbox-expose-ro" value-name:"NAME" unquote:"false" description:"Expose readonly access to named file"`
	SandboxExposePath      []string           `long:"sandbox-expose-path" value-name:"PATH" unquote:"false" description:"Expose access to path"`
	SandboxExposePathRO    []string           `long:"sandbox-expose-path-ro" value-name:"PATH" unquote:"false" description:"Expose readonly access to path"`
	SandboxExposePathTry   []string           `long:"sandbox-expose-path-try" value-name:"PATH" unquote:"false" description:"Expose access to path if it exists"`
	SandboxExposePathROTry []string           `long:"sandbox-expose-path-ro-try" value-name:"PATH" unquote:"false" description:"Expose readonly access to path if it exists"`
	SandboxFlag            func(string) error `long:"sandbox-flag" value-name:"FLAG" unquote:"false" description:"Enable sandbox flag"`
	AppPath                func(string)       `long:"app-path" value-name:"PATH" unquote:"false" description:"Use PATH instead of the app's /app"`
	UsrPath                func(string)       `long:"usr-path" value-name:"PATH" unquote:"false" description:"Use PATH instead of the runtime's /usr"`
}

// optionError keeps go-flags from decorating errors of option callbacks.
func optionError(err error) error {
	if err == nil {
		return nil
	}
	return &flags.Error{Type: flags.ErrMarshal, Message: err.Error()}
}

func newParser(opts *options, inv *spawn.Invocation) *flags.Parser {
	opts.ForwardFD = func(s string) error {
		fd, err := spawn.ParseForwardFD(s)
		if err != nil {
			return optionError(err)
		}
		inv.ForwardFDs = append(inv.ForwardFDs, fd)
		return nil
	}
	opts.Env = func(s string) error {
		return optionError(inv.Env.SetFromAssignment(s))
	}
	opts.EnvFD = func(s string) error {
		fd, err := strconv.Atoi(s)
		if err != nil || fd < 0 {
			return optionError(fmt.Errorf(i18n.G("Invalid fd '%s'"), s))
		}
		return optionError(inv.Env.SetFromFD(fd))
	}
	opts.UnsetEnv = func(s string) error {
		return optionError(inv.Env.Unset(s))
	}
	opts.SandboxFlag = func(s string) error {
		flag, err := spawn.ParseSandboxFlag(s)
		if err != nil {
			return optionError(err)
		}
		inv.SandboxFlags |= flag
		return nil
	}
	opts.AppPath = func(s string) {
		inv.AppPath = &s
	}
	opts.UsrPath = func(s string) {
		inv.UsrPath = &s
	}

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash|flags.PassAfterNonOption)
	parser.ShortDescription = i18n.G(shortHelp)
	parser.LongDescription = i18n.G(longHelp)
	parser.Usage = i18n.G("[OPTION…] COMMAND [ARGUMENT…]")
	return parser
}

// parseArgs turns the command line into an invocation. A nil invocation
// with a nil error means there is nothing left to do.
func parseArgs(args []string) (inv *spawn.Invocation, verbose bool, err error) {
	var opts options
	inv = spawn.NewInvocation()
	parser := newParser(&opts, inv)
	rest, err := parser.ParseArgs(args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(Stdout, ferr.Message)
			return nil, false, nil
		}
		return nil, false, err
	}
	if opts.Version {
		fmt.Fprintln(Stdout, cmd.Version)
		return nil, false, nil
	}

	if len(rest) == 0 {
		return nil, opts.Verbose, errors.New(i18n.G("No command specified"))
	}

	inv.Argv = rest
	inv.Directory = opts.Directory
	inv.Host = opts.Host
	inv.ClearEnv = opts.ClearEnv
	inv.WatchBus = opts.WatchBus
	inv.ExposePids = opts.ExposePids
	inv.SharePids = opts.SharePids
	inv.LatestVersion = opts.LatestVersion
	inv.NoNetwork = opts.NoNetwork
	inv.Sandbox = opts.Sandbox
	inv.SandboxExpose = opts.SandboxExpose
	inv.SandboxExposeRO = opts.SandboxExposeRO
	inv.SandboxExposePath = opts.SandboxExposePath
	inv.SandboxExposePathRO = opts.SandboxExposePathRO
	inv.SandboxExposePathTry = opts.SandboxExposePathTry
	inv.SandboxExposePathROTry = opts.SandboxExposePathROTry
	return inv, opts.Verbose, nil
}

func run(args []string) int {
	// caught before anything else happens, so that no signal is lost
	// between starting the command and knowing about it
	sigs, stopSignals := signalNotify(spawn.ForwardedSignals...)
	defer stopSignals()

	inv, verbose, err := parseArgs(args)
	setupLogger(verbose)
	if err != nil {
		fmt.Fprintf(Stderr, "%s: %s\n", progName, err)
		fmt.Fprintf(Stderr, i18n.G("Try \"%s --help\" for more information.")+"\n", progName)
		return 1
	}
	if inv == nil {
		return 0
	}
	if err := inv.Validate(); err != nil {
		fmt.Fprintf(Stderr, "%s\n", err)
		return 1
	}

	conn, err := dbusutil.SessionBus()
	if err != nil {
		fmt.Fprintf(Stderr, i18n.G("Can't find bus: %v")+"\n", err)
		return 1
	}
	defer conn.Close()

	svc := inv.Service()
	client := spawn.NewClient(conn, svc)
	relay := spawn.NewRelay(conn, client, sigs)
	if err := relay.Subscribe(); err != nil {
		fmt.Fprintf(Stderr, i18n.G("Can't subscribe to signals: %v")+"\n", err)
		return 1
	}

	caps := spawn.NewCapabilities(client.Object(), svc)
	req, err := spawn.BuildRequest(inv, caps)
	if err != nil {
		fmt.Fprintf(Stderr, "%s\n", err)
		return 1
	}

	code, err := relay.Run(func(ctx context.Context) (uint32, error) {
		return client.Spawn(ctx, req)
	})
	if err != nil {
		fmt.Fprintf(Stderr, "%s\n", err)
	}
	return code
}

func main() {
	// exit right away, whatever the command left running
	os.Exit(run(os.Args[1:]))
}
