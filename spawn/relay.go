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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/flatpak/flatpak-xdg-utils/dbusutil"
	"github.com/flatpak/flatpak-xdg-utils/logger"
)

// ForwardedSignals are the signals relayed to the started command.
var ForwardedSignals = []os.Signal{
	syscall.SIGHUP,
	syscall.SIGINT,
	syscall.SIGQUIT,
	syscall.SIGTERM,
	syscall.SIGCONT,
	syscall.SIGTSTP,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
}

var (
	raise = func(sig unix.Signal) error {
		return unix.Kill(os.Getpid(), sig)
	}
	signalReset = signal.Reset
)

type relayState int

const (
	noChild relayState = iota
	childRunning
	terminated
)

// Relay follows the life of a command started through a Client: it
// forwards the signals this process gets and turns the exit of the
// command into the exit code of this process.
type Relay struct {
	conn   dbusutil.Conn
	client *Client
	svc    *Service

	sigs    <-chan os.Signal
	busSigs chan *dbus.Signal

	state relayState
	pid   uint32
}

// NewRelay returns a relay for commands started through client. sigs
// delivers the ForwardedSignals, caught since before conn was opened.
func NewRelay(conn dbusutil.Conn, client *Client, sigs <-chan os.Signal) *Relay {
	return &Relay{
		conn:    conn,
		client:  client,
		svc:     client.Service(),
		sigs:    sigs,
		busSigs: make(chan *dbus.Signal, 16),
	}
}

// Subscribe asks for the signals announcing the exit of commands and the
// disappearance of the service. It must be called before the command is
// started so that no exit can be missed.
func (r *Relay) Subscribe() error {
	err := r.conn.AddMatchSignal(
		dbus.WithMatchInterface(r.svc.Interface),
		dbus.WithMatchMember(r.svc.ExitedSignal),
		dbus.WithMatchObjectPath(r.svc.Path),
	)
	if err != nil {
		return err
	}
	err = r.conn.AddMatchSignal(
		dbus.WithMatchSender(busDaemonName),
		dbus.WithMatchInterface(busDaemonInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchObjectPath(busDaemonPath),
		dbus.WithMatchArg(0, r.svc.BusName),
	)
	if err != nil {
		return err
	}
	r.conn.Signal(r.busSigs)
	return nil
}

type startResult struct {
	pid uint32
	err error
}

// childStarted is called once the command is known to run.
var childStarted = func(pid uint32) {}

// Run starts the command through start and waits for it to terminate.
// It returns the exit code for this process, and the error that kept
// the command from being started, if any.
func (r *Relay) Run(start func(ctx context.Context) (uint32, error)) (int, error) {
	started := make(chan startResult, 1)
	go func() {
		pid, err := start(r.conn.Context())
		started <- startResult{pid: pid, err: err}
	}()

	for {
		// bus signals are only looked at once the pid they refer to
		// is known; until then they queue up
		var busSigs <-chan *dbus.Signal
		var closed <-chan struct{}
		if r.state == childRunning {
			busSigs = r.busSigs
			closed = r.conn.Context().Done()
		}

		select {
		case res := <-started:
			if res.err != nil {
				r.state = terminated
				return 1, res.err
			}
			r.pid = res.pid
			r.state = childRunning
			childStarted(r.pid)
		case sig := <-r.sigs:
			if code, done := r.handleSignal(sig.(syscall.Signal)); done {
				r.state = terminated
				return code, nil
			}
		case msg := <-busSigs:
			if code, done := r.handleBusSignal(msg); done {
				r.state = terminated
				return code, nil
			}
		case <-closed:
			logger.Debugf("Session bus connection closed, quitting")
			r.state = terminated
			return 1, nil
		}
	}
}

func (r *Relay) handleSignal(sig syscall.Signal) (code int, done bool) {
	if r.state == childRunning {
		r.forward(unix.Signal(sig))
		return 0, false
	}

	// nothing to forward to yet, act as if the signal was not caught
	switch sig {
	case unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU:
		raise(unix.SIGSTOP)
		return 0, false
	case unix.SIGCONT:
		return 0, false
	}
	signalReset(sig)
	switch sig {
	case unix.SIGHUP, unix.SIGINT, unix.SIGTERM:
		raise(sig)
	}
	// QUIT, USR1 and USR2 are not raised again: once reset, the Go
	// runtime would dump goroutines on QUIT, so all three exit plainly
	return 128 + int(sig), true
}

func (r *Relay) forward(sig unix.Signal) {
	// SIGTSTP could be ignored by the command, SIGSTOP cannot
	if sig == unix.SIGTSTP {
		sig = unix.SIGSTOP
	}
	// interactive signals go to the whole group, like a terminal does
	toGroup := sig == unix.SIGINT || sig == unix.SIGSTOP || sig == unix.SIGCONT
	if err := r.client.Signal(r.pid, sig, toGroup); err != nil {
		logger.Debugf("Failed to forward signal: %s", dbusutil.ErrorMessage(err))
	}
	if sig == unix.SIGSTOP {
		logger.Debugf("SIGSTOP:ing flatpak-spawn")
		raise(unix.SIGSTOP)
	}
}

func (r *Relay) handleBusSignal(msg *dbus.Signal) (code int, done bool) {
	switch {
	case msg.Path == r.svc.Path && msg.Name == r.svc.Member(r.svc.ExitedSignal):
		var pid, status uint32
		if err := dbus.Store(msg.Body, &pid, &status); err != nil {
			logger.Debugf("cannot decode %s: %v", msg.Name, err)
			return 0, false
		}
		logger.Debugf("child exited %d: %d", pid, status)
		if pid != r.pid {
			return 0, false
		}
		code := ExitCode(status)
		logger.Debugf("child exit code %d: %d", pid, code)
		return code, true
	case msg.Path == busDaemonPath && msg.Name == busDaemonInterface+".NameOwnerChanged":
		var name, from, to string
		if err := dbus.Store(msg.Body, &name, &from, &to); err != nil {
			return 0, false
		}
		if name == r.svc.BusName && to == "" {
			logger.Debugf("%s went away, quitting", name)
			return 1, true
		}
	}
	return 0, false
}
