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
	"fmt"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
	"gopkg.in/retry.v1"

	"github.com/flatpak/flatpak-xdg-utils/dbusutil"
	"github.com/flatpak/flatpak-xdg-utils/i18n"
	"github.com/flatpak/flatpak-xdg-utils/logger"
)

// the spawn method is tried again at most once, and only when a retry
// policy allows to drop a flag older services do not know about; the
// first call may take arbitrarily long, so only the count is bounded
var (
	spawnRetryStrategy retry.Strategy = retry.LimitCount(2, retry.Regular{Min: 2})
	spawnRetryClock    retry.Clock
)

type retryPolicy struct {
	errorName string
	flag      func(svc *Service) uint32
	reason    string
}

var retryPolicies = []retryPolicy{{
	errorName: dbusutil.ErrorInvalidArgs,
	flag:      func(svc *Service) uint32 { return svc.WatchBusFlag },
	reason:    "Got an invalid argument error; trying again without --watch-bus",
}}

// CallError is returned when the spawn method fails.
type CallError struct {
	Err  error
	Host bool
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf(i18n.G("Portal call failed: %s"), dbusutil.ErrorMessage(e.Err))
	if e.Host && dbusutil.IsError(e.Err, dbusutil.ErrorServiceUnknown) {
		msg += "\n" + i18n.G("Hint: --host only works when the Flatpak is allowed to talk to org.freedesktop.Flatpak")
	}
	return msg
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Client talks to one of the spawning services.
type Client struct {
	svc *Service
	obj dbus.BusObject
}

// NewClient returns a client for svc, reached through conn.
func NewClient(conn dbusutil.Conn, svc *Service) *Client {
	return &Client{
		svc: svc,
		obj: conn.Object(svc.BusName, svc.Path),
	}
}

// Object returns the remote object of the service.
func (c *Client) Object() dbus.BusObject {
	return c.obj
}

// Service returns the service the client talks to.
func (c *Client) Service() *Service {
	return c.svc
}

// Spawn starts the requested command and returns its process id, as
// known to the service. The descriptors of req are released afterwards.
func (c *Client) Spawn(ctx context.Context, req *Request) (pid uint32, err error) {
	defer req.Close()

	flags := req.Flags
	method := c.svc.Member(c.svc.SpawnMethod)
	for attempt := retry.Start(spawnRetryStrategy, spawnRetryClock); attempt.Next(); {
		err = c.obj.CallWithContext(ctx, method, 0, req.args(flags)...).Store(&pid)
		if err == nil {
			logger.Debugf("child_pid: %d", pid)
			return pid, nil
		}
		policy := findRetryPolicy(c.svc, err, flags)
		if policy == nil {
			break
		}
		logger.Debugf("%s", policy.reason)
		flags &^= policy.flag(c.svc)
	}
	return 0, &CallError{Err: err, Host: c.svc == HostService}
}

func findRetryPolicy(svc *Service, err error, flags uint32) *retryPolicy {
	for i := range retryPolicies {
		p := &retryPolicies[i]
		if dbusutil.IsError(err, p.errorName) && flags&p.flag(svc) != 0 {
			return p
		}
	}
	return nil
}

// Signal delivers sig to the process pid started through the service,
// or to its whole process group if toGroup is set.
func (c *Client) Signal(pid uint32, sig unix.Signal, toGroup bool) error {
	logger.Debugf("Forwarding signal: %d", sig)
	return c.obj.Call(c.svc.Member(c.svc.SignalMethod), 0, pid, uint32(sig), toGroup).Err
}
