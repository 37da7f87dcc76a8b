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
	"os"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"github.com/flatpak/flatpak-xdg-utils/i18n"
	"github.com/flatpak/flatpak-xdg-utils/logger"
)

// Request is a fully negotiated call of the spawn method.
type Request struct {
	Service *Service

	Cwd   string
	Argv  []string
	FDs   map[uint32]Handle
	Env   map[string]string
	Flags uint32
	// Options holds the a{sv} argument of the portal. Values are plain
	// Go values, Handle and []Handle standing for attached descriptors.
	// It is nil for the host service.
	Options map[string]interface{}

	FDList *FDList
}

var getwd = os.Getwd

// bytestring encodes s the way the services expect an "ay" path or
// argument: with a trailing NUL.
func bytestring(s string) []byte {
	return append([]byte(s), 0)
}

func (r *Request) variant(v interface{}) dbus.Variant {
	switch v := v.(type) {
	case Handle:
		return dbus.MakeVariant(r.FDList.UnixFD(v))
	case []Handle:
		fds := make([]dbus.UnixFD, len(v))
		for i, h := range v {
			fds[i] = r.FDList.UnixFD(h)
		}
		return dbus.MakeVariant(fds)
	default:
		return dbus.MakeVariant(v)
	}
}

// args returns the message body of the spawn method with the given flags.
func (r *Request) args(flags uint32) []interface{} {
	argv := make([][]byte, len(r.Argv))
	for i, arg := range r.Argv {
		argv[i] = bytestring(arg)
	}
	fds := make(map[uint32]dbus.UnixFD, len(r.FDs))
	for n, h := range r.FDs {
		fds[n] = r.FDList.UnixFD(h)
	}
	args := []interface{}{bytestring(r.Cwd), argv, fds, r.Env, flags}
	if r.Service.HasOptions {
		opts := make(map[string]dbus.Variant, len(r.Options))
		for k, v := range r.Options {
			opts[k] = r.variant(v)
		}
		args = append(args, opts)
	}
	return args
}

// Close releases the descriptors attached to the request.
func (r *Request) Close() {
	r.FDList.Close()
}

// BuildRequest turns a validated invocation into a request, checking
// every option against the capabilities of the service. The standard
// descriptors are always forwarded; the other forwarded descriptors are
// closed once attached.
func BuildRequest(inv *Invocation, caps *Capabilities) (req *Request, err error) {
	svc := inv.Service()
	env := inv.Env
	if env == nil {
		env = NewEnvEdits()
	}
	fdList := &FDList{}
	req = &Request{
		Service: svc,
		Argv:    inv.Argv,
		FDs:     make(map[uint32]Handle),
		Env:     env.Env(),
		FDList:  fdList,
	}
	if svc.HasOptions {
		req.Options = make(map[string]interface{})
	}
	defer func() {
		if err != nil {
			fdList.Close()
		}
	}()

	// all forwarded descriptors are checked before anything is
	// duplicated, a copy may land on the number of a closed one
	forwarded, err := forwardableFDs(inv.ForwardFDs)
	if err != nil {
		return nil, fmt.Errorf(i18n.G("Can't append fd: %v"), err)
	}
	for fd := 0; fd <= 2; fd++ {
		h, err := req.FDList.Append(fd)
		if err != nil {
			return nil, fmt.Errorf(i18n.G("Can't append fd: %v"), err)
		}
		req.FDs[uint32(fd)] = h
	}
	for _, fd := range forwarded {
		h, err := req.FDList.Append(fd)
		if err != nil {
			return nil, fmt.Errorf(i18n.G("Can't append fd: %v"), err)
		}
		req.FDs[uint32(fd)] = h
	}
	for _, fd := range forwarded {
		unix.Close(fd)
	}

	if inv.ClearEnv {
		req.Flags |= svc.ClearEnvFlag
	}
	if inv.WatchBus {
		req.Flags |= svc.WatchBusFlag
	}

	if inv.SharePids {
		if err := caps.Require("share-pids", 5); err != nil {
			return nil, err
		}
		// share-pids has no feature bit of its own
		if err := caps.RequireSupport("share-pids", SupportFlagsExposePids, NotSetuidRootExplanation); err != nil {
			return nil, err
		}
		req.Flags |= SpawnFlagsSharePids
	} else if inv.ExposePids {
		if err := caps.Require("expose-pids", 3); err != nil {
			return nil, err
		}
		if err := caps.RequireSupport("expose-pids", SupportFlagsExposePids, NotSetuidRootExplanation); err != nil {
			return nil, err
		}
		req.Flags |= SpawnFlagsExposePids
	}

	if inv.LatestVersion {
		req.Flags |= SpawnFlagsLatestVersion
	}
	if inv.Sandbox {
		req.Flags |= SpawnFlagsSandbox
	}
	if inv.NoNetwork {
		req.Flags |= SpawnFlagsNoNetwork
	}

	if unsets := env.Unsets(); len(unsets) > 0 {
		// the host service takes no options at all
		if svc.HasOptions && caps.Version() >= 5 {
			req.Options["unset-env"] = unsets
		} else {
			req.Argv = UnsetShim(req.Argv, unsets)
		}
	}

	if len(inv.SandboxExpose) > 0 {
		req.Options["sandbox-expose"] = inv.SandboxExpose
	}
	if len(inv.SandboxExposeRO) > 0 {
		req.Options["sandbox-expose-ro"] = inv.SandboxExposeRO
	}
	if inv.SandboxFlags != 0 {
		if err := caps.Require("sandbox-flag", 3); err != nil {
			return nil, err
		}
		req.Options["sandbox-flags"] = inv.SandboxFlags
	}

	exposer := newPathExposer()
	if inv.exposesPaths() {
		if err := caps.Require("sandbox-expose-path", 3); err != nil {
			return nil, err
		}
		handles, err := exposer.attachAll(req.FDList, inv.SandboxExposePath, inv.SandboxExposePathTry)
		if err != nil {
			return nil, err
		}
		req.Options["sandbox-expose-fd"] = handles
	}
	if inv.exposesPathsRO() {
		if err := caps.Require("sandbox-expose-path-ro", 3); err != nil {
			return nil, err
		}
		handles, err := exposer.attachAll(req.FDList, inv.SandboxExposePathRO, inv.SandboxExposePathROTry)
		if err != nil {
			return nil, err
		}
		req.Options["sandbox-expose-fd-ro"] = handles
	}

	if inv.AppPath != nil {
		if err := caps.Require("app-path", 6); err != nil {
			return nil, err
		}
		if *inv.AppPath == "" {
			logger.Debugf("Using an empty /app")
			req.Flags |= SpawnFlagsEmptyApp
		} else {
			logger.Debugf("Using %s as /app instead of app", *inv.AppPath)
			h, _, err := exposer.attach(req.FDList, *inv.AppPath, false)
			if err != nil {
				return nil, err
			}
			req.Options["app-fd"] = h
		}
	}
	if inv.UsrPath != nil {
		if err := caps.Require("usr-path", 6); err != nil {
			return nil, err
		}
		logger.Debugf("Using %s as /usr instead of runtime", *inv.UsrPath)
		h, _, err := exposer.attach(req.FDList, *inv.UsrPath, false)
		if err != nil {
			return nil, err
		}
		req.Options["usr-fd"] = h
	}

	req.Cwd = inv.Directory
	if req.Cwd == "" {
		cwd, err := getwd()
		if err != nil {
			return nil, fmt.Errorf(i18n.G("cannot get current directory: %v"), err)
		}
		req.Cwd = cwd
	}
	return req, nil
}
