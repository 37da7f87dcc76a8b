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

package spawn_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
	. "gopkg.in/check.v1"

	"github.com/flatpak/flatpak-xdg-utils/spawn"
	"github.com/flatpak/flatpak-xdg-utils/testutil"
)

type requestSuite struct {
	baseSuite
}

var _ = Suite(&requestSuite{})

func (s *requestSuite) SetUpTest(c *C) {
	s.baseSuite.SetUpTest(c)
	os.Unsetenv("FLATPAK_ID")
}

func (s *requestSuite) invocation(argv ...string) *spawn.Invocation {
	inv := spawn.NewInvocation()
	inv.Argv = argv
	return inv
}

func (s *requestSuite) build(c *C, inv *spawn.Invocation) *spawn.Request {
	c.Assert(inv.Validate(), IsNil)
	svc := inv.Service()
	req, err := spawn.BuildRequest(inv, s.caps(svc))
	c.Assert(err, IsNil)
	s.AddCleanup(req.Close)
	return req
}

func (s *requestSuite) pipe(c *C) (r, w int) {
	var fds [2]int
	c.Assert(unix.Pipe2(fds[:], unix.O_CLOEXEC), IsNil)
	return fds[0], fds[1]
}

func (s *requestSuite) TestStandardDescriptors(c *C) {
	req := s.build(c, s.invocation("true"))

	c.Check(req.FDs, HasLen, 3)
	c.Check(req.FDList.Len(), Equals, 3)
	for n := uint32(0); n < 3; n++ {
		c.Check(req.FDs[n], Equals, spawn.Handle(n))
		c.Check(req.FDList.UnixFD(req.FDs[n]), testutil.FdRefersTo, int(n))
	}
	c.Check(req.Cwd, Equals, "/cwd")
	c.Check(req.Flags, Equals, uint32(0))
	c.Check(req.Options, DeepEquals, map[string]interface{}{})
}

func (s *requestSuite) TestForwardFDs(c *C) {
	r, w := s.pipe(c)
	inv := s.invocation("cat")
	// repeated and standard descriptors add nothing
	inv.ForwardFDs = []int{1, r, 2, w, r}
	req := s.build(c, inv)

	c.Check(req.FDs, HasLen, 5)
	c.Check(req.FDList.Len(), Equals, 5)
	c.Check(req.FDs[uint32(r)], Equals, spawn.Handle(3))
	c.Check(req.FDs[uint32(w)], Equals, spawn.Handle(4))

	// the originals were handed over
	_, err := unix.FcntlInt(uintptr(r), unix.F_GETFD, 0)
	c.Check(err, Equals, unix.EBADF)
	_, err = unix.FcntlInt(uintptr(w), unix.F_GETFD, 0)
	c.Check(err, Equals, unix.EBADF)
}

func (s *requestSuite) TestForwardClosedFDAfterOpenOne(c *C) {
	r, w := s.pipe(c)
	defer unix.Close(r)
	c.Assert(unix.Close(w), IsNil)

	inv := s.invocation("cat")
	inv.ForwardFDs = []int{r, w}
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, fmt.Sprintf("Can't append fd: cannot duplicate fd %d: .*", w))

	// nothing was handed over
	_, err = unix.FcntlInt(uintptr(r), unix.F_GETFD, 0)
	c.Check(err, IsNil)
	_, err = unix.FcntlInt(uintptr(w), unix.F_GETFD, 0)
	c.Check(err, Equals, unix.EBADF)
}

func (s *requestSuite) TestForwardBadFD(c *C) {
	inv := s.invocation("cat")
	inv.ForwardFDs = []int{9999}
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, "Can't append fd: cannot duplicate fd 9999: .*")
}

func (s *requestSuite) TestHostFlags(c *C) {
	inv := s.invocation("true")
	inv.Host = true
	inv.ClearEnv = true
	inv.WatchBus = true
	req := s.build(c, inv)

	c.Check(req.Flags, Equals, spawn.HostCommandFlagsClearEnv|spawn.HostCommandFlagsWatchBus)
	c.Check(req.Options, IsNil)
	c.Check(req.Args(req.Flags), HasLen, 5)
	// no version queries for plain host commands
	c.Check(s.conn.PropertyReads(), HasLen, 0)
}

func (s *requestSuite) TestPortalFlags(c *C) {
	inv := s.invocation("true")
	inv.ClearEnv = true
	inv.WatchBus = true
	inv.LatestVersion = true
	inv.Sandbox = true
	inv.NoNetwork = true
	req := s.build(c, inv)

	c.Check(req.Flags, Equals, spawn.SpawnFlagsClearEnv|spawn.SpawnFlagsWatchBus|
		spawn.SpawnFlagsLatestVersion|spawn.SpawnFlagsSandbox|spawn.SpawnFlagsNoNetwork)
	c.Check(req.Args(req.Flags), HasLen, 6)
}

func (s *requestSuite) TestWireArgs(c *C) {
	inv := s.invocation("echo", "hello")
	inv.Directory = "/somewhere"
	inv.Env.Set("FOO", "bar")
	inv.SandboxExpose = []string{"data"}
	req := s.build(c, inv)

	args := req.Args(7)
	c.Assert(args, HasLen, 6)
	c.Check(args[0], DeepEquals, []byte("/somewhere\x00"))
	c.Check(args[1], DeepEquals, [][]byte{[]byte("echo\x00"), []byte("hello\x00")})
	fds := args[2].(map[uint32]dbus.UnixFD)
	c.Check(fds, HasLen, 3)
	c.Check(fds[1], testutil.FdRefersTo, 1)
	c.Check(args[3], DeepEquals, map[string]string{"FOO": "bar"})
	c.Check(args[4], Equals, uint32(7))
	c.Check(args[5], DeepEquals, map[string]dbus.Variant{
		"sandbox-expose": dbus.MakeVariant([]string{"data"}),
	})
}

func (s *requestSuite) TestSharePids(c *C) {
	s.setVersion(spawn.PortalService, 5, spawn.SupportFlagsExposePids)
	inv := s.invocation("true")
	inv.SharePids = true
	inv.ExposePids = true
	req := s.build(c, inv)

	c.Check(req.Flags, Equals, spawn.SpawnFlagsSharePids)
}

func (s *requestSuite) TestSharePidsOldVersion(c *C) {
	s.setVersion(spawn.PortalService, 4, spawn.SupportFlagsExposePids)
	inv := s.invocation("true")
	inv.SharePids = true
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, `--share-pids not supported by host portal version \(need version 5, has 4\)`)
}

func (s *requestSuite) TestExposePids(c *C) {
	s.setVersion(spawn.PortalService, 3, spawn.SupportFlagsExposePids)
	inv := s.invocation("true")
	inv.ExposePids = true
	req := s.build(c, inv)

	c.Check(req.Flags, Equals, spawn.SpawnFlagsExposePids)
}

func (s *requestSuite) TestExposePidsOldVersion(c *C) {
	s.setVersion(spawn.PortalService, 1, spawn.SupportFlagsExposePids)
	inv := s.invocation("true")
	inv.ExposePids = true
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, `--expose-pids not supported by host portal version \(need version 3, has 1\)`)
	var cerr *spawn.CapabilityError
	c.Check(err, FitsTypeOf, cerr)
	c.Check(s.conn.Calls(), HasLen, 0)
}

func (s *requestSuite) TestExposePidsUnsupported(c *C) {
	s.setVersion(spawn.PortalService, 6, 0)
	inv := s.invocation("true")
	inv.ExposePids = true
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, `(?s)--expose-pids not supported by host portal\n\n.*setuid root.*`)
}

func (s *requestSuite) TestUnsetEnvStructured(c *C) {
	s.setVersion(spawn.PortalService, 5, 0)
	inv := s.invocation("MY=COMMAND")
	c.Assert(inv.Env.Unset("B"), IsNil)
	c.Assert(inv.Env.Unset("A"), IsNil)
	req := s.build(c, inv)

	c.Check(req.Argv, DeepEquals, []string{"MY=COMMAND"})
	c.Check(req.Options["unset-env"], DeepEquals, []string{"A", "B"})
}

func (s *requestSuite) TestUnsetEnvShimOldPortal(c *C) {
	s.setVersion(spawn.PortalService, 4, 0)
	inv := s.invocation("MY=COMMAND", "arg")
	c.Assert(inv.Env.Unset("A"), IsNil)
	req := s.build(c, inv)

	c.Check(req.Argv, DeepEquals, []string{"/usr/bin/env", "-u", "A", "/bin/sh", "-euc", `exec "$@"`, "sh", "MY=COMMAND", "arg"})
	c.Check(req.Options, HasLen, 0)
}

func (s *requestSuite) TestUnsetEnvShimHost(c *C) {
	s.setVersion(spawn.HostService, 10, 0)
	inv := s.invocation("ls")
	inv.Host = true
	c.Assert(inv.Env.Unset("A"), IsNil)
	req := s.build(c, inv)

	c.Check(req.Argv, DeepEquals, []string{"/usr/bin/env", "-u", "A", "ls"})
	c.Check(s.conn.PropertyReads(), HasLen, 0)
}

func (s *requestSuite) TestSandboxExposeOrder(c *C) {
	inv := s.invocation("true")
	inv.SandboxExpose = []string{"b", "a", "c"}
	inv.SandboxExposeRO = []string{"z", "y"}
	req := s.build(c, inv)

	c.Check(req.Options["sandbox-expose"], DeepEquals, []string{"b", "a", "c"})
	c.Check(req.Options["sandbox-expose-ro"], DeepEquals, []string{"z", "y"})
	// no version needed for these
	c.Check(s.conn.PropertyReads(), HasLen, 0)
}

func (s *requestSuite) TestSandboxFlags(c *C) {
	s.setVersion(spawn.PortalService, 3, 0)
	inv := s.invocation("true")
	inv.SandboxFlags = spawn.SandboxFlagsShareDisplay | spawn.SandboxFlagsShareGPU
	req := s.build(c, inv)

	c.Check(req.Options["sandbox-flags"], Equals, uint32(5))
}

func (s *requestSuite) TestSandboxFlagsOldVersion(c *C) {
	s.setVersion(spawn.PortalService, 2, 0)
	inv := s.invocation("true")
	inv.SandboxFlags = spawn.SandboxFlagsShareDisplay
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, `--sandbox-flag not supported by host portal version \(need version 3, has 2\)`)
}

func (s *requestSuite) TestSandboxExposePath(c *C) {
	s.setVersion(spawn.PortalService, 3, 0)
	dir := c.MkDir()
	rw := filepath.Join(dir, "rw")
	ro := filepath.Join(dir, "ro")
	c.Assert(os.Mkdir(rw, 0755), IsNil)
	c.Assert(os.Mkdir(ro, 0755), IsNil)

	inv := s.invocation("true")
	inv.SandboxExposePath = []string{rw}
	inv.SandboxExposePathTry = []string{filepath.Join(dir, "missing"), ro}
	inv.SandboxExposePathROTry = []string{filepath.Join(dir, "missing")}
	req := s.build(c, inv)

	handles, ok := req.Options["sandbox-expose-fd"].([]spawn.Handle)
	c.Assert(ok, Equals, true)
	c.Assert(handles, HasLen, 2)
	c.Check(req.FDList.UnixFD(handles[0]), testutil.FdRefersTo, rw)
	c.Check(req.FDList.UnixFD(handles[1]), testutil.FdRefersTo, ro)
	// only missing optional paths: an empty list
	c.Check(req.Options["sandbox-expose-fd-ro"], HasLen, 0)
}

func (s *requestSuite) TestSandboxExposePathMissing(c *C) {
	s.setVersion(spawn.PortalService, 3, 0)
	missing := filepath.Join(c.MkDir(), "missing")
	inv := s.invocation("true")
	inv.SandboxExposePathRO = []string{missing}
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, "Failed to open .*/missing to expose in sandbox: no such file or directory")
}

func (s *requestSuite) TestSandboxExposePathOldVersion(c *C) {
	s.setVersion(spawn.PortalService, 2, 0)
	inv := s.invocation("true")
	inv.SandboxExposePathROTry = []string{"/"}
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, `--sandbox-expose-path-ro not supported by host portal version \(need version 3, has 2\)`)
}

func (s *requestSuite) TestSandboxExposePathHomeRemap(c *C) {
	s.setVersion(spawn.PortalService, 3, 0)
	home := c.MkDir()
	s.AddCleanup(spawn.MockUserHomeDir(func() (string, error) { return home, nil }))
	os.Setenv("FLATPAK_ID", "org.example.App")
	s.AddCleanup(func() { os.Unsetenv("FLATPAK_ID") })

	appDir := filepath.Join(home, ".var/app/org.example.App")
	c.Assert(os.MkdirAll(appDir, 0755), IsNil)
	shared := filepath.Join(home, "shared")
	c.Assert(os.WriteFile(shared, nil, 0644), IsNil)
	c.Assert(os.Link(shared, filepath.Join(appDir, "shared")), IsNil)
	private := filepath.Join(home, "private")
	c.Assert(os.WriteFile(private, nil, 0644), IsNil)

	inv := s.invocation("true")
	inv.SandboxExposePath = []string{shared, private}
	req := s.build(c, inv)

	handles := req.Options["sandbox-expose-fd"].([]spawn.Handle)
	c.Assert(handles, HasLen, 2)
	c.Check(req.FDList.UnixFD(handles[0]), testutil.FdRefersTo, shared)
	c.Check(req.FDList.UnixFD(handles[1]), testutil.FdRefersTo, private)
	c.Check(s.logbuf.String(), testutil.Contains, "exposing "+shared+" as ")
	c.Check(s.logbuf.String(), Not(testutil.Contains), "exposing "+private)
}

func (s *requestSuite) TestAppPath(c *C) {
	s.setVersion(spawn.PortalService, 6, 0)
	dir := c.MkDir()
	inv := s.invocation("true")
	inv.AppPath = &dir
	inv.UsrPath = &dir
	req := s.build(c, inv)

	c.Check(req.Flags, Equals, uint32(0))
	c.Check(req.FDList.UnixFD(req.Options["app-fd"].(spawn.Handle)), testutil.FdRefersTo, dir)
	c.Check(req.FDList.UnixFD(req.Options["usr-fd"].(spawn.Handle)), testutil.FdRefersTo, dir)
	c.Check(req.Args(0)[5].(map[string]dbus.Variant)["app-fd"].Signature().String(), Equals, "h")
}

func (s *requestSuite) TestEmptyAppPath(c *C) {
	s.setVersion(spawn.PortalService, 6, 0)
	empty := ""
	inv := s.invocation("true")
	inv.AppPath = &empty
	req := s.build(c, inv)

	c.Check(req.Flags, Equals, spawn.SpawnFlagsEmptyApp)
	c.Check(req.Options["app-fd"], IsNil)
}

func (s *requestSuite) TestEmptyUsrPath(c *C) {
	s.setVersion(spawn.PortalService, 6, 0)
	empty := ""
	inv := s.invocation("true")
	inv.UsrPath = &empty
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, "Failed to open  to expose in sandbox: .*")
}

func (s *requestSuite) TestAppPathOldVersion(c *C) {
	s.setVersion(spawn.PortalService, 5, 0)
	dir := c.MkDir()
	inv := s.invocation("true")
	inv.AppPath = &dir
	_, err := spawn.BuildRequest(inv, s.caps(spawn.PortalService))
	c.Check(err, ErrorMatches, `--app-path not supported by host portal version \(need version 6, has 5\)`)
}
