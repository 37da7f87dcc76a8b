// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2016 Canonical Ltd
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

package osutil_test

import (
	"os"

	"gopkg.in/check.v1"

	"github.com/flatpak/flatpak-xdg-utils/osutil"
)

type envSuite struct{}

var _ = check.Suite(&envSuite{})

const debugKey = "FLATPAK_XDG_UTILS_OSUTIL_TEST"

func (s *envSuite) TearDownTest(c *check.C) {
	os.Unsetenv(debugKey)
}

func (s *envSuite) TestGetenvBoolUnset(c *check.C) {
	os.Unsetenv(debugKey)
	c.Check(osutil.GetenvBool(debugKey), check.Equals, false)
}

func (s *envSuite) TestGetenvBool(c *check.C) {
	for _, t := range []struct {
		value string
		set   bool
	}{
		{"1", true},
		{"t", true},
		{"true", true},
		{"TRUE", true},
		{"", false},
		{"0", false},
		{"f", false},
		{"FALSE", false},
		{"yes", false},
		{"verbose", false},
	} {
		os.Setenv(debugKey, t.value)
		c.Check(osutil.GetenvBool(debugKey), check.Equals, t.set, check.Commentf("%q", t.value))
	}
}
