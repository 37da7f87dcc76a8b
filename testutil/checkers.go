// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2015-2020 Canonical Ltd
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

package testutil

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/sys/unix"
	"gopkg.in/check.v1"
)

type containsChecker struct {
	*check.CheckerInfo
}

// Contains is a Checker that looks for a needle in a haystack.
// The needle can be any object. The haystack can be an array, slice, map
// (values are searched) or string.
var Contains check.Checker = &containsChecker{
	&check.CheckerInfo{Name: "Contains", Params: []string{"haystack", "needle"}},
}

func (c *containsChecker) Check(params []interface{}, names []string) (result bool, error string) {
	defer func() {
		if v := recover(); v != nil {
			result = false
			error = fmt.Sprint(v)
		}
	}()
	var haystack interface{} = params[0]
	var needle interface{} = params[1]
	switch haystackV := reflect.ValueOf(haystack); haystackV.Kind() {
	case reflect.Slice, reflect.Array:
		if needleV := reflect.ValueOf(needle); haystackV.Type().Elem() != needleV.Type() {
			panic(fmt.Sprintf("haystack contains items of type %s but needle is a %s",
				haystackV.Type().Elem(), needleV.Type()))
		}
		for len, i := haystackV.Len(), 0; i < len; i++ {
			if reflect.DeepEqual(haystackV.Index(i).Interface(), needle) {
				return true, ""
			}
		}
		return false, ""
	case reflect.Map:
		if needleV := reflect.ValueOf(needle); haystackV.Type().Elem() != needleV.Type() {
			panic(fmt.Sprintf("haystack contains items of type %s but needle is a %s",
				haystackV.Type().Elem(), needleV.Type()))
		}
		for _, keyV := range haystackV.MapKeys() {
			if reflect.DeepEqual(haystackV.MapIndex(keyV).Interface(), needle) {
				return true, ""
			}
		}
		return false, ""
	case reflect.String:
		// When haystack is a string, we expect needle to be a string as well
		needle := params[1].(string)
		haystack := params[0].(string)
		return strings.Contains(haystack, needle), ""
	default:
		panic(fmt.Sprintf("haystack is of unsupported type %T", params[0]))
	}
}

type errorIsChecker struct {
	*check.CheckerInfo
}

// ErrorIs calls errors.Is with the provided arguments.
var ErrorIs check.Checker = &errorIsChecker{
	&check.CheckerInfo{Name: "ErrorIs", Params: []string{"error", "target"}},
}

func (*errorIsChecker) Check(params []interface{}, names []string) (result bool, errMsg string) {
	if params[0] == nil {
		return params[1] == nil, ""
	}

	err, ok := params[0].(error)
	if !ok {
		return false, "first argument must be an error"
	}

	target, ok := params[1].(error)
	if !ok {
		return false, "second argument must be an error"
	}

	return errors.Is(err, target), ""
}

type fdRefersToChecker struct {
	*check.CheckerInfo
}

// FdRefersTo checks that an open file descriptor refers to the same
// inode as the given path, or as another descriptor. Descriptors may be
// of any integer type, such as dbus.UnixFD.
var FdRefersTo check.Checker = &fdRefersToChecker{
	&check.CheckerInfo{Name: "FdRefersTo", Params: []string{"fd", "path"}},
}

func fdOf(v interface{}) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	}
	return -1, false
}

func (*fdRefersToChecker) Check(params []interface{}, names []string) (result bool, errMsg string) {
	fd, ok := fdOf(params[0])
	if !ok {
		return false, fmt.Sprintf("fd must be an integer, not %T", params[0])
	}

	var fdSt, targetSt unix.Stat_t
	if err := unix.Fstat(fd, &fdSt); err != nil {
		return false, fmt.Sprintf("cannot stat fd %d: %v", fd, err)
	}
	switch target := params[1].(type) {
	case string:
		if err := unix.Lstat(target, &targetSt); err != nil {
			return false, fmt.Sprintf("cannot stat %q: %v", target, err)
		}
	default:
		tfd, ok := fdOf(target)
		if !ok {
			return false, "path must be a string or a file descriptor"
		}
		if err := unix.Fstat(tfd, &targetSt); err != nil {
			return false, fmt.Sprintf("cannot stat fd %d: %v", tfd, err)
		}
	}
	return fdSt.Dev == targetSt.Dev && fdSt.Ino == targetSt.Ino, ""
}
