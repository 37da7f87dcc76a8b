// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2020 Canonical Ltd
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

// Package dbustest provides an in-memory stand-in for a session bus
// connection, for testing clients of well-known services without
// running a message bus.
package dbustest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/flatpak/flatpak-xdg-utils/dbusutil"
)

// MethodCall records one method call made through the connection.
type MethodCall struct {
	Destination string
	Path        dbus.ObjectPath
	Method      string
	Args        []interface{}
}

// Handler answers method calls made on an Object. It returns the reply
// body or an error, typically a dbus.Error.
type Handler func(call MethodCall) ([]interface{}, error)

// Conn is a fake dbusutil.Conn. Objects are created on demand; method
// calls on objects without a handler fail with ServiceUnknown.
type Conn struct {
	mu         sync.Mutex
	handlers   map[string]Handler
	properties map[string]map[string]dbus.Variant
	calls      []MethodCall
	propReads  []string
	signals    []chan<- *dbus.Signal
	matches    int
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

var _ dbusutil.Conn = (*Conn)(nil)

// NewConn returns a new fake connection.
func NewConn() *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		handlers:   make(map[string]Handler),
		properties: make(map[string]map[string]dbus.Variant),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func objectKey(dest string, path dbus.ObjectPath) string {
	return dest + ":" + string(path)
}

// SetHandler makes h answer method calls on the given object.
func (c *Conn) SetHandler(dest string, path dbus.ObjectPath, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[objectKey(dest, path)] = h
}

// SetProperty sets a property readable through BusObject.GetProperty;
// name is the fully qualified "interface.property".
func (c *Conn) SetProperty(dest string, path dbus.ObjectPath, name string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := objectKey(dest, path)
	if c.properties[key] == nil {
		c.properties[key] = make(map[string]dbus.Variant)
	}
	c.properties[key][name] = dbus.MakeVariant(value)
}

// Calls returns the method calls made so far, property reads excluded.
func (c *Conn) Calls() []MethodCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MethodCall(nil), c.calls...)
}

// CallsTo returns the recorded calls of the given fully qualified method.
func (c *Conn) CallsTo(method string) []MethodCall {
	var res []MethodCall
	for _, call := range c.Calls() {
		if call.Method == method {
			res = append(res, call)
		}
	}
	return res
}

// PropertyReads returns the names of the properties read so far.
func (c *Conn) PropertyReads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.propReads...)
}

// Matches returns the number of match rules added.
func (c *Conn) Matches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matches
}

// Emit delivers sig to every channel registered with Signal, the way
// godbus hands every incoming signal to every registered channel.
func (c *Conn) Emit(sig *dbus.Signal) {
	c.mu.Lock()
	chans := append([]chan<- *dbus.Signal(nil), c.signals...)
	c.mu.Unlock()
	for _, ch := range chans {
		ch <- sig
	}
}

// Disconnect simulates the connection going away under the client.
func (c *Conn) Disconnect() {
	c.cancel()
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Object implements dbusutil.Conn.
func (c *Conn) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return &object{conn: c, dest: dest, path: path}
}

// AddMatchSignal implements dbusutil.Conn.
func (c *Conn) AddMatchSignal(options ...dbus.MatchOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matches++
	return nil
}

// Signal implements dbusutil.Conn.
func (c *Conn) Signal(ch chan<- *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, ch)
}

// Context implements dbusutil.Conn.
func (c *Conn) Context() context.Context {
	return c.ctx
}

// Close implements dbusutil.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	return nil
}

func (c *Conn) dispatch(call MethodCall) ([]interface{}, error) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	h := c.handlers[objectKey(call.Destination, call.Path)]
	c.mu.Unlock()

	if h == nil {
		return nil, dbus.Error{
			Name: dbusutil.ErrorServiceUnknown,
			Body: []interface{}{fmt.Sprintf("The name %s was not provided by any .service files", call.Destination)},
		}
	}
	return h(call)
}

func (c *Conn) property(dest string, path dbus.ObjectPath, name string) (dbus.Variant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.propReads = append(c.propReads, name)
	v, ok := c.properties[objectKey(dest, path)][name]
	if !ok {
		return dbus.Variant{}, dbus.Error{
			Name: dbusutil.ErrorInvalidArgs,
			Body: []interface{}{fmt.Sprintf("No such property %q", name)},
		}
	}
	return v, nil
}

type object struct {
	conn *Conn
	dest string
	path dbus.ObjectPath
}

func (o *object) makeCall(method string, args []interface{}) *dbus.Call {
	call := &dbus.Call{
		Destination: o.dest,
		Path:        o.path,
		Method:      method,
		Args:        args,
	}
	call.Body, call.Err = o.conn.dispatch(MethodCall{
		Destination: o.dest,
		Path:        o.path,
		Method:      method,
		Args:        args,
	})
	return call
}

func (o *object) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return o.makeCall(method, args)
}

func (o *object) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return o.makeCall(method, args)
}

func (o *object) Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	return o.GoWithContext(context.Background(), method, flags, ch, args...)
}

func (o *object) GoWithContext(ctx context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	if ch == nil {
		ch = make(chan *dbus.Call, 1)
	}
	call := &dbus.Call{
		Destination: o.dest,
		Path:        o.path,
		Method:      method,
		Args:        args,
		Done:        ch,
	}
	go func() {
		done := o.makeCall(method, args)
		call.Body, call.Err = done.Body, done.Err
		ch <- call
	}()
	return call
}

func (o *object) AddMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{Err: o.conn.AddMatchSignal(options...)}
}

func (o *object) RemoveMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *object) GetProperty(p string) (dbus.Variant, error) {
	return o.conn.property(o.dest, o.path, p)
}

func (o *object) StoreProperty(p string, value interface{}) error {
	v, err := o.GetProperty(p)
	if err != nil {
		return err
	}
	return dbus.Store([]interface{}{v.Value()}, value)
}

func (o *object) SetProperty(p string, v interface{}) error {
	idx := strings.LastIndex(p, ".")
	if idx == -1 {
		return dbus.Error{Name: dbusutil.ErrorInvalidArgs, Body: []interface{}{"invalid property name"}}
	}
	o.conn.SetProperty(o.dest, o.path, p, v)
	return nil
}

func (o *object) Destination() string {
	return o.dest
}

func (o *object) Path() dbus.ObjectPath {
	return o.path
}
