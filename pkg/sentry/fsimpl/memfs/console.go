// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memfs

import (
	"fmt"
	"io"

	"github.com/kippesp/os161/pkg/sentry/vfs"
	"github.com/kippesp/os161/pkg/sync"
)

// Console is the "con:" device. Reads come from an input stream and writes go
// to an output stream; positions are ignored.
type Console struct {
	in  io.Reader
	out io.Writer

	// mu serializes device I/O and protects opens.
	mu    sync.Mutex
	opens int
}

// NewConsole returns a console reading from in and writing to out. Either may
// be nil: reads then return end of file and writes are discarded.
func NewConsole(in io.Reader, out io.Writer) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{in: in, out: out}
}

// OpenCount returns the number of open console vnodes.
func (c *Console) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *Console) open() *consoleVnode {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	return &consoleVnode{c: c}
}

func (c *Console) close(v *consoleVnode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.closed {
		panic(fmt.Sprintf("double close of %s", ConsoleName))
	}
	v.closed = true
	c.opens--
}

type consoleVnode struct {
	c      *Console
	closed bool
}

// Read implements vfs.Vnode.Read.
func (v *consoleVnode) Read(dst []byte, _ int64) (int, error) {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	if v.c.in == nil || len(dst) == 0 {
		return 0, nil
	}
	n, err := v.c.in.Read(dst)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// Write implements vfs.Vnode.Write.
func (v *consoleVnode) Write(src []byte, _ int64) (int, error) {
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	return v.c.out.Write(src)
}

// Stat implements vfs.Vnode.Stat.
func (v *consoleVnode) Stat() (vfs.Stat, error) {
	return vfs.Stat{}, nil
}

// IsSeekable implements vfs.Vnode.IsSeekable.
func (v *consoleVnode) IsSeekable() bool {
	return false
}

// Name implements vfs.Vnode.Name.
func (v *consoleVnode) Name() string {
	return ConsoleName
}
