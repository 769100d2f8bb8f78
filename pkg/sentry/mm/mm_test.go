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

package mm

import (
	"bytes"
	"testing"

	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/hostarch"
	"github.com/kippesp/os161/pkg/sentry/fsimpl/memfs"
)

func newAS(t *testing.T) *MemoryAddressSpace {
	t.Helper()
	as, err := NewMemoryAddressSpace()
	if err != nil {
		t.Fatalf("NewMemoryAddressSpace: %v", err)
	}
	return as.(*MemoryAddressSpace)
}

func TestCopyAcrossPages(t *testing.T) {
	as := newAS(t)
	const base = hostarch.Addr(0x10000)
	if err := as.DefineRegion(base, 2*hostarch.PageSize, hostarch.ReadWrite); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}
	src := bytes.Repeat([]byte("abcdefgh"), 100)
	addr := base + hostarch.PageSize - 13
	if err := as.CopyOut(addr, src); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	dst := make([]byte, len(src))
	if err := as.CopyIn(addr, dst); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if !bytes.Equal(src, dst) {
		t.Errorf("CopyIn returned different bytes")
	}
}

func TestFaults(t *testing.T) {
	as := newAS(t)
	const base = hostarch.Addr(0x10000)
	as.DefineRegion(base, hostarch.PageSize, hostarch.Read)
	buf := make([]byte, 8)
	for _, tc := range []struct {
		name string
		err  error
	}{
		{"unmapped", as.CopyIn(0x20000, buf)},
		{"straddles unmapped page", as.CopyIn(base+hostarch.PageSize-4, buf)},
		{"kernel address", as.CopyIn(0x80000000, buf)},
		{"read-only", as.CopyOut(base, buf)},
	} {
		if !linuxerr.Equals(linuxerr.EFAULT, tc.err) {
			t.Errorf("%s: got %v, want EFAULT", tc.name, tc.err)
		}
	}
}

func TestCopyInString(t *testing.T) {
	as := newAS(t)
	sp, err := as.DefineStack()
	if err != nil {
		t.Fatalf("DefineStack: %v", err)
	}
	addr := sp - 16
	as.CopyOut(addr, []byte("con:\x00"))
	s, err := as.CopyInString(addr, 16)
	if err != nil || s != "con:" {
		t.Errorf("CopyInString = %q, %v", s, err)
	}
	if _, err := as.CopyInString(addr, 4); !linuxerr.Equals(linuxerr.ENAMETOOLONG, err) {
		t.Errorf("CopyInString with short limit = %v, want ENAMETOOLONG", err)
	}
	if err := CopyOutUint32(as, addr, 0xdeadbeef); err != nil {
		t.Fatalf("CopyOutUint32: %v", err)
	}
	if v, err := CopyInUint32(as, addr); err != nil || v != 0xdeadbeef {
		t.Errorf("CopyInUint32 = %#x, %v", v, err)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	as := newAS(t)
	as.DefineRegion(0x10000, 4, hostarch.ReadWrite)
	as.CopyOut(0x10000, []byte("old!"))
	cp, err := as.Copy()
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	as.CopyOut(0x10000, []byte("new!"))
	buf := make([]byte, 4)
	cp.CopyIn(0x10000, buf)
	if string(buf) != "old!" {
		t.Errorf("copy sees %q after parent write", buf)
	}
	as.Destroy()
	if !as.Destroyed() {
		t.Errorf("Destroyed() = false")
	}
	defer func() {
		if recover() == nil {
			t.Errorf("use after Destroy did not panic")
		}
	}()
	as.Activate()
}

func TestLoad(t *testing.T) {
	fs := memfs.New("", nil)
	fs.WriteFile("/bin/prog", []byte("program image"))
	fs.WriteFile("/bin/empty", nil)
	as := newAS(t)

	v, err := fs.Open("/", "/bin/prog", os161.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	entry, err := as.Load(v)
	if err != nil || entry != TextBase {
		t.Fatalf("Load = %v, %v", entry, err)
	}
	if string(as.Image()) != "program image" {
		t.Errorf("Image = %q", as.Image())
	}
	if err := as.CopyOut(TextBase, []byte("x")); !linuxerr.Equals(linuxerr.EFAULT, err) {
		t.Errorf("write to text = %v, want EFAULT", err)
	}

	v, _ = fs.Open("/", "/bin/empty", os161.O_RDONLY, 0)
	if _, err := as.Load(v); !linuxerr.Equals(linuxerr.ENOEXEC, err) {
		t.Errorf("Load(empty) = %v, want ENOEXEC", err)
	}
}
