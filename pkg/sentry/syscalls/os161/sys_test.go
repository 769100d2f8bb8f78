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

package os161_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/abi/os161/errno"
	"github.com/kippesp/os161/pkg/hostarch"
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sentry/fsimpl/memfs"
	"github.com/kippesp/os161/pkg/sentry/kernel"
	"github.com/kippesp/os161/pkg/sentry/limits"
	"github.com/kippesp/os161/pkg/sentry/mm"

	sys "github.com/kippesp/os161/pkg/sentry/syscalls/os161"
)

// user drives syscalls from a test program.
type user struct {
	t  *testing.T
	th *kernel.Thread
	tf *arch.TrapFrame

	// next is the next free scratch address below the stack pointer.
	next hostarch.Addr
}

// call issues syscall sysno and returns the result or errno.
func (u *user) call(sysno uint32, args ...uint32) (uint32, errno.Errno) {
	var a [4]uint32
	copy(a[:], args)
	u.tf.V0 = sysno
	u.tf.A0, u.tf.A1, u.tf.A2, u.tf.A3 = a[0], a[1], a[2], a[3]
	epc := u.tf.EPC
	u.th.Syscall(u.tf)
	if u.tf.EPC != epc+arch.InstructionSize {
		u.t.Errorf("%s did not advance the program counter", kernel.SyscallName(uintptr(sysno)))
	}
	if u.tf.A3 != 0 {
		return 0, errno.Errno(u.tf.V0)
	}
	return u.tf.V0, errno.NOERRNO
}

// want checks that a syscall produced the given result.
func (u *user) want(name string, got uint32, gotErr errno.Errno, want uint32, wantErr errno.Errno) {
	u.t.Helper()
	if gotErr != wantErr || (wantErr == errno.NOERRNO && got != want) {
		u.t.Errorf("%s = %d, errno %d; want %d, errno %d", name, got, gotErr, want, wantErr)
	}
}

// str stores s, NUL-terminated, in scratch memory.
func (u *user) str(s string) uint32 {
	return uint32(u.bytes(append([]byte(s), 0)))
}

func (u *user) bytes(b []byte) hostarch.Addr {
	if u.next == 0 {
		u.next = hostarch.Addr(u.tf.SP - 4096)
	}
	addr := u.next
	if err := u.th.AddressSpace().CopyOut(addr, b); err != nil {
		u.t.Errorf("CopyOut: %v", err)
	}
	u.next += hostarch.Addr(hostarch.AlignUp(uint32(len(b)), 4))
	return addr
}

func (u *user) read(addr uint32, n int) string {
	b := make([]byte, n)
	if err := u.th.AddressSpace().CopyIn(hostarch.Addr(addr), b); err != nil {
		u.t.Errorf("CopyIn: %v", err)
	}
	return string(b)
}

type env struct {
	k  *kernel.Kernel
	fs *memfs.Filesystem
}

// run runs fn as the program /bin/prog and waits for it to exit.
func run(t *testing.T, fn func(u *user), opts ...func(*limits.LimitSet)) (*env, os161.WaitStatus) {
	t.Helper()
	fs := memfs.New(memfs.DefaultVolume, memfs.NewConsole(nil, nil))
	if err := fs.WriteFile("/bin/prog", []byte("prog")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := fs.WriteFile("/data", []byte("0123456789")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := fs.Mkdir("/dir"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	ls := limits.NewOS161LimitSet()
	for _, opt := range opts {
		opt(ls)
	}
	sched := &kernel.GoroutineScheduler{}
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		Limits:    ls,
		VFS:       fs,
		Scheduler: sched,
		UserMode: kernel.UserModeFunc(func(th *kernel.Thread, tf *arch.TrapFrame) {
			fn(&user{t: t, th: th, tf: tf})
		}),
	}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	boot := k.NewKernelThread("boot")
	p, err := k.RunProgram(boot, "/bin/prog", []string{"prog"})
	if err != nil {
		t.Fatalf("RunProgram: %v", err)
	}
	status := k.WaitForExit(boot, p)
	sched.Wait()
	return &env{k: k, fs: fs}, status
}

func TestTableComplete(t *testing.T) {
	for _, sysno := range []uintptr{
		os161.SYS_fork, os161.SYS_execv, os161.SYS__exit, os161.SYS_waitpid,
		os161.SYS_getpid, os161.SYS_getppid, os161.SYS_open, os161.SYS_dup2,
		os161.SYS_close, os161.SYS_read, os161.SYS_write, os161.SYS_lseek,
		os161.SYS_chdir, os161.SYS___getcwd,
	} {
		if _, ok := sys.MIPS.Lookup(sysno); !ok {
			t.Errorf("syscall %d not in table", sysno)
		}
	}
	if sc, _ := sys.MIPS.Lookup(os161.SYS_lseek); !sc.Wide {
		t.Errorf("lseek does not return a 64-bit result")
	}
}

func TestOpen(t *testing.T) {
	env, _ := run(t, func(u *user) {
		path := u.str("/data")
		for _, tc := range []struct {
			name  string
			path  uint32
			flags uint32
			fd    uint32
			err   errno.Errno
		}{
			{"no access mode", path, os161.O_ACCMODE, 0, errno.EINVAL},
			{"unknown flag", path, os161.O_RDONLY | 0x1000, 0, errno.EINVAL},
			{"null path", 0, os161.O_RDONLY, 0, errno.EFAULT},
			{"kernel path", 0x80001000, os161.O_RDONLY, 0, errno.EFAULT},
			{"missing", u.str("/nope"), os161.O_RDONLY, 0, errno.ENOENT},
			{"exclusive", path, os161.O_WRONLY | os161.O_CREAT | os161.O_EXCL, 0, errno.EEXIST},
			{"directory for writing", u.str("/dir"), os161.O_RDWR, 0, errno.EISDIR},
			{"first free", path, os161.O_RDONLY, 3, errno.NOERRNO},
			{"next free", u.str("/new"), os161.O_WRONLY | os161.O_CREAT, 4, errno.NOERRNO},
		} {
			got, err := u.call(os161.SYS_open, tc.path, tc.flags, 0o644)
			u.want("open "+tc.name, got, err, tc.fd, tc.err)
		}

		// Appends land at the end of the file.
		fd, err := u.call(os161.SYS_open, path, os161.O_WRONLY|os161.O_APPEND, 0)
		u.want("open append", fd, err, 5, errno.NOERRNO)
		buf := uint32(u.bytes([]byte("ab")))
		got, err := u.call(os161.SYS_write, fd, buf, 2)
		u.want("write", got, err, 2, errno.NOERRNO)

		// A read-only open ignores O_TRUNC.
		fd, err = u.call(os161.SYS_open, path, os161.O_RDONLY|os161.O_TRUNC, 0)
		u.want("open rdonly|trunc", fd, err, 6, errno.NOERRNO)
	})
	got, err := env.fs.ReadFile("/data")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if want := "0123456789ab"; string(got) != want {
		t.Errorf("/data = %q, want %q", got, want)
	}
	if _, err := env.fs.ReadFile("/new"); err != nil {
		t.Errorf("O_CREAT did not create /new: %v", err)
	}
	if n := env.fs.OpenCount("/data"); n != 0 {
		t.Errorf("/data open %d times after exit, want 0", n)
	}
}

func TestOpenTableFull(t *testing.T) {
	run(t, func(u *user) {
		path := u.str("/data")
		for fd := uint32(3); fd < 5; fd++ {
			got, err := u.call(os161.SYS_open, path, os161.O_RDONLY, 0)
			u.want("open", got, err, fd, errno.NOERRNO)
		}
		got, err := u.call(os161.SYS_open, path, os161.O_RDONLY, 0)
		u.want("open", got, err, 0, errno.EMFILE)
		got, err = u.call(os161.SYS_close, 3)
		u.want("close", got, err, 0, errno.NOERRNO)
		got, err = u.call(os161.SYS_open, path, os161.O_RDONLY, 0)
		u.want("open", got, err, 3, errno.NOERRNO)
	}, func(ls *limits.LimitSet) {
		ls.SetUnchecked(limits.NumberOfFiles, limits.Limit{Cur: 5, Max: 5})
	})
}

// lseek issues lseek with whence passed on the stack.
func (u *user) lseek(fd uint32, pos int64, whence uint32) (int64, errno.Errno) {
	u.tf.SP -= 32
	defer func() { u.tf.SP += 32 }()
	if err := mm.CopyOutUint32(u.th.AddressSpace(), u.tf.StackArg(0), whence); err != nil {
		u.t.Errorf("CopyOutUint32: %v", err)
	}
	hi, err := u.call(os161.SYS_lseek, fd, 0, uint32(uint64(pos)>>32), uint32(pos))
	if err != errno.NOERRNO {
		return 0, err
	}
	return int64(uint64(hi)<<32 | uint64(u.tf.V1)), errno.NOERRNO
}

func TestReadWriteSeek(t *testing.T) {
	run(t, func(u *user) {
		fd, err := u.call(os161.SYS_open, u.str("/data"), os161.O_RDWR, 0)
		u.want("open", fd, err, 3, errno.NOERRNO)
		buf := uint32(u.bytes(make([]byte, 64)))

		got, err := u.call(os161.SYS_read, fd, buf, 4)
		u.want("read", got, err, 4, errno.NOERRNO)
		if s := u.read(buf, 4); s != "0123" {
			t.Errorf("read %q, want %q", s, "0123")
		}

		for _, tc := range []struct {
			pos    int64
			whence uint32
			want   int64
			err    errno.Errno
		}{
			{0, os161.SEEK_CUR, 4, errno.NOERRNO},
			{-1, os161.SEEK_END, 9, errno.NOERRNO},
			{1 << 33, os161.SEEK_SET, 1 << 33, errno.NOERRNO},
			{-1, os161.SEEK_SET, 0, errno.EINVAL},
			{0, 7, 0, errno.EINVAL},
			{2, os161.SEEK_SET, 2, errno.NOERRNO},
		} {
			off, err := u.lseek(fd, tc.pos, tc.whence)
			if err != tc.err || off != tc.want {
				t.Errorf("lseek(%d, %d) = %d, errno %d; want %d, errno %d", tc.pos, tc.whence, off, err, tc.want, tc.err)
			}
		}
		got, err = u.call(os161.SYS_write, fd, uint32(u.bytes([]byte("xy"))), 2)
		u.want("write", got, err, 2, errno.NOERRNO)
		off, err := u.lseek(fd, 0, os161.SEEK_CUR)
		if err != errno.NOERRNO || off != 4 {
			t.Errorf("offset after write = %d, errno %d; want 4", off, err)
		}

		_, err = u.lseek(os161.STDOUT_FILENO, 0, os161.SEEK_SET)
		u.want("lseek console", 0, err, 0, errno.ESPIPE)
		_, err = u.lseek(40, 0, os161.SEEK_SET)
		u.want("lseek closed", 0, err, 0, errno.EBADF)
		_, err = u.lseek(40, 0, 7)
		u.want("lseek closed with bad whence", 0, err, 0, errno.EINVAL)

		got, err = u.call(os161.SYS_read, fd, 0x80000000, 4)
		u.want("read into kernel", got, err, 0, errno.EFAULT)
		got, err = u.call(os161.SYS_write, fd, 0x10, 4)
		u.want("write from unmapped", got, err, 0, errno.EFAULT)
		got, err = u.call(os161.SYS_read, os161.STDOUT_FILENO, buf, 4)
		u.want("read write-only", got, err, 0, errno.EBADF)
		got, err = u.call(os161.SYS_write, os161.STDIN_FILENO, buf, 4)
		u.want("write read-only", got, err, 0, errno.EBADF)
		got, err = u.call(os161.SYS_write, fd, buf, 0)
		u.want("empty write", got, err, 0, errno.NOERRNO)
		got, err = u.call(os161.SYS_read, 99, buf, 4)
		u.want("read bad fd", got, err, 0, errno.EBADF)
	})
}

func TestDup2AndClose(t *testing.T) {
	run(t, func(u *user) {
		fd, err := u.call(os161.SYS_open, u.str("/data"), os161.O_RDONLY, 0)
		u.want("open", fd, err, 3, errno.NOERRNO)
		got, err := u.call(os161.SYS_dup2, fd, 10)
		u.want("dup2", got, err, 10, errno.NOERRNO)
		got, err = u.call(os161.SYS_dup2, fd, fd)
		u.want("dup2 same", got, err, fd, errno.NOERRNO)
		got, err = u.call(os161.SYS_dup2, 7, 8)
		u.want("dup2 empty source", got, err, 0, errno.EBADF)
		got, err = u.call(os161.SYS_dup2, fd, os161.OPEN_MAX)
		u.want("dup2 out of range", got, err, 0, errno.EBADF)
		got, err = u.call(os161.SYS_dup2, fd, ^uint32(0))
		u.want("dup2 negative", got, err, 0, errno.EBADF)

		// The duplicate shares the offset.
		buf := uint32(u.bytes(make([]byte, 4)))
		u.call(os161.SYS_read, fd, buf, 3)
		got, err = u.call(os161.SYS_read, 10, buf, 1)
		u.want("read dup", got, err, 1, errno.NOERRNO)
		if s := u.read(buf, 1); s != "3" {
			t.Errorf("read through duplicate = %q, want %q", s, "3")
		}

		got, err = u.call(os161.SYS_close, fd)
		u.want("close", got, err, 0, errno.NOERRNO)
		got, err = u.call(os161.SYS_close, fd)
		u.want("close again", got, err, 0, errno.EBADF)
		got, err = u.call(os161.SYS_read, 10, buf, 1)
		u.want("read after closing original", got, err, 1, errno.NOERRNO)
	})
}

func TestCwd(t *testing.T) {
	run(t, func(u *user) {
		buf := uint32(u.bytes(make([]byte, 64)))
		got, err := u.call(os161.SYS___getcwd, buf, 64)
		u.want("getcwd", got, err, 6, errno.NOERRNO)
		if s := u.read(buf, int(got)); s != "emu0:/" {
			t.Errorf("cwd = %q, want %q", s, "emu0:/")
		}
		got, err = u.call(os161.SYS_chdir, u.str("dir"))
		u.want("chdir", got, err, 0, errno.NOERRNO)
		got, err = u.call(os161.SYS_chdir, u.str("/data"))
		u.want("chdir file", got, err, 0, errno.ENOTDIR)
		got, err = u.call(os161.SYS_chdir, 0)
		u.want("chdir null", got, err, 0, errno.EFAULT)

		got, err = u.call(os161.SYS___getcwd, buf, 64)
		u.want("getcwd", got, err, 9, errno.NOERRNO)
		if s := u.read(buf, int(got)); s != "emu0:/dir" {
			t.Errorf("cwd = %q, want %q", s, "emu0:/dir")
		}
		got, err = u.call(os161.SYS___getcwd, buf, 4)
		u.want("getcwd short", got, err, 4, errno.NOERRNO)
		got, err = u.call(os161.SYS___getcwd, 0, 64)
		u.want("getcwd null", got, err, 0, errno.EFAULT)

		// Relative opens resolve against the new directory.
		got, err = u.call(os161.SYS_open, u.str("f"), os161.O_WRONLY|os161.O_CREAT, 0)
		u.want("open relative", got, err, 3, errno.NOERRNO)
	})
}

func TestProcessSyscalls(t *testing.T) {
	var childPID uint32
	_, status := run(t, func(u *user) {
		if u.tf.S0 == 1 {
			// Forked child.
			got, err := u.call(os161.SYS_getppid)
			u.want("child getppid", got, err, 1, errno.NOERRNO)
			u.call(os161.SYS__exit, 9)
			t.Errorf("_exit returned")
			return
		}
		got, err := u.call(os161.SYS_getpid)
		u.want("getpid", got, err, uint32(kernel.PIDInit), errno.NOERRNO)
		got, err = u.call(os161.SYS_getppid)
		u.want("getppid", got, err, uint32(kernel.PIDInit), errno.NOERRNO)

		got, err = u.call(os161.SYS_waitpid, uint32(kernel.PIDInit), 0, 0)
		u.want("wait self", got, err, 0, errno.ECHILD)
		got, err = u.call(os161.SYS_waitpid, 77, 0, 0)
		u.want("wait unknown", got, err, 0, errno.ESRCH)

		u.tf.S0 = 1
		pid, err := u.call(os161.SYS_fork)
		u.tf.S0 = 0
		u.want("fork", pid, err, uint32(kernel.PIDMin), errno.NOERRNO)
		childPID = pid

		status := uint32(u.bytes(make([]byte, 4)))
		got, err = u.call(os161.SYS_waitpid, pid, status, 2)
		u.want("wait bad options", got, err, 0, errno.EINVAL)
		got, err = u.call(os161.SYS_waitpid, pid, status+1, 0)
		u.want("wait misaligned", got, err, 0, errno.EFAULT)
		got, err = u.call(os161.SYS_waitpid, pid, status, 0)
		u.want("wait", got, err, pid, errno.NOERRNO)
		raw, cerr := mm.CopyInUint32(u.th.AddressSpace(), hostarch.Addr(status))
		if cerr != nil || os161.WaitStatus(raw).ExitStatus() != 9 {
			t.Errorf("child status = %v, %v; want exit 9", os161.WaitStatus(raw), cerr)
		}

		got, err = u.call(os161.SYS_execv, u.str("/bin/prog"), 0)
		u.want("execv null argv", got, err, 0, errno.EFAULT)
		got, err = u.call(os161.SYS_execv, 0, 0)
		u.want("execv null path", got, err, 0, errno.EFAULT)
		got, err = u.call(1234)
		u.want("unknown", got, err, 0, errno.ENOSYS)
		u.call(os161.SYS__exit, 5)
	})
	if childPID != uint32(kernel.PIDMin) {
		t.Errorf("child pid = %d, want %d", childPID, kernel.PIDMin)
	}
	if !status.Exited() || status.ExitStatus() != 5 {
		t.Errorf("status = %v, want exit 5", status)
	}
}

func TestExecvArguments(t *testing.T) {
	var got []string
	run(t, func(u *user) {
		if u.tf.EPC == uint32(mm.TextBase) && u.tf.A0 == 3 {
			// Entered main after a successful execv.
			got = readArgv(u)
			return
		}
		arg := func(ss ...string) uint32 {
			ptrs := make([]byte, 4*(len(ss)+1))
			for i, s := range ss {
				mm.ByteOrder.PutUint32(ptrs[4*i:], u.str(s))
			}
			return uint32(u.bytes(ptrs))
		}
		r, err := u.call(os161.SYS_execv, u.str("/bin/prog"), arg("prog", strings.Repeat("x", 100)))
		u.want("execv too long", r, err, 0, errno.E2BIG)
		r, err = u.call(os161.SYS_execv, u.str("/bin/prog"), 0x10000000)
		u.want("execv unmapped argv", r, err, 0, errno.EFAULT)
		r, err = u.call(os161.SYS_execv, u.str("/nope"), arg("nope"))
		u.want("execv missing", r, err, 0, errno.ENOENT)
		u.call(os161.SYS_execv, u.str("/bin/prog"), arg("prog", "one", "two"))
		t.Errorf("execv returned: errno %d", u.tf.V0)
	}, func(ls *limits.LimitSet) {
		ls.SetUnchecked(limits.ArgumentBytes, limits.Limit{Cur: 64, Max: 64})
	})
	if diff := cmp.Diff([]string{"prog", "one", "two"}, got); diff != "" {
		t.Errorf("argv after execv mismatch (-want +got):\n%s", diff)
	}
}

func readArgv(u *user) []string {
	as := u.th.AddressSpace()
	var argv []string
	for i := uint32(0); i < u.tf.A0; i++ {
		ptr, err := mm.CopyInUint32(as, hostarch.Addr(u.tf.A1+4*i))
		if err != nil {
			u.t.Errorf("argv[%d]: %v", i, err)
			return nil
		}
		s, err := as.CopyInString(hostarch.Addr(ptr), 64)
		if err != nil {
			u.t.Errorf("argv[%d]: %v", i, err)
			return nil
		}
		argv = append(argv, s)
	}
	return argv
}
