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

// Package interp implements a platform that runs line-oriented program text.
//
// A program image is plain text, one instruction per line. Blank lines and
// lines starting with '#' are ignored, and a line of the form "name:" labels
// the instruction that follows. The i'th instruction lives at address
// mm.TextBase + 4*i, so the saved program counter of a trap frame selects the
// instruction to resume at, just as it would on the hardware.
//
// Instructions issue syscalls through the kernel's trap path and keep their
// results in callee-saved registers:
//
//	S0  result of fork (0 in the child)
//	S1  raw status stored by wait
//	S2  descriptor returned by open
//	S3  result of getpid, getppid, dup2, read, write and lseek (low word)
//	S4  lseek result (high word)
//	S5  argv, S6  argc, as passed to main
//	S7  errno of the last syscall, or 0
//
// Text arguments may reference $s0-$s4, $status (the exit status decoded
// from S1), $errno, $off (the 64-bit lseek result), $argc, $argv (the
// program arguments joined by spaces) and $args (the same without argv[0]). A failed syscall prints "op: reason"
// to standard error and execution continues.
package interp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/hostarch"
	"github.com/kippesp/os161/pkg/sentry/arch"
	"github.com/kippesp/os161/pkg/sentry/kernel"
	"github.com/kippesp/os161/pkg/sentry/mm"
	"github.com/kippesp/os161/pkg/sentry/platform"
)

// Name is the name the platform is registered under.
const Name = "interp"

const (
	// scratchSize is the stack space below SP used to pass strings and
	// buffers to syscalls.
	scratchSize = 4096

	// maxIO bounds the byte count of read instructions.
	maxIO = 2048

	// exitIllegal is the exit status of a program that executes an invalid
	// instruction or faults.
	exitIllegal = 255
)

// Interp is the interpreter platform.
type Interp struct{}

var _ platform.Platform = (*Interp)(nil)

// New returns a new interpreter platform.
func New() (*Interp, error) {
	return &Interp{}, nil
}

// Name implements platform.Platform.Name.
func (*Interp) Name() string {
	return Name
}

// Enter implements kernel.UserMode.Enter. It runs t's program from tf until
// the program exits, execs or runs off its end.
func (*Interp) Enter(t *kernel.Thread, tf *arch.TrapFrame) {
	m := &machine{t: t, tf: tf, scratch: hostarch.Addr(tf.SP - scratchSize)}
	prog, err := Parse(readImage(t.AddressSpace()))
	if err != nil {
		m.die(err.Error())
	}
	m.prog = prog
	if tf.EPC == uint32(mm.TextBase) {
		tf.S6 = tf.A0
		tf.S5 = tf.A1
	}
	m.run()
}

// readImage returns the program text mapped at mm.TextBase, up to the first
// NUL or unmapped page.
func readImage(as mm.AddressSpace) []byte {
	var img []byte
	page := make([]byte, hostarch.PageSize)
	for addr := mm.TextBase; addr < hostarch.UserSpaceEnd; addr += hostarch.PageSize {
		if err := as.CopyIn(addr, page); err != nil {
			break
		}
		if i := bytes.IndexByte(page, 0); i >= 0 {
			return append(img, page[:i]...)
		}
		img = append(img, page...)
	}
	return img
}

// instruction is one parsed program line.
type instruction struct {
	line int
	op   string
	args []string

	// text is everything after the opcode, untokenized.
	text string

	// target is the instruction index of a branch.
	target int
}

// Program is a parsed program image.
type Program struct {
	insns  []instruction
	labels map[string]int
}

// Len returns the number of instructions in p.
func (p *Program) Len() int {
	return len(p.insns)
}

// Label returns the address of the instruction labeled name.
func (p *Program) Label(name string) (hostarch.Addr, bool) {
	i, ok := p.labels[name]
	if !ok {
		return 0, false
	}
	return mm.TextBase + hostarch.Addr(i*arch.InstructionSize), true
}

// Parse parses program text.
func Parse(src []byte) (*Program, error) {
	p := &Program{labels: make(map[string]int)}
	for n, line := range strings.Split(string(src), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		op, text, _ := strings.Cut(line, " ")
		if strings.HasSuffix(op, ":") {
			label := strings.TrimSuffix(op, ":")
			if _, ok := p.labels[label]; ok {
				return nil, fmt.Errorf("line %d: duplicate label %q", n+1, label)
			}
			p.labels[label] = len(p.insns)
			if text = strings.TrimSpace(text); text == "" {
				continue
			}
			op, text, _ = strings.Cut(text, " ")
		}
		text = strings.TrimSpace(text)
		insn := instruction{line: n + 1, op: op, args: strings.Fields(text), text: text}
		spec, ok := opcodes[op]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown instruction %q", insn.line, op)
		}
		if len(insn.args) < spec.minArgs || (spec.maxArgs >= 0 && len(insn.args) > spec.maxArgs) {
			return nil, fmt.Errorf("line %d: wrong number of operands to %s", insn.line, op)
		}
		p.insns = append(p.insns, insn)
		if op == "fork" {
			// The child resumes after the trapping instruction, so the
			// result is moved into S0 by an instruction of its own.
			p.insns = append(p.insns, instruction{line: n + 1, op: "forkret"})
		}
	}
	for i := range p.insns {
		insn := &p.insns[i]
		if !opcodes[insn.op].branch {
			continue
		}
		target, ok := p.labels[insn.args[0]]
		if !ok {
			return nil, fmt.Errorf("line %d: undefined label %q", insn.line, insn.args[0])
		}
		insn.target = target
	}
	return p, nil
}

// opcode describes an instruction.
type opcode struct {
	minArgs int
	maxArgs int // -1 for no limit
	branch  bool
	exec    func(m *machine, insn *instruction)
}

var opcodes map[string]opcode

func init() {
	opcodes = map[string]opcode{
		"print":   {maxArgs: -1, exec: (*machine).print},
		"eprint":  {maxArgs: -1, exec: (*machine).eprint},
		"fork":    {exec: (*machine).fork},
		"forkret": {exec: (*machine).forkret},
		"wait":    {maxArgs: 2, exec: (*machine).wait},
		"exit":    {maxArgs: 1, exec: (*machine).exit},
		"exec":    {minArgs: 1, maxArgs: -1, exec: (*machine).exec},
		"open":    {minArgs: 1, maxArgs: 2, exec: (*machine).open},
		"close":   {maxArgs: 1, exec: (*machine).close},
		"read":    {minArgs: 1, maxArgs: 1, exec: (*machine).read},
		"write":   {maxArgs: -1, exec: (*machine).write},
		"lseek":   {minArgs: 2, maxArgs: 2, exec: (*machine).lseek},
		"dup2":    {minArgs: 2, maxArgs: 2, exec: (*machine).dup2},
		"chdir":   {minArgs: 1, maxArgs: 1, exec: (*machine).chdir},
		"getcwd":  {exec: (*machine).getcwd},
		"getpid":  {exec: (*machine).getpid},
		"getppid": {exec: (*machine).getppid},
		"syscall": {minArgs: 1, maxArgs: 5, exec: (*machine).rawSyscall},
		"jump":    {minArgs: 1, maxArgs: 1, branch: true},
		"bchild":  {minArgs: 1, maxArgs: 1, branch: true},
		"bfail":   {minArgs: 1, maxArgs: 1, branch: true},
	}
}

// machine executes a program on behalf of a thread.
type machine struct {
	t    *kernel.Thread
	tf   *arch.TrapFrame
	prog *Program

	// scratch is the next free scratch address for the current
	// instruction.
	scratch hostarch.Addr

	// dying is set once die has been entered.
	dying bool
}

func (m *machine) run() {
	for {
		off := m.tf.EPC - uint32(mm.TextBase)
		if m.tf.EPC < uint32(mm.TextBase) || off%arch.InstructionSize != 0 {
			m.die(fmt.Sprintf("bad program counter %#x", m.tf.EPC))
		}
		pc := int(off / arch.InstructionSize)
		if pc >= len(m.prog.insns) {
			return
		}
		insn := &m.prog.insns[pc]
		m.scratch = hostarch.Addr(m.tf.SP - scratchSize)
		switch insn.op {
		case "jump":
			m.branch(insn, true)
		case "bchild":
			m.branch(insn, int32(m.tf.S0) == 0)
		case "bfail":
			m.branch(insn, m.tf.S7 != 0)
		default:
			opcodes[insn.op].exec(m, insn)
			m.tf.EPC = uint32(mm.TextBase) + uint32(pc+1)*arch.InstructionSize
		}
	}
}

func (m *machine) branch(insn *instruction, taken bool) {
	if taken {
		m.tf.EPC = uint32(mm.TextBase) + uint32(insn.target)*arch.InstructionSize
		return
	}
	m.tf.EPC += arch.InstructionSize
}

// syscall traps into the kernel. It reports whether the call succeeded and
// records the errno in S7.
func (m *machine) syscall(sysno uint32, args ...uint32) (uint32, bool) {
	var a [4]uint32
	copy(a[:], args)
	m.tf.V0 = sysno
	m.tf.A0, m.tf.A1, m.tf.A2, m.tf.A3 = a[0], a[1], a[2], a[3]
	m.t.Syscall(m.tf)
	if m.tf.A3 != 0 {
		m.tf.S7 = m.tf.V0
		return m.tf.V0, false
	}
	m.tf.S7 = 0
	return m.tf.V0, true
}

// check reports a failed syscall on standard error. It returns ok.
func (m *machine) check(op string, ok bool) bool {
	if ok {
		return true
	}
	errno := m.tf.S7
	m.writeString(os161.STDERR_FILENO, fmt.Sprintf("%s: %s\n", op, unix.Errno(errno).Error()))
	m.tf.S7 = errno
	return false
}

// die reports a fatal condition and exits the program. It does not return.
func (m *machine) die(msg string) {
	m.t.Debugf("interp: %s", msg)
	if !m.dying {
		m.dying = true
		m.scratch = hostarch.Addr(m.tf.SP - scratchSize)
		m.writeString(os161.STDERR_FILENO, fmt.Sprintf("%s: %s\n", m.t.Name(), msg))
	}
	m.syscall(os161.SYS__exit, exitIllegal)
	panic("unreachable")
}

// alloc reserves n bytes of scratch space, 4-byte aligned.
func (m *machine) alloc(n int) hostarch.Addr {
	addr := m.scratch
	if uint32(m.scratch)+hostarch.AlignUp(uint32(n), 4) > m.tf.SP-64 {
		m.die("scratch space exhausted")
	}
	m.scratch += hostarch.Addr(hostarch.AlignUp(uint32(n), 4))
	return addr
}

// store copies b to user memory and returns its address.
func (m *machine) store(b []byte) hostarch.Addr {
	addr := m.alloc(len(b))
	if err := m.t.AddressSpace().CopyOut(addr, b); err != nil {
		m.die(fmt.Sprintf("fault at %#x: %v", addr, err))
	}
	return addr
}

// storeString copies s, NUL-terminated, to user memory.
func (m *machine) storeString(s string) hostarch.Addr {
	return m.store(append([]byte(s), 0))
}

// writeString writes s to fd in chunks that fit the scratch area.
func (m *machine) writeString(fd int32, s string) (uint32, bool) {
	var total uint32
	save := m.scratch
	defer func() { m.scratch = save }()
	for len(s) > 0 {
		n := len(s)
		if n > maxIO {
			n = maxIO
		}
		m.scratch = save
		addr := m.store([]byte(s[:n]))
		w, ok := m.syscall(os161.SYS_write, uint32(fd), uint32(addr), uint32(n))
		if !ok {
			return w, false
		}
		total += w
		s = s[n:]
	}
	return total, true
}

// value evaluates a numeric operand.
func (m *machine) value(arg string) uint32 {
	if strings.HasPrefix(arg, "$") {
		v, ok := m.register(arg[1:])
		if !ok {
			m.die(fmt.Sprintf("unknown register %q", arg))
		}
		n, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			m.die(fmt.Sprintf("%s is not a number", arg))
		}
		return uint32(n)
	}
	n, err := strconv.ParseInt(arg, 0, 64)
	if err != nil {
		m.die(fmt.Sprintf("bad operand %q", arg))
	}
	return uint32(n)
}

// register returns the text of a $ reference.
func (m *machine) register(name string) (string, bool) {
	tf := m.tf
	switch name {
	case "s0":
		return strconv.Itoa(int(int32(tf.S0))), true
	case "s1":
		return strconv.Itoa(int(int32(tf.S1))), true
	case "s2":
		return strconv.Itoa(int(int32(tf.S2))), true
	case "s3":
		return strconv.Itoa(int(int32(tf.S3))), true
	case "s4":
		return strconv.Itoa(int(int32(tf.S4))), true
	case "status":
		return strconv.Itoa(int(os161.WaitStatus(tf.S1).ExitStatus())), true
	case "errno":
		return strconv.Itoa(int(tf.S7)), true
	case "off":
		return strconv.FormatInt(int64(uint64(tf.S4)<<32|uint64(tf.S3)), 10), true
	case "argc":
		return strconv.Itoa(int(tf.S6)), true
	case "argv":
		return strings.Join(m.argv(), " "), true
	case "args":
		if argv := m.argv(); len(argv) > 1 {
			return strings.Join(argv[1:], " "), true
		}
		return "", true
	}
	return "", false
}

// argv reads the arguments main was called with.
func (m *machine) argv() []string {
	as := m.t.AddressSpace()
	args := make([]string, 0, m.tf.S6)
	for i := uint32(0); i < m.tf.S6; i++ {
		ptr, err := mm.CopyInUint32(as, hostarch.Addr(m.tf.S5+4*i))
		if err != nil {
			m.die(fmt.Sprintf("fault reading argv[%d]: %v", i, err))
		}
		s, err := as.CopyInString(hostarch.Addr(ptr), m.t.Kernel().MaxArgBytes())
		if err != nil {
			m.die(fmt.Sprintf("fault reading argv[%d]: %v", i, err))
		}
		args = append(args, s)
	}
	return args
}

// expand substitutes $ references in text.
func (m *machine) expand(text string) string {
	var b strings.Builder
	for {
		i := strings.IndexByte(text, '$')
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:i])
		j := i + 1
		for j < len(text) && isNameByte(text[j]) {
			j++
		}
		if v, ok := m.register(text[i+1 : j]); ok {
			b.WriteString(v)
		} else {
			b.WriteString(text[i:j])
		}
		text = text[j:]
	}
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

func (m *machine) print(insn *instruction) {
	m.check("write", second(m.writeString(os161.STDOUT_FILENO, m.expand(insn.text)+"\n")))
}

func (m *machine) eprint(insn *instruction) {
	m.check("write", second(m.writeString(os161.STDERR_FILENO, m.expand(insn.text)+"\n")))
}

func second(_ uint32, ok bool) bool {
	return ok
}

func (m *machine) fork(*instruction) {
	m.syscall(os161.SYS_fork)
}

func (m *machine) forkret(*instruction) {
	if m.tf.A3 != 0 {
		m.tf.S0 = ^uint32(0)
		m.check("fork", false)
		return
	}
	m.tf.S0 = m.tf.V0
}

func (m *machine) wait(insn *instruction) {
	pid := m.tf.S0
	var options uint32
	for _, arg := range insn.args {
		if arg == "nohang" {
			options |= os161.WNOHANG
			continue
		}
		pid = m.value(arg)
	}
	status := m.alloc(4)
	got, ok := m.syscall(os161.SYS_waitpid, pid, uint32(status), options)
	if !m.check("waitpid", ok) {
		return
	}
	m.tf.S3 = got
	if got == 0 {
		return
	}
	raw, err := mm.CopyInUint32(m.t.AddressSpace(), status)
	if err != nil {
		m.die(fmt.Sprintf("fault reading status: %v", err))
	}
	m.tf.S1 = raw
}

func (m *machine) exit(insn *instruction) {
	var code uint32
	if len(insn.args) > 0 {
		code = m.value(insn.args[0])
	}
	m.syscall(os161.SYS__exit, code)
	panic("unreachable")
}

// exec runs "exec PATH [ARG...]". The new program receives PATH and the
// operands as its arguments, or its caller's own arguments if the only
// operand is $argv.
func (m *machine) exec(insn *instruction) {
	path := m.expand(insn.args[0])
	args := []string{path}
	if len(insn.args) == 2 && insn.args[1] == "$argv" {
		args = m.argv()
	} else {
		for _, arg := range insn.args[1:] {
			args = append(args, m.expand(arg))
		}
	}
	pathAddr := m.storeString(path)
	ptrs := make([]byte, 4*(len(args)+1))
	for i, arg := range args {
		mm.ByteOrder.PutUint32(ptrs[4*i:], uint32(m.storeString(arg)))
	}
	argv := m.store(ptrs)
	_, ok := m.syscall(os161.SYS_execv, uint32(pathAddr), uint32(argv))
	m.check("execv", ok)
}

// openFlags maps the names accepted by open to flag bits.
var openFlags = map[string]uint32{
	"rdonly": os161.O_RDONLY,
	"wronly": os161.O_WRONLY,
	"rdwr":   os161.O_RDWR,
	"creat":  os161.O_CREAT,
	"excl":   os161.O_EXCL,
	"trunc":  os161.O_TRUNC,
	"append": os161.O_APPEND,
	"noctty": os161.O_NOCTTY,
}

func (m *machine) open(insn *instruction) {
	flags := uint32(os161.O_RDONLY)
	if len(insn.args) > 1 {
		flags = 0
		for _, f := range strings.Split(insn.args[1], "|") {
			if v, ok := openFlags[f]; ok {
				flags |= v
				continue
			}
			flags |= m.value(f)
		}
	}
	path := m.storeString(m.expand(insn.args[0]))
	fd, ok := m.syscall(os161.SYS_open, uint32(path), flags, 0o664)
	if m.check("open", ok) {
		m.tf.S2 = fd
	}
}

func (m *machine) close(insn *instruction) {
	fd := m.tf.S2
	if len(insn.args) > 0 {
		fd = m.value(insn.args[0])
	}
	_, ok := m.syscall(os161.SYS_close, fd)
	m.check("close", ok)
}

func (m *machine) read(insn *instruction) {
	n := m.value(insn.args[0])
	if n > maxIO {
		n = maxIO
	}
	buf := m.alloc(int(n))
	got, ok := m.syscall(os161.SYS_read, m.tf.S2, uint32(buf), n)
	if !m.check("read", ok) {
		return
	}
	m.tf.S3 = got
	if got == 0 {
		return
	}
	data := make([]byte, got)
	if err := m.t.AddressSpace().CopyIn(buf, data); err != nil {
		m.die(fmt.Sprintf("fault at %#x: %v", buf, err))
	}
	m.scratch = buf
	m.check("write", second(m.writeString(os161.STDOUT_FILENO, string(data))))
	m.tf.S3 = got
}

func (m *machine) write(insn *instruction) {
	got, ok := m.writeString(int32(m.tf.S2), m.expand(insn.text))
	if m.check("write", ok) {
		m.tf.S3 = got
	}
}

var whences = map[string]uint32{
	"set": os161.SEEK_SET,
	"cur": os161.SEEK_CUR,
	"end": os161.SEEK_END,
}

func (m *machine) lseek(insn *instruction) {
	off := int64(int32(m.value(insn.args[0])))
	whence, ok := whences[insn.args[1]]
	if !ok {
		whence = m.value(insn.args[1])
	}
	// The 64-bit offset takes the aligned A2:A3 pair, so whence is passed
	// on the stack.
	m.tf.SP -= 32
	defer func() { m.tf.SP += 32 }()
	if err := mm.CopyOutUint32(m.t.AddressSpace(), m.tf.StackArg(0), whence); err != nil {
		m.die(fmt.Sprintf("fault at %#x: %v", m.tf.StackArg(0), err))
	}
	_, ok = m.syscall(os161.SYS_lseek, m.tf.S2, 0, uint32(uint64(off)>>32), uint32(off))
	if m.check("lseek", ok) {
		m.tf.S4, m.tf.S3 = m.tf.V0, m.tf.V1
	}
}

func (m *machine) dup2(insn *instruction) {
	got, ok := m.syscall(os161.SYS_dup2, m.value(insn.args[0]), m.value(insn.args[1]))
	if m.check("dup2", ok) {
		m.tf.S3 = got
	}
}

func (m *machine) chdir(insn *instruction) {
	path := m.storeString(m.expand(insn.args[0]))
	_, ok := m.syscall(os161.SYS_chdir, uint32(path))
	m.check("chdir", ok)
}

func (m *machine) getcwd(*instruction) {
	buf := m.alloc(os161.PATH_MAX)
	n, ok := m.syscall(os161.SYS___getcwd, uint32(buf), os161.PATH_MAX)
	if !m.check("__getcwd", ok) {
		return
	}
	data := make([]byte, n)
	if err := m.t.AddressSpace().CopyIn(buf, data); err != nil {
		m.die(fmt.Sprintf("fault at %#x: %v", buf, err))
	}
	m.scratch = buf
	m.check("write", second(m.writeString(os161.STDOUT_FILENO, string(data)+"\n")))
}

func (m *machine) getpid(*instruction) {
	pid, _ := m.syscall(os161.SYS_getpid)
	m.tf.S3 = pid
}

func (m *machine) getppid(*instruction) {
	pid, _ := m.syscall(os161.SYS_getppid)
	m.tf.S3 = pid
}

// rawSyscall issues syscall number args[0] with the remaining operands as
// register arguments.
func (m *machine) rawSyscall(insn *instruction) {
	regs := make([]uint32, 0, 4)
	for _, arg := range insn.args[1:] {
		regs = append(regs, m.value(arg))
	}
	got, ok := m.syscall(m.value(insn.args[0]), regs...)
	if m.check("syscall", ok) {
		m.tf.S3 = got
	}
}

type constructor struct{}

// New implements platform.Constructor.New.
func (constructor) New() (platform.Platform, error) {
	return New()
}

func init() {
	platform.Register(Name, constructor{})
}
