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

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/expfmt"

	"github.com/kippesp/os161/os161/config"
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/metric"
	"github.com/kippesp/os161/pkg/refs"
	"github.com/kippesp/os161/pkg/sentry/platform"
	sys "github.com/kippesp/os161/pkg/sentry/syscalls/os161"
	"github.com/kippesp/os161/pkg/test/testutil"
)

func TestTestbin(t *testing.T) {
	for _, tc := range []struct {
		program    string
		args       []string
		want       string
		wantStatus int32
	}{
		{
			program: "args",
			args:    []string{"a", "b"},
			want:    "3 arguments provided\nargv: /testbin/args a b\n",
		},
		{
			program: "echo",
			args:    []string{"hello", "world"},
			want:    "hello world\n",
		},
		{
			program: "onefork",
			want: "CPID(2): Hello from the forked child process!\n" +
				"pid(1): My child, pid=2, has died with status 4!\n" +
				"CPID(1): Hello from the parent process!\n" +
				"*** Exit fallthrough ***\n",
		},
		{
			program: "simplefork",
			want: "CPID(2): Hello from the first forked child process!\n" +
				"pid_1(1): My first child, pid_1=2, has died with status 4!\n" +
				"CPID(1): Hello from the parent process!\n" +
				"CPID(1): Forking second child\n" +
				"CPID(2): Hello from the second forked child process!\n" +
				"pid_2(1): My second child, pid_2=2, has died with status 8!\n" +
				"CPID(1): Hello from the parent process!\n" +
				"*** Exit fallthrough ***\n",
		},
		{
			program: "execv",
			args:    []string{"x", "y"},
			want:    "Calling argv with 3 args....\n3 arguments provided\nargv: /testbin/execv x y\n",
		},
		{
			program: "asst2final",
			want:    "Hello World, I'm the child\nChild returned with 0 to parent\n",
		},
		{
			program: "lseekargs",
			want:    "ret = 3\n3456\nret = 9\nlseek: invalid argument\nerrno = 22\n",
		},
		{
			program: "cwd",
			want:    "emu0:/\nemu0:/testbin\nemu0:/\nchdir: no such file or directory\nemu0:/\n",
		},
		{
			program: "orphan",
			want:    "parent 1 exiting without waiting\n",
		},
	} {
		t.Run(tc.program, func(t *testing.T) {
			var out bytes.Buffer
			res, err := bootProgram(config.NewDefault(), bootOptions{
				program: filepath.Join(TestbinDir, tc.program),
				args:    tc.args,
				stdout:  &out,
			})
			if err != nil {
				t.Fatalf("bootProgram: %v", err)
			}
			if diff := cmp.Diff(tc.want, out.String()); diff != "" {
				t.Errorf("console output mismatch (-want +got):\n%s", diff)
			}
			if got := res.status.ExitStatus(); got != tc.wantStatus {
				t.Errorf("exit status = %d, want %d", got, tc.wantStatus)
			}
			if res.pid != 1 {
				t.Errorf("pid = %d, want 1", res.pid)
			}
		})
	}
}

func TestTestbinFiles(t *testing.T) {
	for _, tc := range []struct {
		program string
		file    string
		want    string
	}{
		{
			program: "dup2",
			file:    "/dup2_logfile",
			want:    "dup2 return: 1\nHello.  dup2 wrote this (to the file).\n",
		},
		{
			program: "simpleopen",
			file:    "/file_simpleopen",
		},
	} {
		t.Run(tc.program, func(t *testing.T) {
			var out bytes.Buffer
			res, err := bootProgram(config.NewDefault(), bootOptions{
				program: filepath.Join(TestbinDir, tc.program),
				stdout:  &out,
			})
			if err != nil {
				t.Fatalf("bootProgram: %v", err)
			}
			if got := res.status.ExitStatus(); got != 0 {
				t.Errorf("exit status = %d, want 0; console:\n%s", got, out.String())
			}
			if out.Len() != 0 {
				t.Errorf("console output = %q, want none", out.String())
			}
			data, err := res.fs.ReadFile(tc.file)
			if err != nil {
				t.Fatalf("ReadFile(%q): %v", tc.file, err)
			}
			if got := string(data); got != tc.want {
				t.Errorf("%s = %q, want %q", tc.file, got, tc.want)
			}
		})
	}
}

func TestBootSmallTables(t *testing.T) {
	conf := testutil.TestConfig(t)
	var out bytes.Buffer
	res, err := bootProgram(conf, bootOptions{
		program: "/testbin/simplefork",
		stdout:  &out,
	})
	if err != nil {
		t.Fatalf("bootProgram: %v", err)
	}
	if got := res.status.ExitStatus(); got != 0 {
		t.Errorf("exit status = %d, want 0", got)
	}
	if got := strings.Count(out.String(), "has died with status"); got != 2 {
		t.Errorf("saw %d reaped children, want 2:\n%s", got, out.String())
	}
}

func TestBootReleasesDescriptions(t *testing.T) {
	refs.SetLeakMode(refs.LeaksLogWarning)
	defer refs.SetLeakMode(refs.NoLeakChecking)

	for _, prog := range []string{"dup2", "asst2final", "lseekargs"} {
		var out bytes.Buffer
		if _, err := bootProgram(config.NewDefault(), bootOptions{
			program: filepath.Join(TestbinDir, prog),
			stdout:  &out,
		}); err != nil {
			t.Fatalf("bootProgram(%q): %v", prog, err)
		}
		if err := refs.CheckLeaks(); err != nil {
			t.Errorf("after %s: %v", prog, err)
		}
	}
}

func TestTestbinListing(t *testing.T) {
	names := Testbin()
	for _, want := range []string{"args", "dup2", "onefork", "orphan"} {
		found := false
		for _, name := range names {
			found = found || name == want
		}
		if !found {
			t.Errorf("Testbin() = %v, missing %q", names, want)
		}
	}
}

func TestBootRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	prog := "getpid\nprint hello from $s3\nexit 3\n"
	if err := os.WriteFile(filepath.Join(root, "bin", "hello"), []byte(prog), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	res, err := bootProgram(config.NewDefault(), bootOptions{
		root:    root,
		program: "/bin/hello",
		stdout:  &out,
	})
	if err != nil {
		t.Fatalf("bootProgram: %v", err)
	}
	if got, want := out.String(), "hello from 1\n"; got != want {
		t.Errorf("console output = %q, want %q", got, want)
	}
	if got := res.status.ExitStatus(); got != 3 {
		t.Errorf("exit status = %d, want 3", got)
	}
}

func TestBootErrors(t *testing.T) {
	_, err := bootProgram(config.NewDefault(), bootOptions{program: "/testbin/missing"})
	if err == nil {
		t.Fatalf("booting a missing program succeeded")
	}
	if msg := bootError("/testbin/missing", err).Error(); !strings.Contains(msg, "onefork") {
		t.Errorf("missing program error %q does not list the built-in programs", msg)
	}
	if msg := bootError("/bin/x", linuxerr.EINVAL).Error(); strings.Contains(msg, "built-in") {
		t.Errorf("error %q lists built-in programs for EINVAL", msg)
	}

	conf := config.NewDefault()
	conf.Platform = "nonexistent"
	if _, err := bootProgram(conf, bootOptions{program: "/testbin/args"}); err == nil {
		t.Errorf("booting on an unknown platform succeeded")
	}

	if _, err := bootProgram(config.NewDefault(), bootOptions{
		root:    filepath.Join(t.TempDir(), "missing"),
		program: "/testbin/args",
	}); err == nil {
		t.Errorf("importing a missing root succeeded")
	}
}

func TestMetricExport(t *testing.T) {
	var out bytes.Buffer
	if _, err := bootProgram(config.NewDefault(), bootOptions{
		program: "/testbin/onefork",
		stdout:  &out,
	}); err != nil {
		t.Fatalf("bootProgram: %v", err)
	}

	var buf bytes.Buffer
	if err := metric.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("exposition does not parse: %v", err)
	}
	for _, name := range []string{
		metric.PrometheusName("/kernel/forks"),
		metric.PrometheusName("/kernel/exits"),
		metric.PrometheusName("/kernel/reaps"),
	} {
		mf, ok := families[name]
		if !ok {
			t.Errorf("metric %s not exported", name)
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
		if total == 0 {
			t.Errorf("metric %s = 0 after a fork, want > 0", name)
		}
	}
}

func TestListings(t *testing.T) {
	if got := platform.List(); !cmp.Equal(got, []string{"interp"}) {
		t.Errorf("platform.List() = %v, want [interp]", got)
	}

	var buf bytes.Buffer
	if err := outputTable(&buf, sys.MIPS); err != nil {
		t.Fatalf("outputTable: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if got, want := len(lines), len(sys.MIPS.Table)+1; got != want {
		t.Fatalf("outputTable wrote %d lines, want %d:\n%s", got, want, buf.String())
	}
	if !strings.HasPrefix(lines[0], "NUM") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(buf.String(), "lseek") || !strings.Contains(buf.String(), "64-bit") {
		t.Errorf("table lacks lseek's 64-bit result:\n%s", buf.String())
	}
}
