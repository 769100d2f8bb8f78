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

package config_test

import (
	"flag"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kippesp/os161/os161/config"
	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/refs"
	"github.com/kippesp/os161/pkg/sentry/limits"
	"github.com/kippesp/os161/pkg/test/testutil"
)

func parse(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("Parse(%q): %v", args, err)
	}
	return flagSet
}

func TestDefault(t *testing.T) {
	c := config.NewDefault()
	want := &config.Config{
		LogFormat:     "text",
		Platform:      "interp",
		MaxProcesses:  os161.PROCESSES_MAX,
		OpenMax:       os161.OPEN_MAX,
		RWLockReaders: os161.RWLOCK_READERS,
		ArgMax:        os161.ARG_MAX,
		RefLeakMode:   refs.NoLeakChecking,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("NewDefault() mismatch (-want +got):\n%s", diff)
	}
	if flags := c.ToFlags(); len(flags) != 0 {
		t.Errorf("ToFlags() = %q, want none for defaults", flags)
	}
}

func TestFromFlags(t *testing.T) {
	args := []string{"--debug=true", "--max-processes=8", "--ref-leak-mode=panic"}
	c, err := config.NewFromFlags(parse(t, args...))
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if !c.Debug || c.MaxProcesses != 8 || c.RefLeakMode != refs.LeaksPanic {
		t.Errorf("NewFromFlags(%q) = %+v", args, c)
	}
	if diff := cmp.Diff(args, c.ToFlags()); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	for _, args := range [][]string{
		{"--log-format=xml"},
		{"--max-processes=2"},
		{"--open-max=3"},
		{"--rwlock-readers=0"},
		{"--arg-max=0"},
	} {
		if _, err := config.NewFromFlags(parse(t, args...)); err == nil {
			t.Errorf("NewFromFlags(%q) succeeded", args)
		}
	}
}

func TestLimits(t *testing.T) {
	c := config.NewDefault()
	c.MaxProcesses = 9
	c.OpenMax = 7
	c.RWLockReaders = 3
	c.ArgMax = 512
	ls := c.Limits()
	for lt, want := range map[limits.LimitType]uint64{
		limits.ProcessCount:  9,
		limits.NumberOfFiles: 7,
		limits.RWLockReaders: 3,
		limits.ArgumentBytes: 512,
	} {
		if got := ls.Get(lt).Cur; got != want {
			t.Errorf("limit %v = %d, want %d", lt, got, want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path, cleanup, err := testutil.WriteTmpFile("config-*.toml", `
debug = true
max-processes = 32
rwlock-readers = 2
ref-leak-mode = "warning"
`)
	if err != nil {
		t.Fatalf("WriteTmpFile: %v", err)
	}
	defer cleanup()

	// Flags given on the command line win over the file.
	flagSet := parse(t, "--max-processes=16")
	if err := config.LoadFile(path, flagSet); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	c, err := config.NewFromFlags(flagSet)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if !c.Debug || c.MaxProcesses != 16 || c.RWLockReaders != 2 || c.RefLeakMode != refs.LeaksLogWarning {
		t.Errorf("config after LoadFile = %+v", c)
	}
}

func TestLoadFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		text string
		want string
	}{
		{"unknown flag", "color = true\n", `unknown flag "color"`},
		{"bad value", "open-max = \"lots\"\n", `flag "open-max"`},
		{"syntax", "open-max = \n", "reading config file"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path, cleanup, err := testutil.WriteTmpFile("config-*.toml", tc.text)
			if err != nil {
				t.Fatalf("WriteTmpFile: %v", err)
			}
			defer cleanup()
			err = config.LoadFile(path, parse(t))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("LoadFile() = %v, want error containing %q", err, tc.want)
			}
		})
	}
	if err := config.LoadFile("/nonexistent/config.toml", parse(t)); err == nil {
		t.Errorf("LoadFile of a missing file succeeded")
	}
}

func TestToTOML(t *testing.T) {
	c := config.NewDefault()
	c.RefLeakMode = refs.LeaksPanic
	m := c.ToTOML()
	if got := m["ref-leak-mode"]; got != "panic" {
		t.Errorf("ref-leak-mode = %v, want panic", got)
	}
	if got := m["open-max"]; got != os161.OPEN_MAX {
		t.Errorf("open-max = %v, want %d", got, os161.OPEN_MAX)
	}
	if len(m) != 9 {
		t.Errorf("ToTOML() has %d keys, want 9", len(m))
	}
}
