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

package testutil

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestPoll(t *testing.T) {
	calls := 0
	err := Poll(func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if calls != 3 {
		t.Errorf("callback ran %d times, want 3", calls)
	}
}

func TestPollTimeout(t *testing.T) {
	want := errors.New("never")
	if err := Poll(func() error { return want }, 30*time.Millisecond); err == nil {
		t.Fatalf("Poll succeeded with a failing callback")
	}
}

func TestWriteTmpFile(t *testing.T) {
	name, cleanup, err := WriteTmpFile("testutil-*", "hello")
	if err != nil {
		t.Fatalf("WriteTmpFile: %v", err)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "hello" {
		t.Errorf("contents = %q, want %q", b, "hello")
	}
	cleanup()
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("file still present after cleanup: %v", err)
	}
}

func TestExpectPanic(t *testing.T) {
	if err := ExpectPanic("boom", func() { panic("boom!") }); err != nil {
		t.Errorf("ExpectPanic: %v", err)
	}
	if err := ExpectPanic("boom", func() {}); err == nil {
		t.Errorf("ExpectPanic accepted a function that returned")
	}
	if err := ExpectPanic("boom", func() { panic("bang") }); err == nil {
		t.Errorf("ExpectPanic accepted the wrong message")
	}
}
