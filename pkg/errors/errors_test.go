// Copyright 2021 The gVisor Authors.
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

package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kippesp/os161/pkg/abi/os161/errno"
)

func TestIsHostErrno(t *testing.T) {
	eagain := New(errno.EAGAIN, "try again")
	enproc := New(errno.ENPROC, "too many processes in system")
	wrapped := fmt.Errorf("fork: %w", enproc)

	for _, tc := range []struct {
		err    error
		target error
		want   bool
	}{
		{eagain, unix.EAGAIN, true},
		{wrapped, unix.EAGAIN, true},
		{wrapped, enproc, true},
		{wrapped, eagain, false},
		{wrapped, unix.ENOENT, false},
		{eagain, goerrors.New("try again"), false},
	} {
		if got := goerrors.Is(tc.err, tc.target); got != tc.want {
			t.Errorf("errors.Is(%v, %v) = %t, want %t", tc.err, tc.target, got, tc.want)
		}
	}
}

func TestNilIs(t *testing.T) {
	var e *Error
	if e.Is(unix.EPERM) {
		t.Errorf("nil *Error matched EPERM")
	}
}
