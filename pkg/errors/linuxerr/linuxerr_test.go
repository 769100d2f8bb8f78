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

package linuxerr

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kippesp/os161/pkg/abi/os161/errno"
	"github.com/kippesp/os161/pkg/errors"
)

func TestEquals(t *testing.T) {
	for _, tc := range []struct {
		name string
		e    *errors.Error
		err  error
		want bool
	}{
		{name: "same", e: EBADF, err: EBADF, want: true},
		{name: "unix", e: EBADF, err: unix.EBADF, want: true},
		{name: "different", e: EBADF, err: EINVAL, want: false},
		{name: "nil", e: nil, err: nil, want: true},
		{name: "nil vs error", e: nil, err: ECHILD, want: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equals(tc.e, tc.err); got != tc.want {
				t.Errorf("Equals(%v, %v) = %v, want %v", tc.e, tc.err, got, tc.want)
			}
		})
	}
}

func TestToUnixRoundTrip(t *testing.T) {
	for _, e := range []*errors.Error{EBADF, ENOMEM, EMFILE, ESRCH, ECHILD, EFAULT, ESPIPE, E2BIG} {
		ue := ToUnix(e)
		if got := ErrorFromUnix(ue); got != e {
			t.Errorf("ErrorFromUnix(ToUnix(%v)) = %v", e, got)
		}
	}
	if err := ErrorFromUnix(0); err != nil {
		t.Errorf("ErrorFromUnix(0) = %v, want nil", err)
	}
}

func TestENPROCIsDistinct(t *testing.T) {
	if ENPROC == EAGAIN {
		t.Fatalf("ENPROC and EAGAIN are the same value")
	}
	if got := ErrnoOf(ENPROC); got != errno.EAGAIN {
		t.Errorf("ErrnoOf(ENPROC) = %d, want %d", got, errno.EAGAIN)
	}
}
