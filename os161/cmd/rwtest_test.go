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
	"testing"

	"github.com/kippesp/os161/pkg/abi/os161"
)

func TestRWTest(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts rwTestOptions
	}{
		{
			name: "readers only",
			opts: rwTestOptions{readers: 8, iterations: 200, slots: 16, maxReaders: os161.RWLOCK_READERS},
		},
		{
			name: "writers only",
			opts: rwTestOptions{writers: 4, iterations: 200, slots: 16, maxReaders: os161.RWLOCK_READERS},
		},
		{
			name: "mixed",
			opts: rwTestOptions{readers: 16, writers: 4, iterations: 200, slots: 32, maxReaders: os161.RWLOCK_READERS},
		},
		{
			name: "narrow",
			opts: rwTestOptions{readers: 8, writers: 2, iterations: 200, slots: 8, maxReaders: 2},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			st, err := runRWTest(tc.opts)
			if err != nil {
				t.Fatalf("runRWTest(%+v): %v", tc.opts, err)
			}
			if want := uint64(tc.opts.readers * tc.opts.iterations); st.reads != want {
				t.Errorf("reads = %d, want %d", st.reads, want)
			}
			if want := uint64(tc.opts.writers * (tc.opts.iterations/10 + 1)); st.writes != want {
				t.Errorf("writes = %d, want %d", st.writes, want)
			}
			if st.maxConcurrent > int64(tc.opts.maxReaders) {
				t.Errorf("maxConcurrent = %d, exceeds limit %d", st.maxConcurrent, tc.opts.maxReaders)
			}
		})
	}
}
