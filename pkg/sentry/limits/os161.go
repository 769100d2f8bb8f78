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

package limits

import (
	"github.com/kippesp/os161/pkg/abi/os161"
)

// NewOS161LimitSet returns a LimitSet holding the kernel's compiled-in
// defaults.
func NewOS161LimitSet() *LimitSet {
	ls := NewLimitSet()
	for lt, v := range map[LimitType]uint64{
		NumberOfFiles: os161.OPEN_MAX,
		ProcessCount:  os161.PROCESSES_MAX,
		RWLockReaders: os161.RWLOCK_READERS,
		ArgumentBytes: os161.ARG_MAX,
		PathLength:    os161.PATH_MAX,
	} {
		ls.SetUnchecked(lt, Limit{Cur: v, Max: v})
	}
	return ls
}
