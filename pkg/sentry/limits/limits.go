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

// Package limits provides resource limits.
package limits

import (
	"github.com/kippesp/os161/pkg/errors/linuxerr"
	"github.com/kippesp/os161/pkg/sync"
)

// LimitType defines a type of resource limit.
type LimitType int

// Set of constants defining the different types of resource limits.
const (
	// NumberOfFiles is the capacity of each process's descriptor table.
	NumberOfFiles LimitType = iota

	// ProcessCount is the capacity of the process table, including the
	// reserved slot 0.
	ProcessCount

	// RWLockReaders is the number of concurrent readers an RWLock admits.
	RWLockReaders

	// ArgumentBytes bounds the total size of an execv argument vector.
	ArgumentBytes

	// PathLength bounds the length of a path copied in from user memory.
	PathLength

	numLimitTypes
)

func (lt LimitType) String() string {
	switch lt {
	case NumberOfFiles:
		return "NumberOfFiles"
	case ProcessCount:
		return "ProcessCount"
	case RWLockReaders:
		return "RWLockReaders"
	case ArgumentBytes:
		return "ArgumentBytes"
	case PathLength:
		return "PathLength"
	default:
		return "Unknown"
	}
}

// Infinity is a constant representing a resource with no limit.
const Infinity = ^uint64(0)

// Limit specifies a system limit.
type Limit struct {
	// Cur specifies the current limit.
	Cur uint64
	// Max specifies the maximum settable limit.
	Max uint64
}

// LimitSet represents the Limits that correspond to each LimitType.
type LimitSet struct {
	mu   sync.Mutex
	data map[LimitType]Limit
}

// NewLimitSet creates a new, empty LimitSet.
func NewLimitSet() *LimitSet {
	return &LimitSet{
		data: make(map[LimitType]Limit),
	}
}

// GetCopy returns a clone of the LimitSet.
func (l *LimitSet) GetCopy() *LimitSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	copyData := make(map[LimitType]Limit, len(l.data))
	for k, v := range l.data {
		copyData[k] = v
	}
	return &LimitSet{
		data: copyData,
	}
}

// Get returns the resource limit associated with LimitType t.
// If no limit is provided, it defaults to an infinite limit.Infinity.
func (l *LimitSet) Get(t LimitType) Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.data[t]
	if !ok {
		return Limit{Cur: Infinity, Max: Infinity}
	}
	return s
}

// GetCapped returns the current value for the limit, capped as specified.
func (l *LimitSet) GetCapped(t LimitType, max uint64) uint64 {
	s := l.Get(t)
	if s.Cur == Infinity || s.Cur > max {
		return max
	}
	return s.Cur
}

// SetUnchecked assigns value v to resource of LimitType t.
func (l *LimitSet) SetUnchecked(t LimitType, v Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data[t] = v
}

// Set assigns value v to resource of LimitType t and returns the old value.
// Raising Max fails with EPERM; Cur above Max fails with EINVAL.
func (l *LimitSet) Set(t LimitType, v Limit) (Limit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v.Cur > v.Max {
		return Limit{}, linuxerr.EINVAL
	}
	if old, ok := l.data[t]; ok {
		if old.Max < v.Max {
			return Limit{}, linuxerr.EPERM
		}
		l.data[t] = v
		return old, nil
	}
	l.data[t] = v
	return Limit{Cur: Infinity, Max: Infinity}, nil
}
