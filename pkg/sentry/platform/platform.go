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

// Package platform provides the interface between the kernel and the
// execution of user code.
package platform

import (
	"fmt"
	"sort"

	"github.com/kippesp/os161/pkg/sentry/kernel"
	"github.com/kippesp/os161/pkg/sync"
)

// Platform runs user code. It is the kernel's UserMode.
type Platform interface {
	kernel.UserMode

	// Name returns the name the platform was registered under.
	Name() string
}

// Constructor represents a platform type.
type Constructor interface {
	// New returns a new platform instance.
	New() (Platform, error)
}

var (
	platformsMu sync.Mutex
	platforms   = make(map[string]Constructor)
)

// Register registers a new platform type. It panics if name is already
// taken.
func Register(name string, c Constructor) {
	platformsMu.Lock()
	defer platformsMu.Unlock()
	if _, ok := platforms[name]; ok {
		panic(fmt.Sprintf("duplicate platform registration for %q", name))
	}
	platforms[name] = c
}

// Lookup looks up the platform constructor by name.
func Lookup(name string) (Constructor, error) {
	platformsMu.Lock()
	defer platformsMu.Unlock()
	c, ok := platforms[name]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", name)
	}
	return c, nil
}

// List lists available platforms.
func List() []string {
	platformsMu.Lock()
	defer platformsMu.Unlock()
	var names []string
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
