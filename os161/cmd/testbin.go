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
	"embed"
	"io/fs"
	"path"

	"github.com/kippesp/os161/pkg/sentry/fsimpl/memfs"
)

// TestbinDir is where the built-in programs are installed.
const TestbinDir = "/testbin"

//go:embed testbin
var testbin embed.FS

// installTestbin copies the built-in programs into mfs.
func installTestbin(mfs *memfs.Filesystem) error {
	return fs.WalkDir(testbin, "testbin", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := testbin.ReadFile(name)
		if err != nil {
			return err
		}
		return mfs.WriteFile(path.Join(TestbinDir, path.Base(name)), data)
	})
}

// Testbin returns the names of the built-in programs.
func Testbin() []string {
	entries, err := testbin.ReadDir("testbin")
	if err != nil {
		panic(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
