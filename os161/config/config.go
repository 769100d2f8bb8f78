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

// Package config provides basic infrastructure to set configuration settings
// for os161. Each setting that can be changed from the command line must
// have a corresponding flag name and default value in flags.go, and be
// registered with RegisterFlags.
package config

import (
	"fmt"
	"reflect"

	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/log"
	"github.com/kippesp/os161/pkg/refs"
	"github.com/kippesp/os161/pkg/sentry/limits"
)

// Config holds configuration that is not part of the program being run.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name.
//  3. Register a new flag in flags.go, with the same name and add a
//     description.
//  4. Add any necessary validation into validate().
type Config struct {
	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFormat is the log format: text or json.
	LogFormat string `flag:"log-format"`

	// DebugLog is the path to log debug information to, if not empty.
	DebugLog string `flag:"debug-log"`

	// Platform is the platform that runs user code.
	Platform string `flag:"platform"`

	// MaxProcesses is the capacity of the process table, including the
	// reserved invalid identifier.
	MaxProcesses int `flag:"max-processes"`

	// OpenMax is the capacity of each process's descriptor table.
	OpenMax int `flag:"open-max"`

	// RWLockReaders is the number of readers a reader/writer lock admits
	// at once.
	RWLockReaders int `flag:"rwlock-readers"`

	// ArgMax bounds the size of an execv argument vector.
	ArgMax int `flag:"arg-max"`

	// RefLeakMode sets reference leak check mode.
	RefLeakMode refs.LeakMode `flag:"ref-leak-mode"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.MaxProcesses <= os161.PID_MIN {
		return fmt.Errorf("max-processes must be greater than %d, got: %d", os161.PID_MIN, c.MaxProcesses)
	}
	if c.OpenMax <= os161.STDERR_FILENO+1 {
		return fmt.Errorf("open-max must be greater than %d, got: %d", os161.STDERR_FILENO+1, c.OpenMax)
	}
	if c.RWLockReaders < 1 {
		return fmt.Errorf("rwlock-readers must be at least 1, got: %d", c.RWLockReaders)
	}
	if c.ArgMax < 1 {
		return fmt.Errorf("arg-max must be positive, got: %d", c.ArgMax)
	}
	return nil
}

// Limits returns the table sizes and bounds selected by c.
func (c *Config) Limits() *limits.LimitSet {
	ls := limits.NewOS161LimitSet()
	for lt, v := range map[limits.LimitType]int{
		limits.ProcessCount:  c.MaxProcesses,
		limits.NumberOfFiles: c.OpenMax,
		limits.RWLockReaders: c.RWLockReaders,
		limits.ArgumentBytes: c.ArgMax,
	} {
		ls.SetUnchecked(lt, limits.Limit{Cur: uint64(v), Max: uint64(v)})
	}
	return ls
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if name, ok := f.Tag.Lookup("flag"); ok {
			log.Infof("\t%s: %v", name, obj.Field(i).Interface())
		}
	}
}
