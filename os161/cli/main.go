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

// Package cli is the main entrypoint for os161.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/kippesp/os161/os161/cmd"
	"github.com/kippesp/os161/os161/config"
	"github.com/kippesp/os161/pkg/abi/os161"
	"github.com/kippesp/os161/pkg/log"
	"github.com/kippesp/os161/pkg/metric"
	"github.com/kippesp/os161/pkg/refs"
	"github.com/kippesp/os161/pkg/sentry/platform"
)

// version is reported by --version.
const version = "0.1.0"

const versionFlagName = "version"

var configFile = flag.String("config-file", "", "TOML file of flag settings. Flags given on the command line take precedence.")

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)
	flag.Bool(versionFlagName, false, "show version and exit.")

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	if flag.Lookup(versionFlagName).Value.(flag.Getter).Get().(bool) {
		fmt.Fprintf(os.Stdout, "os161 version %s\n", version)
		os.Exit(0)
	}

	if *configFile != "" {
		if err := config.LoadFile(*configFile, flag.CommandLine); err != nil {
			cmd.Fatalf("%v", err)
		}
	}

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	if _, err := platform.Lookup(conf.Platform); err != nil {
		cmd.Fatalf("%v", err)
	}

	refs.SetLeakMode(conf.RefLeakMode)

	// Set up logging. Stderr belongs to the emulated console, so kernel logs
	// are discarded unless a debug log is given.
	if conf.Debug {
		log.SetLevel(log.Debug)
		logrus.SetLevel(logrus.DebugLevel)
	}
	var logFile io.Writer = io.Discard
	if conf.DebugLog != "" {
		f, err := os.OpenFile(conf.DebugLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			cmd.Fatalf("error opening debug log file %q: %v", conf.DebugLog, err)
		}
		logFile = f
	}
	log.SetTarget(newEmitter(conf.LogFormat, logFile))
	if conf.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	logrus.SetOutput(os.Stderr)

	const delimString = `**************** os161 ****************`
	log.Infof(delimString)
	log.Infof("Version %s, %s, %s, %d CPUs, %s, PID %d", version, runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	// Every metric is registered at init time.
	if err := metric.Initialize(); err != nil {
		cmd.Fatalf("initializing metrics: %v", err)
	}

	// Call the subcommand and pass in the configuration.
	var ws os161.WaitStatus
	subcmdCode := subcommands.Execute(context.Background(), conf, &ws)
	// Check for leaks before os.Exit().
	refs.DoLeakCheck()
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", ws)
		os.Exit(int(ws.ExitStatus()))
	}
	// Return an error that is unlikely to be used by the program.
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	os.Exit(128)
}

// forEachCmd invokes the passed callback for each command supported by os161.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	cb(new(cmd.Boot), "")
	cb(new(cmd.RWTest), "")

	const infoGroup = "info"
	cb(new(cmd.Config), infoGroup)
	cb(new(cmd.Platforms), infoGroup)
	cb(new(cmd.Syscalls), infoGroup)

	const metricGroup = "metrics"
	cb(new(cmd.MetricExport), metricGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	cmd.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}
