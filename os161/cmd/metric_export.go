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
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/kippesp/os161/os161/config"
	"github.com/kippesp/os161/pkg/metric"
)

// MetricExport implements subcommands.Command for the "metric-export"
// command.
type MetricExport struct {
	quiet bool
}

// Name implements subcommands.Command.Name.
func (*MetricExport) Name() string {
	return "metric-export"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*MetricExport) Synopsis() string {
	return "export kernel metric data"
}

// Usage implements subcommands.Command.Usage.
func (*MetricExport) Usage() string {
	return `metric-export [-quiet] [<program> [args...]] - boots program, if given, then prints kernel metric data in Prometheus metric format
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *MetricExport) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.quiet, "quiet", false, "discard the program's console output.")
}

// Execute implements subcommands.Command.Execute.
func (m *MetricExport) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)
	if f.NArg() > 0 {
		var out io.Writer = os.Stderr
		if m.quiet {
			out = io.Discard
		}
		if _, err := bootProgram(conf, bootOptions{
			program: f.Arg(0),
			args:    f.Args()[1:],
			stdout:  out,
		}); err != nil {
			Fatalf("booting %q: %v", f.Arg(0), err)
		}
	}
	if err := metric.WritePrometheus(os.Stdout); err != nil {
		Fatalf("Cannot write metrics to stdout: %v", err)
	}
	return subcommands.ExitSuccess
}
