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
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/subcommands"

	"github.com/kippesp/os161/os161/config"
)

// Config implements subcommands.Command for the "config" command.
type Config struct {
	format string
}

// Name implements subcommands.Command.Name.
func (*Config) Name() string {
	return "config"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Config) Synopsis() string {
	return "print the effective configuration"
}

// Usage implements subcommands.Command.Usage.
func (*Config) Usage() string {
	return `config [-format=toml|flags] - prints the configuration after flags and the config file are applied
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Config) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", "toml", "output format: toml (every setting, loadable with --config-file) or flags (non-default settings).")
}

// Execute implements subcommands.Command.Execute.
func (c *Config) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	switch c.format {
	case "toml":
		if err := toml.NewEncoder(os.Stdout).Encode(conf.ToTOML()); err != nil {
			Fatalf("Error writing output: %v", err)
		}
	case "flags":
		fmt.Println(strings.Join(conf.ToFlags(), " "))
	default:
		Fatalf("Unsupported output format %q", c.format)
	}
	return subcommands.ExitSuccess
}
