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
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/kippesp/os161/pkg/sentry/kernel"
	"github.com/kippesp/os161/pkg/sentry/platform"
	sys "github.com/kippesp/os161/pkg/sentry/syscalls/os161"
)

// Platforms implements subcommands.Command for the "platforms" command.
type Platforms struct{}

// Name implements subcommands.Command.Name.
func (*Platforms) Name() string {
	return "platforms"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Platforms) Synopsis() string {
	return "Print a list of available platforms."
}

// Usage implements subcommands.Command.Usage.
func (*Platforms) Usage() string {
	return `platforms [options] - Print available platforms.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Platforms) SetFlags(f *flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Platforms) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	for _, p := range platform.List() {
		fmt.Fprintf(os.Stdout, "%s\n", p)
	}
	return subcommands.ExitSuccess
}

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct{}

// Name implements subcommands.Command.Name.
func (*Syscalls) Name() string {
	return "syscalls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Syscalls) Synopsis() string {
	return "Print the supported syscalls."
}

// Usage implements subcommands.Command.Usage.
func (*Syscalls) Usage() string {
	return `syscalls - Print the number and name of each supported syscall.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Syscalls) SetFlags(f *flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Syscalls) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if err := outputTable(os.Stdout, sys.MIPS); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// outputTable writes the syscalls in table, ordered by number.
func outputTable(w io.Writer, table *kernel.SyscallTable) error {
	nums := make([]uintptr, 0, len(table.Table))
	for num := range table.Table {
		nums = append(nums, num)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", "NUM", "NAME", "RESULT"); err != nil {
		return err
	}
	for _, num := range nums {
		sc := table.Table[num]
		result := "32-bit"
		if sc.Wide {
			result = "64-bit"
		}
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%s\n", num, sc.Name, result); err != nil {
			return err
		}
	}
	return tw.Flush()
}
