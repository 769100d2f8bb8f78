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
	"sync/atomic"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kippesp/os161/os161/config"
	"github.com/kippesp/os161/pkg/sync"
)

// RWTest implements subcommands.Command for the "rwtest" command.
type RWTest struct {
	readers    int
	writers    int
	iterations int
	slots      int
}

// Name implements subcommands.Command.Name.
func (*RWTest) Name() string {
	return "rwtest"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*RWTest) Synopsis() string {
	return "stress the reader/writer lock"
}

// Usage implements subcommands.Command.Usage.
func (*RWTest) Usage() string {
	return `rwtest [flags] - readers check that a shared array is never torn while writers rewrite it.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *RWTest) SetFlags(f *flag.FlagSet) {
	f.IntVar(&r.readers, "readers", 32, "number of reader threads.")
	f.IntVar(&r.writers, "writers", 4, "number of writer threads.")
	f.IntVar(&r.iterations, "iterations", 1000, "number of times each reader reads the array.")
	f.IntVar(&r.slots, "slots", 64, "size of the shared array.")
}

// Execute implements subcommands.Command.Execute.
func (r *RWTest) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || r.readers < 0 || r.writers < 0 || r.iterations < 1 || r.slots < 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	st, err := runRWTest(rwTestOptions{
		readers:    r.readers,
		writers:    r.writers,
		iterations: r.iterations,
		slots:      r.slots,
		maxReaders: uint(conf.RWLockReaders),
	})
	if err != nil {
		logrus.WithError(err).Error("rwtest failed")
		return subcommands.ExitFailure
	}
	logrus.WithFields(logrus.Fields{
		"reads":       st.reads,
		"writes":      st.writes,
		"max-readers": st.maxConcurrent,
	}).Info("rwtest passed")
	return subcommands.ExitSuccess
}

type rwTestOptions struct {
	readers    int
	writers    int
	iterations int
	slots      int
	maxReaders uint
}

type rwTestStats struct {
	reads  uint64
	writes uint64

	// maxConcurrent is the largest number of readers seen inside the lock
	// at once.
	maxConcurrent int64
}

// rwThread identifies a stress test goroutine to the lock.
type rwThread string

// Name implements sync.Thread.Name.
func (t rwThread) Name() string { return string(t) }

// InInterrupt implements sync.Thread.InInterrupt.
func (rwThread) InInterrupt() bool { return false }

// runRWTest runs readers and writers against one lock. Readers verify that
// every slot of a shared array holds the same value; writers rewrite the
// array. It fails if a reader sees a torn array, if a reader and a writer
// overlap, or if more than o.maxReaders readers hold the lock at once.
func runRWTest(o rwTestOptions) (rwTestStats, error) {
	rw := sync.NewRWLock("rwtest", o.maxReaders)
	defer rw.Destroy()

	var (
		st       rwTestStats
		reads    atomic.Uint64
		writes   atomic.Uint64
		inside   atomic.Int64
		maxSeen  atomic.Int64
		writing  atomic.Int32
		data     = make([]int, o.slots)
		g        errgroup.Group
		readerFn = func(th rwThread) error {
			for i := 0; i < o.iterations; i++ {
				rw.AcquireRead(th)
				n := inside.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				err := checkSlots(th, data, &writing)
				if n > int64(o.maxReaders) {
					err = fmt.Errorf("%s: %d readers inside the lock, limit %d", th, n, o.maxReaders)
				}
				inside.Add(-1)
				rw.ReleaseRead(th)
				if err != nil {
					return err
				}
				reads.Add(1)
			}
			return nil
		}
	)
	for i := 0; i < o.readers; i++ {
		th := rwThread(fmt.Sprintf("reader-%d", i))
		g.Go(func() error { return readerFn(th) })
	}
	for i := 0; i < o.writers; i++ {
		th := rwThread(fmt.Sprintf("writer-%d", i))
		g.Go(func() error {
			for j := 0; j < o.iterations/10+1; j++ {
				rw.AcquireWrite(th)
				if n := writing.Add(1); n != 1 || inside.Load() != 0 {
					writing.Add(-1)
					rw.ReleaseWrite(th)
					return fmt.Errorf("%s: writer shares the lock", th)
				}
				for k := range data {
					data[k]++
				}
				writing.Add(-1)
				rw.ReleaseWrite(th)
				writes.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	st.reads = reads.Load()
	st.writes = writes.Load()
	st.maxConcurrent = maxSeen.Load()
	return st, err
}

func checkSlots(th rwThread, data []int, writing *atomic.Int32) error {
	if writing.Load() != 0 {
		return fmt.Errorf("%s: reading while a writer holds the lock", th)
	}
	for k := 1; k < len(data); k++ {
		if data[k] != data[0] {
			return fmt.Errorf("%s: torn read: slot %d = %d, slot 0 = %d", th, k, data[k], data[0])
		}
	}
	return nil
}
