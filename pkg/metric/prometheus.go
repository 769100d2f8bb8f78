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

package metric

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Prefix is prepended to every exported metric name.
const Prefix = "os161"

// PrometheusName converts a metric name such as "/kernel/forks" into its
// exported form, "os161_kernel_forks".
func PrometheusName(name string) string {
	var b strings.Builder
	b.WriteString(Prefix)
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// WritePrometheus writes every registered metric to w in the Prometheus text
// exposition format.
func WritePrometheus(w io.Writer) error {
	allMetrics.mu.Lock()
	meta := make(map[string]metadata, len(allMetrics.metrics))
	for name, m := range allMetrics.metrics {
		meta[name] = m.metadata
	}
	allMetrics.mu.Unlock()

	bw := bufio.NewWriter(w)
	last := ""
	for _, s := range Values() {
		name := PrometheusName(s.Name)
		if s.Name != last {
			md := meta[s.Name]
			typ := "gauge"
			if md.cumulative {
				typ = "counter"
			}
			fmt.Fprintf(bw, "# HELP %s %s\n", name, escapeHelp(md.description))
			fmt.Fprintf(bw, "# TYPE %s %s\n", name, typ)
			last = s.Name
		}
		bw.WriteString(name)
		if len(s.Fields) > 0 {
			keys := make([]string, 0, len(s.Fields))
			for k := range s.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			bw.WriteByte('{')
			for i, k := range keys {
				if i > 0 {
					bw.WriteByte(',')
				}
				fmt.Fprintf(bw, "%s=%q", k, s.Fields[k])
			}
			bw.WriteByte('}')
		}
		fmt.Fprintf(bw, " %d\n", s.Value)
	}
	return bw.Flush()
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "\n", `\n`)
}
