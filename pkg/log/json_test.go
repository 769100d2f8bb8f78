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

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{&Writer{Next: &buf}}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e.Emit(0, Info, ts, "fork: pid %d", 2)

	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("Emit wrote %q, want a newline-terminated record", line)
	}
	var got struct {
		Msg    string    `json:"msg"`
		Level  string    `json:"level"`
		Time   time.Time `json:"time"`
		Caller string    `json:"caller"`
	}
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("record %q does not parse: %v", line, err)
	}
	if got.Msg != "fork: pid 2" || got.Level != "info" || !got.Time.Equal(ts) {
		t.Errorf("record = %+v", got)
	}
	if !strings.HasPrefix(got.Caller, "json_test.go:") {
		t.Errorf("caller = %q, want json_test.go:<line>", got.Caller)
	}
}

func TestLevelUnmarshal(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{`"warning"`, Warning},
		{`1`, Info},
		{`"debug"`, Debug},
	} {
		var l Level
		if err := l.UnmarshalJSON([]byte(tc.in)); err != nil {
			t.Errorf("UnmarshalJSON(%s): %v", tc.in, err)
			continue
		}
		if l != tc.want {
			t.Errorf("UnmarshalJSON(%s) = %v, want %v", tc.in, l, tc.want)
		}
	}
	var l Level
	if err := l.UnmarshalJSON([]byte(`"fatal"`)); err == nil {
		t.Errorf("UnmarshalJSON(\"fatal\") succeeded")
	}
}
