// Copyright 2020 The gVisor Authors.
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

package refs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kippesp/os161/pkg/log"
	"github.com/kippesp/os161/pkg/sync"
)

// CheckedObject represents a reference-counted object with an informative
// leak detection message.
type CheckedObject interface {
	// RefType is the type of the reference-counted object.
	RefType() string

	// LeakMessage supplies a warning to be printed upon leak detection.
	LeakMessage() string

	// LogRefs indicates whether reference-related events should be logged.
	LogRefs() bool
}

// registry tracks live reference-counted objects while leak checking is
// enabled.
type registry struct {
	mu sync.Mutex

	// objects holds every registered object that has not been unregistered.
	objects map[CheckedObject]struct{}

	// byType counts objects by RefType. A type is removed once its count
	// drops to zero.
	byType map[string]int
}

var live = registry{
	objects: make(map[CheckedObject]struct{}),
	byType:  make(map[string]int),
}

func (r *registry) add(obj CheckedObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[obj]; ok {
		panic(fmt.Sprintf("%s %p registered twice for leak checking", obj.RefType(), obj))
	}
	r.objects[obj] = struct{}{}
	r.byType[obj.RefType()]++
}

func (r *registry) remove(obj CheckedObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[obj]; !ok {
		panic(fmt.Sprintf("%s %p unregistered but never registered for leak checking", obj.RefType(), obj))
	}
	delete(r.objects, obj)
	typ := obj.RefType()
	if r.byType[typ]--; r.byType[typ] == 0 {
		delete(r.byType, typ)
	}
}

// report returns the leak report for the objects still registered, or "" if
// there are none. Messages are grouped by type and sorted.
func (r *registry) report() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.objects) == 0 {
		return ""
	}
	msgs := make(map[string][]string)
	for obj := range r.objects {
		msgs[obj.RefType()] = append(msgs[obj.RefType()], obj.LeakMessage())
	}
	types := make([]string, 0, len(msgs))
	for typ := range msgs {
		types = append(types, typ)
	}
	sort.Strings(types)

	var b strings.Builder
	fmt.Fprintf(&b, "Leak checking detected %d leaked objects:\n", len(r.objects))
	for _, typ := range types {
		sort.Strings(msgs[typ])
		fmt.Fprintf(&b, "%s (%d):\n", typ, len(msgs[typ]))
		for _, msg := range msgs[typ] {
			fmt.Fprintf(&b, "\t%s\n", msg)
		}
	}
	return b.String()
}

// LeakCheckEnabled returns whether leak checking is enabled.
func LeakCheckEnabled() bool {
	return GetLeakMode() != NoLeakChecking
}

// Register adds obj to the live object map.
func Register(obj CheckedObject) {
	if !LeakCheckEnabled() {
		return
	}
	live.add(obj)
	if obj.LogRefs() {
		logEvent(obj, "registered")
	}
}

// Unregister removes obj from the live object map.
func Unregister(obj CheckedObject) {
	if !LeakCheckEnabled() {
		return
	}
	live.remove(obj)
	if obj.LogRefs() {
		logEvent(obj, "unregistered")
	}
}

// LogIncRef logs a reference increment.
func LogIncRef(obj CheckedObject, refs int64) {
	if LeakCheckEnabled() && obj.LogRefs() {
		logEvent(obj, fmt.Sprintf("IncRef to %d", refs))
	}
}

// LogDecRef logs a reference decrement.
func LogDecRef(obj CheckedObject, refs int64) {
	if LeakCheckEnabled() && obj.LogRefs() {
		logEvent(obj, fmt.Sprintf("DecRef to %d", refs))
	}
}

// logEvent logs a message for the given reference-counted object.
//
// obj.LogRefs() should be checked before calling logEvent, in order to avoid
// calling any text processing needed to evaluate msg.
func logEvent(obj CheckedObject, msg string) {
	log.Infof("[%s %p] %s:\n%s", obj.RefType(), obj, msg, FormatStack(RecordStack()))
}

// LiveObjects returns the number of registered objects.
func LiveObjects() int {
	live.mu.Lock()
	defer live.mu.Unlock()
	return len(live.objects)
}

// LiveObjectsByType returns the number of registered objects of each type.
func LiveObjectsByType() map[string]int {
	live.mu.Lock()
	defer live.mu.Unlock()
	counts := make(map[string]int, len(live.byType))
	for typ, n := range live.byType {
		counts[typ] = n
	}
	return counts
}

// CheckLeaks returns an error describing every registered object, or nil if
// none is registered. It does not consult the leak mode's reaction.
func CheckLeaks() error {
	if msg := live.report(); msg != "" {
		return fmt.Errorf("%s", strings.TrimSuffix(msg, "\n"))
	}
	return nil
}

// checkOnce makes sure that leak checking is only done once at shutdown.
var checkOnce sync.Once

// DoLeakCheck reports every object still registered: it panics in LeaksPanic
// mode and logs a warning otherwise. It should be called when no
// reference-counted objects are reachable anymore. Only the first call
// checks.
func DoLeakCheck() {
	if LeakCheckEnabled() {
		checkOnce.Do(doLeakCheck)
	}
}

// DoRepeatedLeakCheck is the same as DoLeakCheck except that it can be called
// multiple times.
func DoRepeatedLeakCheck() {
	if LeakCheckEnabled() {
		doLeakCheck()
	}
}

func doLeakCheck() {
	err := CheckLeaks()
	if err == nil {
		return
	}
	if GetLeakMode() == LeaksPanic {
		panic(err.Error())
	}
	log.Warningf("%v", err)
}
