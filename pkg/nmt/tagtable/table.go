// Copyright 2021 Intel Corporation. All Rights Reserved.
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

// Package tagtable maps memory-tag names to compact integers and back.
// It is the only place in the tracker that deals with tag names; the
// VMATree itself stores only the small integer.
package tagtable

import (
	"sync"

	"github.com/intel/native-memory-tracker/pkg/nmt/nmtlog"
)

// Tag is the small-integer memory category attached to an interval.
type Tag uint16

// None is the reserved tag meaning "no category". It is the only tag
// legal on a Released interval.
const None Tag = 0

// MaxTag bounds the tag namespace. Tag 0 is reserved for None, so at
// most MaxTag named tags (1 through MaxTag) can be registered.
const MaxTag = ^Tag(0)

// Table is an append-only name<->tag mapping guarded by a mutex,
// mirroring the teacher's pattern of a package-level registry guarded
// under a lock with one-shot error reporting (pkg/config, pkg/metrics).
type Table struct {
	mu         sync.Mutex
	nameToTag  map[string]Tag
	tagToName  []string // index 0 is "none"
	overflowed bool
}

// New returns an empty table. Tag None/"none" is pre-registered.
func New() *Table {
	return &Table{
		nameToTag: map[string]Tag{"none": None},
		tagToName: []string{"none"},
	}
}

// MakeTag returns the tag for name, registering a fresh one if this is
// the first time name is seen. overflowed is true exactly once, the
// first time the tag namespace is exhausted; subsequent overflowing
// calls are silent and return None.
func (t *Table) MakeTag(name string) (tag Tag, overflowed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.nameToTag[name]; ok {
		return existing, false
	}
	next := len(t.tagToName)
	if next > int(MaxTag) {
		first := !t.overflowed
		t.overflowed = true
		if first {
			nmtlog.Get().Errorf("tagtable: tag namespace exhausted, dropping tag %q", name)
		}
		return None, first
	}
	tag = Tag(next)
	t.nameToTag[name] = tag
	t.tagToName = append(t.tagToName, name)
	return tag, false
}

// Name returns the name registered for tag, or "" if unknown.
func (t *Table) Name(tag Tag) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(tag) >= len(t.tagToName) {
		return ""
	}
	return t.tagToName[tag]
}

// Lookup returns the tag registered for name, if any.
func (t *Table) Lookup(name string) (Tag, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tag, ok := t.nameToTag[name]
	return tag, ok
}

// Tags returns every registered tag except None, in registration
// order.
func (t *Table) Tags() []Tag {
	t.mu.Lock()
	defer t.mu.Unlock()
	tags := make([]Tag, 0, len(t.tagToName)-1)
	for i := 1; i < len(t.tagToName); i++ {
		tags = append(tags, Tag(i))
	}
	return tags
}
