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

package nmt

import (
	"fmt"
	"sync"

	"github.com/intel/native-memory-tracker/pkg/nmt/callstack"
	"github.com/intel/native-memory-tracker/pkg/nmt/nmtlog"
	"github.com/intel/native-memory-tracker/pkg/nmt/tagtable"
	"github.com/intel/native-memory-tracker/pkg/nmt/vmatree"
)

// Counters is the live reserved/committed byte count for one tag,
// together with the high-water marks seen since the tracker started.
type Counters struct {
	Reserve     int64
	Commit      int64
	PeakReserve int64
	PeakCommit  int64
}

// Summary is a point-in-time copy of every tag's Counters.
type Summary map[string]Counters

// Tracker is the single process-wide entry point the rest of the host
// runtime calls to record virtual-memory events. One Tracker is
// created during process init, with a fixed detailed-mode choice for
// its whole lifetime, and torn down at process exit.
type Tracker struct {
	mu       sync.RWMutex
	regions  *regionsTree
	tags     *tagtable.Table
	stacks   *callstack.Storage
	counters map[tagtable.Tag]*Counters

	dropped        uint64
	tagOverflows   uint64
	degraded       bool
	degradedReason string
}

// NewTracker constructs a Tracker. detailed toggles CallStackStorage
// between deduplicating and sentinel-only operation. Its tree's node
// allocation is unbounded, matching how the Go heap actually behaves in
// production.
func NewTracker(detailed bool) *Tracker {
	return newTracker(newRegionsTree(1), detailed)
}

// NewTrackerWithCapacity is NewTracker with the tree's node allocation
// capped at maxNodes, matching NewStorageWithChunkSize's With-suffix
// convention in the callstack package. It exists to exercise the
// allocation-failure path - recording calls that would need more nodes
// than maxNodes are dropped, not grown into the Go heap - without
// depending on the real allocator actually running out.
func NewTrackerWithCapacity(detailed bool, maxNodes int) *Tracker {
	return newTracker(newRegionsTreeBounded(1, maxNodes), detailed)
}

func newTracker(regions *regionsTree, detailed bool) *Tracker {
	return &Tracker{
		regions:  regions,
		tags:     tagtable.New(),
		stacks:   callstack.NewStorage(detailed),
		counters: make(map[tagtable.Tag]*Counters),
	}
}

// recordingOp runs fn under the NMT lock and never lets it panic past
// the tracker: vmatree.ErrAllocationFailed is the only expected panic
// source, and RegisterMapping raises it before splicing or removing
// any node, so the tree is provably unchanged by the time recordingOp
// recovers. The call aborts, leaves the tree unchanged from the
// caller's point of view, and counts as "dropped" - it never propagates
// to the caller, which never blocks on tracking.
func (tr *Tracker) recordingOp(name string, fn func() vmatree.SummaryDiff) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			tr.dropped++
			nmtlog.Get().Errorf("nmt: dropped %s recording after panic: %v", name, r)
		}
	}()
	diff := fn()
	tr.foldDiff(diff)
}

func (tr *Tracker) foldDiff(diff vmatree.SummaryDiff) {
	diff.ForEach(func(tag tagtable.Tag, delta vmatree.TagDelta) {
		c, ok := tr.counters[tag]
		if !ok {
			c = &Counters{}
			tr.counters[tag] = c
		}
		c.Reserve += delta.Reserve
		c.Commit += delta.Commit
		if c.Reserve < 0 {
			tr.markDegraded(fmt.Sprintf("tag %d reserve went negative", tag))
			c.Reserve = 0
		}
		if c.Commit < 0 {
			tr.markDegraded(fmt.Sprintf("tag %d commit went negative", tag))
			c.Commit = 0
		}
		if c.Reserve > c.PeakReserve {
			c.PeakReserve = c.Reserve
		}
		if c.Commit > c.PeakCommit {
			c.PeakCommit = c.Commit
		}
	})
}

func (tr *Tracker) markDegraded(reason string) {
	tr.degraded = true
	tr.degradedReason = reason
	nmtlog.Get().Warnf("nmt: degraded: %s", reason)
}

// warnUnlessPageAligned logs, but does not reject, a commit/uncommit
// whose range isn't page-aligned - HotSpot's contiguousAllocator
// asserts this of its own arena chunks, but callers here are reporting
// on an allocator NMT doesn't control, so a log line is all NMT can do.
func warnUnlessPageAligned(op string, addr, size uint64) {
	ps := uint64(pageSize())
	if addr%ps != 0 || size%ps != 0 {
		nmtlog.Get().Warnf("nmt: %s [0x%x, 0x%x) is not page-aligned (page size %d)", op, addr, addr+size, ps)
	}
}

// Reserve records a fresh reservation of [addr, addr+size) under the
// given tag name, attributed to the stack captured by the caller.
func (tr *Tracker) Reserve(addr, size uint64, tagName string, stack callstack.Stack) {
	if size == 0 {
		return
	}
	tag, overflowed := tr.tags.MakeTag(tagName)
	if overflowed {
		tr.tagOverflows++
		nmtlog.Get().Errorf("nmt: tag namespace overflow, recording reservation for %q under tag none", tagName)
	}
	tr.recordingOp("reserve", func() vmatree.SummaryDiff {
		return tr.regions.reserve(addr, size, tag, tr.stacks.Push(stack))
	})
}

// Commit records backing physical memory for [addr, addr+size), which
// must lie inside an existing reservation; the committed bytes inherit
// that reservation's tag.
func (tr *Tracker) Commit(addr, size uint64, stack callstack.Stack) {
	if size == 0 {
		return
	}
	warnUnlessPageAligned("commit", addr, size)
	tr.recordingOp("commit", func() vmatree.SummaryDiff {
		return tr.regions.commit(addr, size, tr.stacks.Push(stack))
	})
}

// Uncommit removes physical backing from [addr, addr+size), downgrading
// it back to Reserved while preserving the enclosing reservation's tag.
func (tr *Tracker) Uncommit(addr, size uint64, stack callstack.Stack) {
	if size == 0 {
		return
	}
	warnUnlessPageAligned("uncommit", addr, size)
	tr.recordingOp("uncommit", func() vmatree.SummaryDiff {
		return tr.regions.uncommit(addr, size, tr.stacks.Push(stack))
	})
}

// Release returns [addr, addr+size) to Released, clearing tag and
// stack metadata.
func (tr *Tracker) Release(addr, size uint64) {
	if size == 0 {
		return
	}
	tr.recordingOp("release", func() vmatree.SummaryDiff {
		return tr.regions.release(addr, size)
	})
}

// SetTag rewrites the tag attributed to [addr, addr+size), which must
// lie inside one or more existing reservations; state type and stack
// handles are left untouched.
func (tr *Tracker) SetTag(addr, size uint64, tagName string) {
	if size == 0 {
		return
	}
	tag, overflowed := tr.tags.MakeTag(tagName)
	if overflowed {
		tr.tagOverflows++
		nmtlog.Get().Errorf("nmt: tag namespace overflow, dropping set_tag for %q", tagName)
		return
	}
	tr.recordingOp("set_tag", func() vmatree.SummaryDiff {
		return tr.regions.setTag(addr, size, tag)
	})
}

// Snapshot returns a consistent, tag-named copy of the current
// per-tag counters.
func (tr *Tracker) Snapshot() Summary {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make(Summary, len(tr.counters))
	for tag, c := range tr.counters {
		name := tr.tags.Name(tag)
		if name == "" {
			name = "none"
		}
		out[name] = *c
	}
	return out
}

// Walk visits every live (non-Released) interval in ascending address
// order.
func (tr *Tracker) Walk(f func(r vmatree.Range) bool) {
	tr.mu.RLock()
	ranges := tr.regions.ranges()
	tr.mu.RUnlock()
	for _, r := range ranges {
		if !f(r) {
			return
		}
	}
}

// Dropped returns how many recording calls were dropped due to an
// allocation failure.
func (tr *Tracker) Dropped() uint64 {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.dropped
}

// TagOverflows returns 1 once the tag namespace has been exhausted, 0
// until then: tagtable.Table.MakeTag reports overflowed only on the
// first offending call, so this is a sticky flag rather than a running
// count.
func (tr *Tracker) TagOverflows() uint64 {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.tagOverflows
}

// Status reports "active" or "degraded: <reason>".
func (tr *Tracker) Status() string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	if !tr.degraded {
		return "active"
	}
	return "degraded: " + tr.degradedReason
}

// TagName resolves a tag to its registered name, for callers (like the
// Reporter) that hold a vmatree.Range and need to render it.
func (tr *Tracker) TagName(tag tagtable.Tag) string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	name := tr.tags.Name(tag)
	if name == "" {
		return "unknown"
	}
	return name
}

// StackFrames resolves a stack handle to its captured frames, for the
// Reporter's detail map.
func (tr *Tracker) StackFrames(idx callstack.StackIndex) []string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	st, ok := tr.stacks.Get(idx)
	if !ok {
		return nil
	}
	return st.Frames()
}
