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

package vmatree

import (
	"errors"

	"github.com/intel/native-memory-tracker/pkg/nmt/nmtlog"
	"github.com/intel/native-memory-tracker/pkg/nmt/tagtable"
	"github.com/intel/native-memory-tracker/pkg/nmt/treap"
)

// ErrAllocationFailed is the panic value RegisterMapping raises when
// the tree's allocator cannot supply the nodes a splice might need. It
// is checked before any node is spliced or removed, so the tree is
// left provably unchanged; a dropped operation is never retried and
// never partially applied.
var ErrAllocationFailed = errors.New("vmatree: allocation failed")

// maxNodesPerRegisterMapping is the worst case number of fresh nodes a
// single RegisterMapping call can need: one spliced in at A, one
// spliced in at B. Every other node touched by the sweep is removed or
// rewritten in place, not allocated.
const maxNodesPerRegisterMapping = 2

// VMATree is the interval map over the address space. Its sole
// mutating operation is RegisterMapping; everything else is a query.
// It is not safe for concurrent use without external synchronization;
// callers are expected to hold a single tracker-wide lock around every
// call.
type VMATree struct {
	t *treap.Treap[IntervalChange]
}

// New returns an empty tree backed by the Go heap, which never refuses
// an allocation.
func New(seed uint64) *VMATree {
	return &VMATree{t: treap.New[IntervalChange](seed)}
}

// NewBounded returns an empty tree whose node allocation is capped at
// capacity, so RegisterMapping calls that would need more nodes than
// that fail by panicking ErrAllocationFailed instead of growing the Go
// heap - used to exercise the allocation-failure path deterministically
// in tests.
func NewBounded(seed uint64, capacity int) *VMATree {
	return &VMATree{t: treap.NewBounded[IntervalChange](seed, capacity)}
}

// Len returns the number of inflection-point nodes currently stored.
func (tr *VMATree) Len() int { return tr.t.Len() }

// RegisterMapping establishes target state (with data) on [a, b),
// leaves everything outside unchanged, renormalizes the tree to
// satisfy invariants I1-I5, and returns the signed per-tag summary
// change. a == b is a deliberate no-op rather than an error, matching
// how a zero-size reservation is a no-op one level up in Tracker. a > b
// is caller error and is treated as a no-op after logging, since
// RegisterMapping never returns an error.
func (tr *VMATree) RegisterMapping(a, b Position, targetState StateType, data RegionData, useTagInPlace bool) SummaryDiff {
	diff := NewSummaryDiff()
	if a == b {
		return diff
	}
	if a > b {
		nmtlog.Get().Errorf("vmatree: RegisterMapping called with A=%d > B=%d, ignoring", a, b)
		return diff
	}
	if targetState == Released {
		data = EmptyRegionData
	}
	if tr.t.Available() < maxNodesPerRegisterMapping {
		panic(ErrAllocationFailed)
	}

	l := tr.t.FindLE(uint64(a))

	effectiveData := data
	if useTagInPlace && targetState != Released {
		effectiveData.Tag = tr.enclosingTag(l, data.Tag)
	}
	target := IntervalState{Type: targetState, Data: effectiveData}

	tr.spliceAtA(l, a, target)
	tr.sweepAndSpliceAtB(a, b, target, diff)

	diff.add(target, uint64(b-a))
	return diff
}

// enclosingTag returns the tag of the reservation currently covering
// the splice point at A, used by commit/uncommit to preserve the
// existing tag while adopting the new call stack. Falls back to
// fallbackTag if no enclosing reservation exists (a malformed caller
// sequence; best effort rather than an error).
func (tr *VMATree) enclosingTag(l *treap.Node[IntervalChange], fallbackTag tagtable.Tag) tagtable.Tag {
	if l == nil {
		return fallbackTag
	}
	out := l.Value.Out
	if out.Type == Reserved || out.Type == Committed {
		return out.Data.Tag
	}
	return fallbackTag
}

// spliceAtA rewrites or inserts the single inflection point at a so
// that the state just below a is unchanged and the state from a onward
// becomes target, pending the sweep to b.
func (tr *VMATree) spliceAtA(l *treap.Node[IntervalChange], a Position, target IntervalState) {
	switch {
	case l == nil:
		change := IntervalChange{In: ReleasedState(), Out: target}
		if !change.IsNoop() {
			tr.t.Upsert(uint64(a), change)
		}
	case Position(l.Key) == a:
		change := IntervalChange{In: l.Value.In, Out: target}
		if change.IsNoop() {
			tr.t.Remove(l.Key)
		} else {
			l.Value = change
		}
	default: // l.Key < a
		change := IntervalChange{In: l.Value.Out, Out: target}
		if !change.IsNoop() {
			tr.t.Upsert(uint64(a), change)
		}
	}
}

// sweepAndSpliceAtB is step B: it sweeps nodes with key in (a, b],
// removing or rewriting them, accumulating the diff contribution of
// every old sub-interval that is being replaced, and finally splices
// in the node at B if one is still needed.
func (tr *VMATree) sweepAndSpliceAtB(a, b Position, target IntervalState, diff SummaryDiff) {
	prev := a
	cur := tr.t.FindGT(uint64(a))
	for cur != nil && Position(cur.Key) <= b {
		key := Position(cur.Key)
		oldIn := cur.Value.In
		diff.subtract(oldIn, uint64(key-prev))

		if key == b {
			change := IntervalChange{In: target, Out: cur.Value.Out}
			if change.IsNoop() {
				tr.t.Remove(cur.Key)
			} else {
				cur.Value = change
			}
			return
		}

		tr.t.Remove(cur.Key)
		prev = key
		cur = tr.t.FindGT(uint64(prev))
	}

	var tail IntervalState
	if cur != nil {
		tail = cur.Value.In
	} else {
		tail = ReleasedState()
	}
	diff.subtract(tail, uint64(b-prev))
	change := IntervalChange{In: target, Out: tail}
	if !change.IsNoop() {
		tr.t.Upsert(uint64(b), change)
	}
}

// SetTag rewrites the tag over [a, b) without touching state type or
// call-stack handle, recursing over every maximal run of non-Released
// state in the range. Runs already carrying tag are left untouched;
// Released sub-ranges are skipped, not rewritten.
func (tr *VMATree) SetTag(a, b Position, tag tagtable.Tag) SummaryDiff {
	total := NewSummaryDiff()
	if a >= b {
		return total
	}
	pos := a
	for pos < b {
		l := tr.t.FindLE(uint64(pos))
		var cur IntervalState
		if l == nil {
			cur = ReleasedState()
		} else {
			cur = l.Value.Out
		}

		succ := tr.t.FindGT(uint64(pos))
		runEnd := b
		if succ != nil && Position(succ.Key) < b {
			runEnd = Position(succ.Key)
		}

		if cur.Type != Released && cur.Data.Tag != tag {
			newData := RegionData{Tag: tag, StackIdx: cur.Data.StackIdx}
			d := tr.RegisterMapping(pos, runEnd, cur.Type, newData, false)
			d.ForEach(func(t tagtable.Tag, delta TagDelta) {
				total.bump(t, delta.Reserve, delta.Commit)
			})
		}
		pos = runEnd
	}
	return total
}

// FindEnclosingRange returns the state covering p and the [lo, hi)
// bounds of that interval. ok is false only when the tree is empty.
// Below the first node the state is Released and lo is 0; at or past
// the last node hi is the largest Position.
func (tr *VMATree) FindEnclosingRange(p Position) (lo, hi Position, state IntervalState, ok bool) {
	l := tr.t.FindLE(uint64(p))
	u := tr.t.FindGT(uint64(p))
	switch {
	case l == nil && u == nil:
		return 0, 0, ReleasedState(), false
	case l == nil:
		return 0, Position(u.Key), ReleasedState(), true
	case u == nil:
		return Position(l.Key), ^Position(0), l.Value.Out, true
	default:
		return Position(l.Key), Position(u.Key), l.Value.Out, true
	}
}

// VisitNodes walks every inflection point in ascending key order,
// exposing the raw (position, change) pairs. Ranges is built on top of
// this; most callers want Ranges instead.
func (tr *VMATree) VisitNodes(f func(pos Position, change IntervalChange) bool) {
	tr.t.VisitInOrder(func(n *treap.Node[IntervalChange]) bool {
		return f(Position(n.Key), n.Value)
	})
}

// Range is one maximal, constant-state interval as seen by a
// traversal of the tree, used by the Reporter's detail map.
type Range struct {
	Lo, Hi Position
	State  IntervalState
}

// Ranges returns every interval with non-Released state, in ascending
// order: one range per node, from its key to the next node's key, with
// the Released gaps between nodes left out.
func (tr *VMATree) Ranges() []Range {
	var ranges []Range
	tr.VisitNodes(func(pos Position, change IntervalChange) bool {
		ranges = append(ranges, Range{Lo: pos, State: change.Out})
		return true
	})
	for i := range ranges {
		if i+1 < len(ranges) {
			ranges[i].Hi = ranges[i+1].Lo
		} else {
			ranges[i].Hi = ^Position(0)
		}
	}
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.State.Type != Released {
			out = append(out, r)
		}
	}
	return out
}
