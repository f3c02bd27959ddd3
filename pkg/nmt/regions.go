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

// Package nmt is the Native Memory Tracker: it records every
// reservation, commitment, uncommitment and release of virtual
// address ranges, attributes each range to a memory tag and
// call-site, maintains live per-tag totals, and reports both a
// summary and a detailed virtual-memory map.
package nmt

import (
	"github.com/intel/native-memory-tracker/pkg/nmt/callstack"
	"github.com/intel/native-memory-tracker/pkg/nmt/tagtable"
	"github.com/intel/native-memory-tracker/pkg/nmt/vmatree"
)

// regionsTree is the thin adapter over vmatree.VMATree exposing the
// reserve/commit/uncommit/release/set_tag vocabulary instead of the
// raw register_mapping primitive. It knows about tags and stack
// handles but nothing about tag *names* or stack *capture* - that is
// the Tracker façade's job.
type regionsTree struct {
	tree *vmatree.VMATree
}

func newRegionsTree(seed uint64) *regionsTree {
	return &regionsTree{tree: vmatree.New(seed)}
}

func newRegionsTreeBounded(seed uint64, capacity int) *regionsTree {
	return &regionsTree{tree: vmatree.NewBounded(seed, capacity)}
}

func (r *regionsTree) reserve(addr, size uint64, tag tagtable.Tag, stack callstack.StackIndex) vmatree.SummaryDiff {
	a, b := vmatree.Position(addr), vmatree.Position(addr+size)
	return r.tree.RegisterMapping(a, b, vmatree.Reserved, vmatree.RegionData{Tag: tag, StackIdx: stack}, false)
}

func (r *regionsTree) commit(addr, size uint64, stack callstack.StackIndex) vmatree.SummaryDiff {
	a, b := vmatree.Position(addr), vmatree.Position(addr+size)
	return r.tree.RegisterMapping(a, b, vmatree.Committed, vmatree.RegionData{StackIdx: stack}, true)
}

func (r *regionsTree) uncommit(addr, size uint64, stack callstack.StackIndex) vmatree.SummaryDiff {
	a, b := vmatree.Position(addr), vmatree.Position(addr+size)
	return r.tree.RegisterMapping(a, b, vmatree.Reserved, vmatree.RegionData{StackIdx: stack}, true)
}

func (r *regionsTree) release(addr, size uint64) vmatree.SummaryDiff {
	a, b := vmatree.Position(addr), vmatree.Position(addr+size)
	return r.tree.RegisterMapping(a, b, vmatree.Released, vmatree.EmptyRegionData, false)
}

func (r *regionsTree) setTag(addr, size uint64, tag tagtable.Tag) vmatree.SummaryDiff {
	a, b := vmatree.Position(addr), vmatree.Position(addr+size)
	return r.tree.SetTag(a, b, tag)
}

func (r *regionsTree) ranges() []vmatree.Range {
	return r.tree.Ranges()
}

func (r *regionsTree) len() int {
	return r.tree.Len()
}
