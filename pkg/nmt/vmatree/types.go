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

// Package vmatree implements the interval map that represents the
// current state of every byte of a process's virtual address space:
// Released, Reserved, or Committed, together with the memory tag and
// call-stack handle attached to each interval.
package vmatree

import (
	"fmt"

	"github.com/intel/native-memory-tracker/pkg/nmt/callstack"
	"github.com/intel/native-memory-tracker/pkg/nmt/tagtable"
)

// Position is a byte address in the tracked address space.
type Position uint64

// StateType is what the process has done with a byte range.
type StateType uint8

const (
	// Released means neither reserved nor committed.
	Released StateType = iota
	// Reserved means the range is claimed but not backed.
	Reserved
	// Committed means physical backing is promised.
	Committed
)

func (s StateType) String() string {
	switch s {
	case Released:
		return "released"
	case Reserved:
		return "reserved"
	case Committed:
		return "committed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// RegionData is the metadata carried by an interval: the memory tag
// and the handle of the call stack that produced it.
type RegionData struct {
	Tag      tagtable.Tag
	StackIdx callstack.StackIndex
}

// EmptyRegionData is the sentinel metadata required on every Released
// interval (spec invariant I5).
var EmptyRegionData = RegionData{Tag: tagtable.None, StackIdx: callstack.Empty}

// Equal reports pairwise equality.
func (d RegionData) Equal(o RegionData) bool {
	return d.Tag == o.Tag && d.StackIdx == o.StackIdx
}

// IntervalState is a state type plus its metadata.
type IntervalState struct {
	Type StateType
	Data RegionData
}

// Equal reports whether two states have the same type and equal
// metadata.
func (s IntervalState) Equal(o IntervalState) bool {
	return s.Type == o.Type && s.Data.Equal(o.Data)
}

// ReleasedState is the identity element: Released with sentinel data.
func ReleasedState() IntervalState {
	return IntervalState{Type: Released, Data: EmptyRegionData}
}

// IntervalChange is the (in, out) pair recorded at one tree node: the
// state of the interval ending at the node's key, and the state of
// the interval starting there.
type IntervalChange struct {
	In  IntervalState
	Out IntervalState
}

// IsNoop reports whether in == out, meaning the node carries no real
// inflection and per invariant I4 must not exist in the tree.
func (c IntervalChange) IsNoop() bool {
	return c.In.Equal(c.Out)
}

// TagDelta is the signed byte delta for one tag within a SummaryDiff.
type TagDelta struct {
	Reserve int64
	Commit  int64
}

// SummaryDiff is the signed per-tag change in reserved/committed bytes
// produced by one RegisterMapping call.
type SummaryDiff struct {
	perTag map[tagtable.Tag]TagDelta
}

// NewSummaryDiff returns an empty diff.
func NewSummaryDiff() SummaryDiff {
	return SummaryDiff{perTag: make(map[tagtable.Tag]TagDelta)}
}

// ForEach calls f once per tag with a non-zero delta.
func (d SummaryDiff) ForEach(f func(tag tagtable.Tag, delta TagDelta)) {
	for tag, delta := range d.perTag {
		if delta.Reserve != 0 || delta.Commit != 0 {
			f(tag, delta)
		}
	}
}

// Get returns the delta recorded for tag (zero value if none).
func (d SummaryDiff) Get(tag tagtable.Tag) TagDelta {
	return d.perTag[tag]
}

func (d SummaryDiff) bump(tag tagtable.Tag, reserve, commit int64) {
	t := d.perTag[tag]
	t.Reserve += reserve
	t.Commit += commit
	d.perTag[tag] = t
}

// subtract removes the accounting contribution of an interval of the
// given length that was in state s, the inverse of add.
func (d SummaryDiff) subtract(s IntervalState, length uint64) {
	d.apply(s, -int64(length))
}

// add records the accounting contribution of an interval of the given
// length newly in state s.
func (d SummaryDiff) add(s IntervalState, length uint64) {
	d.apply(s, int64(length))
}

func (d SummaryDiff) apply(s IntervalState, signedLength int64) {
	switch s.Type {
	case Reserved:
		d.bump(s.Data.Tag, signedLength, 0)
	case Committed:
		d.bump(s.Data.Tag, signedLength, signedLength)
	case Released:
	}
}
