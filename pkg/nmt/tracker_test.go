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
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/native-memory-tracker/pkg/nmt/callstack"
	"github.com/intel/native-memory-tracker/pkg/nmt/vmatree"
)

func capture() callstack.Stack {
	return callstack.Capture(0)
}

func TestReserveCommitUncommitRelease(t *testing.T) {
	tr := NewTracker(true)
	tr.Reserve(0, 4096, "gc-heap", capture())
	tr.Commit(0, 2048, capture())

	snap := tr.Snapshot()
	require.Equal(t, int64(4096), snap["gc-heap"].Reserve)
	require.Equal(t, int64(2048), snap["gc-heap"].Commit)

	tr.Uncommit(0, 2048, capture())
	snap = tr.Snapshot()
	require.Equal(t, int64(4096), snap["gc-heap"].Reserve)
	require.Equal(t, int64(0), snap["gc-heap"].Commit)

	tr.Release(0, 4096)
	snap = tr.Snapshot()
	require.Equal(t, int64(0), snap["gc-heap"].Reserve)
	require.Equal(t, "active", tr.Status())
}

func TestSetTagFacade(t *testing.T) {
	tr := NewTracker(false)
	tr.Reserve(0, 1000, "unknown", capture())
	tr.SetTag(100, 200, "code-cache")

	snap := tr.Snapshot()
	require.Equal(t, int64(800), snap["unknown"].Reserve)
	require.Equal(t, int64(200), snap["code-cache"].Reserve)
}

func TestWalkVisitsLiveRangesOnly(t *testing.T) {
	tr := NewTracker(false)
	tr.Reserve(0, 100, "T", capture())
	tr.Reserve(200, 100, "T", capture())
	tr.Release(0, 100)

	var lo []uint64
	tr.Walk(func(r vmatree.Range) bool {
		lo = append(lo, uint64(r.Lo))
		return true
	})
	require.Equal(t, []uint64{200}, lo)
}

func TestZeroSizeOpsAreNoops(t *testing.T) {
	tr := NewTracker(false)
	tr.Reserve(0, 0, "T", capture())
	require.Equal(t, 0, tr.regions.len())
}

func TestSummaryTextReport(t *testing.T) {
	tr := NewTracker(false)
	tr.Reserve(0, 4096, "gc-heap", capture())
	tr.Commit(0, 2048, capture())

	var buf bytes.Buffer
	require.NoError(t, NewReporter(tr).WriteSummary(&buf))
	require.Contains(t, buf.String(), "gc-heap: reserved=4KB committed=2KB")
}

func TestDetailTextReport(t *testing.T) {
	tr := NewTracker(true)
	tr.Reserve(0x1000, 0x1000, "gc-heap", capture())

	var buf bytes.Buffer
	require.NoError(t, NewReporter(tr).WriteDetail(&buf))
	out := buf.String()
	require.True(t, strings.HasPrefix(out, "[0x1000 - 0x2000) reserved gc-heap 4KB\n"))
}

func TestAllocationFailureDropsOperationLeavingTrackerUnchanged(t *testing.T) {
	// Capacity 2 is exactly what the first reservation needs (one node
	// at its start, one at its end), so the allocator is exhausted
	// right after it and the second, disjoint reservation must be
	// dropped before it touches the tree at all.
	tr := NewTrackerWithCapacity(false, 2)
	tr.Reserve(0, 4096, "gc-heap", capture())

	before := tr.Snapshot()
	beforeDropped := tr.Dropped()

	tr.Reserve(8192, 4096, "gc-heap", capture())

	require.Equal(t, before, tr.Snapshot())
	require.Equal(t, beforeDropped+1, tr.Dropped())
	require.Equal(t, "active", tr.Status(), "a dropped operation is not a degraded tree")
}

func TestCommitOfUnalignedRangeStillRecords(t *testing.T) {
	tr := NewTracker(false)
	tr.Reserve(0, 4096, "gc-heap", capture())
	tr.Commit(1, 100, capture())

	snap := tr.Snapshot()
	require.Equal(t, int64(100), snap["gc-heap"].Commit)
}

func TestSummaryJSONReport(t *testing.T) {
	tr := NewTracker(false)
	tr.Reserve(0, 4096, "gc-heap", capture())

	var buf bytes.Buffer
	require.NoError(t, NewReporter(tr).WriteSummaryJSON(&buf))
	require.Contains(t, buf.String(), `"tag": "gc-heap"`)
	require.Contains(t, buf.String(), `"status": "active"`)
}
