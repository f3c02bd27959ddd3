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
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/intel/native-memory-tracker/pkg/nmt/vmatree"
)

// Reporter produces the summary and detail virtual-memory reports by
// reading a Tracker's counters and walking its tree. It never mutates
// the Tracker.
type Reporter struct {
	tr *Tracker
}

// NewReporter returns a Reporter bound to tr.
func NewReporter(tr *Tracker) *Reporter {
	return &Reporter{tr: tr}
}

func toKB(bytes int64) int64 { return bytes / 1024 }

// WriteSummary writes one line per tag with non-zero totals:
// "<tag_name>: reserved=<R>KB committed=<C>KB".
func (rp *Reporter) WriteSummary(w io.Writer) error {
	snap := rp.tr.Snapshot()
	names := make([]string, 0, len(snap))
	for name, c := range snap {
		if c.Reserve != 0 || c.Commit != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		c := snap[name]
		if _, err := fmt.Fprintf(w, "%s: reserved=%dKB committed=%dKB\n", name, toKB(c.Reserve), toKB(c.Commit)); err != nil {
			return err
		}
	}
	return nil
}

// WriteDetail writes the line-oriented detail map: one
// "[0x<base> - 0x<end>) <state> <tag_name> <size>KB" line per maximal
// run of constant (state, tag, stack), followed by its frames.
func (rp *Reporter) WriteDetail(w io.Writer) error {
	var writeErr error
	rp.tr.Walk(func(r vmatree.Range) bool {
		name := rp.tr.TagName(r.State.Data.Tag)
		sizeKB := toKB(int64(r.Hi - r.Lo))
		if _, err := fmt.Fprintf(w, "[0x%x - 0x%x) %s %s %dKB\n", uint64(r.Lo), uint64(r.Hi), r.State.Type, name, sizeKB); err != nil {
			writeErr = err
			return false
		}
		for _, frame := range rp.tr.StackFrames(r.State.Data.StackIdx) {
			if _, err := fmt.Fprintf(w, "    %s\n", frame); err != nil {
				writeErr = err
				return false
			}
		}
		return true
	})
	return writeErr
}

// summaryEntryJSON is one tag's row in the JSON summary report.
type summaryEntryJSON struct {
	Tag            string `json:"tag"`
	ReservedBytes  int64  `json:"reserved_bytes"`
	CommittedBytes int64  `json:"committed_bytes"`
	PeakReserved   int64  `json:"peak_reserved_bytes"`
	PeakCommitted  int64  `json:"peak_committed_bytes"`
}

type summaryJSON struct {
	Status string              `json:"status"`
	Tags   []summaryEntryJSON `json:"tags"`
}

// WriteSummaryJSON writes the summary as JSON, supplementing the
// human-readable line-oriented report with the structured shape a
// monitoring tool or dashboard would want to consume instead.
func (rp *Reporter) WriteSummaryJSON(w io.Writer) error {
	snap := rp.tr.Snapshot()
	out := summaryJSON{Status: rp.tr.Status()}
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := snap[name]
		out.Tags = append(out.Tags, summaryEntryJSON{
			Tag:            name,
			ReservedBytes:  c.Reserve,
			CommittedBytes: c.Commit,
			PeakReserved:   c.PeakReserve,
			PeakCommitted:  c.PeakCommit,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type detailEntryJSON struct {
	Base   uint64   `json:"base"`
	End    uint64   `json:"end"`
	State  string   `json:"state"`
	Tag    string   `json:"tag"`
	Frames []string `json:"frames,omitempty"`
}

type detailJSON struct {
	Regions []detailEntryJSON `json:"regions"`
}

// WriteDetailJSON writes the detail map as JSON.
func (rp *Reporter) WriteDetailJSON(w io.Writer) error {
	out := detailJSON{}
	rp.tr.Walk(func(r vmatree.Range) bool {
		out.Regions = append(out.Regions, detailEntryJSON{
			Base:   uint64(r.Lo),
			End:    uint64(r.Hi),
			State:  r.State.Type.String(),
			Tag:    rp.tr.TagName(r.State.Data.Tag),
			Frames: rp.tr.StackFrames(r.State.Data.StackIdx),
		})
		return true
	})
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
