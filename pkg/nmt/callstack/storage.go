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

// Package callstack is a deduplicating, append-only store of captured
// native call stacks. It hands out compact StackIndex handles so that
// VMATree nodes carry a fixed-size value instead of a full stack.
package callstack

import (
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"

	"github.com/intel/native-memory-tracker/pkg/nmt/nmtlog"
)

// DefaultChunkSize is the number of slots per chunk, matching HotSpot's
// own static chunk size for native call stack storage.
const DefaultChunkSize = 256

// MaxFrames bounds how many PCs a single capture records.
const MaxFrames = 32

// StackIndex is the (chunk, slot) handle returned by Push. Two
// indices compare equal iff they denote the same chunk and slot.
type StackIndex struct {
	Chunk uint16
	Slot  uint16
}

// Empty is the sentinel handle: the only legal stack handle on a
// Released interval, and the handle Push always returns when the
// storage is running in summary-only mode.
var Empty = StackIndex{Chunk: 0xFFFF, Slot: 0xFFFF}

// IsEmpty reports whether idx is the sentinel handle.
func (idx StackIndex) IsEmpty() bool { return idx == Empty }

// Stack is a captured, immutable sequence of program counters.
type Stack struct {
	pcs [MaxFrames]uintptr
	n   int
}

// Capture walks the caller's goroutine stack, skipping skip frames
// above Capture itself.
func Capture(skip int) Stack {
	var s Stack
	s.n = runtime.Callers(skip+2, s.pcs[:])
	return s
}

// Equal reports structural equality of the captured PCs. This is
// intentionally PC equality, not equality of resolved symbol names:
// two call sites that happen to symbolicate the same stay distinct.
func (s Stack) Equal(o Stack) bool {
	if s.n != o.n {
		return false
	}
	for i := 0; i < s.n; i++ {
		if s.pcs[i] != o.pcs[i] {
			return false
		}
	}
	return true
}

func (s Stack) hash() uint32 {
	h := fnv.New32a()
	for i := 0; i < s.n; i++ {
		fmt.Fprintf(h, "%x|", s.pcs[i])
	}
	return h.Sum32()
}

// Frames renders the captured stack as one line per frame, "function
// (file:line)" per frame, innermost (most recent) call first, the order
// a detail report prints them in.
func (s Stack) Frames() []string {
	if s.n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(s.pcs[:s.n])
	out := make([]string, 0, s.n)
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line))
		if !more {
			break
		}
	}
	return out
}

func (s Stack) String() string {
	return strings.Join(s.Frames(), "\n    ")
}

type chunk struct {
	slots  []Stack
	filled []bool
}

// Storage is the dedup store. It is not thread-safe on its own; it
// runs under the tracker's NMT lock.
type Storage struct {
	detailed  bool
	chunkSize int
	chunks    []*chunk
}

// NewStorage constructs a storage. When detailed is false, the store
// is inert: every Push returns Empty and it never allocates a chunk.
func NewStorage(detailed bool) *Storage {
	return NewStorageWithChunkSize(detailed, DefaultChunkSize)
}

// NewStorageWithChunkSize is NewStorage with an explicit chunk size,
// mainly for tests that want to exercise chunk growth cheaply.
func NewStorageWithChunkSize(detailed bool, chunkSize int) *Storage {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Storage{detailed: detailed, chunkSize: chunkSize}
}

// Detailed reports whether the storage deduplicates real stacks.
func (s *Storage) Detailed() bool { return s.detailed }

func (s *Storage) newChunk() *chunk {
	return &chunk{
		slots:  make([]Stack, s.chunkSize),
		filled: make([]bool, s.chunkSize),
	}
}

// Push dedups stack into the store and returns its handle. No stack is
// ever evicted once stored.
func (s *Storage) Push(stack Stack) StackIndex {
	if !s.detailed {
		return Empty
	}
	slot := int(stack.hash()) % s.chunkSize
	if slot < 0 {
		slot += s.chunkSize
	}
	for ci, c := range s.chunks {
		if !c.filled[slot] {
			c.slots[slot] = stack
			c.filled[slot] = true
			return StackIndex{Chunk: uint16(ci), Slot: uint16(slot)}
		}
		if c.slots[slot].Equal(stack) {
			return StackIndex{Chunk: uint16(ci), Slot: uint16(slot)}
		}
	}
	c := s.newChunk()
	s.chunks = append(s.chunks, c)
	c.slots[slot] = stack
	c.filled[slot] = true
	nmtlog.Get().Debugf("callstack: grew to %d chunks", len(s.chunks))
	return StackIndex{Chunk: uint16(len(s.chunks) - 1), Slot: uint16(slot)}
}

// Get returns the stack stored at idx. ok is false for the sentinel
// handle or an index never produced by Push.
func (s *Storage) Get(idx StackIndex) (Stack, bool) {
	if idx.IsEmpty() || int(idx.Chunk) >= len(s.chunks) {
		return Stack{}, false
	}
	c := s.chunks[idx.Chunk]
	if int(idx.Slot) >= len(c.filled) || !c.filled[idx.Slot] {
		return Stack{}, false
	}
	return c.slots[idx.Slot], true
}

// Chunks reports how many chunks have been allocated, for tests and
// diagnostics.
func (s *Storage) Chunks() int { return len(s.chunks) }
