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

package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intel/native-memory-tracker/pkg/nmt"
)

func runScript(t *testing.T, script string) string {
	t.Helper()
	tr := nmt.NewTracker(false)
	var out bytes.Buffer
	p := NewPrompt("", bufio.NewReader(strings.NewReader(script)), bufio.NewWriter(&out), tr)
	for {
		if p.Step() == paQuit {
			break
		}
	}
	return out.String()
}

func TestReserveCommitSummary(t *testing.T) {
	out := runScript(t, "reserve 0x1000 4096 gc-heap\ncommit 0x1000 2048\nsummary\nquit\n")
	require.Contains(t, out, "gc-heap: reserved=4KB committed=2KB")
}

func TestUnknownCommandReportsError(t *testing.T) {
	out := runScript(t, "bogus\nquit\n")
	require.Contains(t, out, "unknown command")
}

func TestBadAddressReportsError(t *testing.T) {
	out := runScript(t, "reserve not-hex 4096 gc-heap\nquit\n")
	require.Contains(t, out, "bad address")
}

func TestReleaseClearsSummary(t *testing.T) {
	out := runScript(t, "reserve 0x2000 4096 code-cache\nrelease 0x2000 4096\nsummary\nquit\n")
	require.NotContains(t, out, "code-cache")
}

func TestStatusReportsActive(t *testing.T) {
	out := runScript(t, "status\nquit\n")
	require.Contains(t, out, "active")
}
