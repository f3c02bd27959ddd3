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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/intel/native-memory-tracker/pkg/nmt"
	"github.com/intel/native-memory-tracker/pkg/nmt/callstack"
)

// Prompt reads one command per line and drives tracker, the way
// cmd/memtierd's Prompt drives a Mover from parsed command lines.
type Prompt struct {
	r        *bufio.Reader
	w        *bufio.Writer
	tracker  *nmt.Tracker
	reporter *nmt.Reporter
	ps1      string
	lineno   int
}

type promptAction int

const (
	paCommandOk promptAction = iota
	paCommandError
	paQuit
)

// NewPrompt returns a Prompt reading from r, writing prompts and
// command output to w, and driving tracker.
func NewPrompt(ps1 string, r *bufio.Reader, w *bufio.Writer, tracker *nmt.Tracker) *Prompt {
	return &Prompt{r: r, w: w, tracker: tracker, reporter: nmt.NewReporter(tracker), ps1: ps1}
}

func (p *Prompt) output(format string, a ...interface{}) {
	fmt.Fprintf(p.w, format, a...)
	p.w.Flush()
}

// Step reads and runs a single command, returning paQuit once the
// input is exhausted or a "quit"/"exit" command is seen.
func (p *Prompt) Step() promptAction {
	p.output("%s", p.ps1)
	line, err := p.r.ReadString('\n')
	if err != nil && line == "" {
		if err != io.EOF {
			p.output("read error: %v\n", err)
		}
		return paQuit
	}
	p.lineno++

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return paCommandOk
	}
	if strings.HasPrefix(fields[0], "#") {
		return paCommandOk
	}

	cmd := fields[0]
	args := fields[1:]
	if err := p.dispatch(cmd, args); err != nil {
		p.output("line %d: %v\n", p.lineno, err)
		return paCommandError
	}
	if cmd == "quit" || cmd == "exit" {
		return paQuit
	}
	return paCommandOk
}

func parseAddr(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
}

func parseSize(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func (p *Prompt) dispatch(cmd string, args []string) error {
	switch cmd {
	case "reserve":
		return p.cmdReserve(args)
	case "commit":
		return p.cmdCommit(args)
	case "uncommit":
		return p.cmdUncommit(args)
	case "release":
		return p.cmdRelease(args)
	case "set_tag":
		return p.cmdSetTag(args)
	case "summary":
		return p.reporter.WriteSummary(p.w)
	case "detail":
		return p.reporter.WriteDetail(p.w)
	case "status":
		p.output("%s\n", p.tracker.Status())
		return nil
	case "quit", "exit":
		return nil
	case "help":
		p.output("commands: reserve <addr> <size> <tag>, commit <addr> <size>, uncommit <addr> <size>,\n" +
			"          release <addr> <size>, set_tag <addr> <size> <tag>, summary, detail, status, quit\n")
		return nil
	default:
		return fmt.Errorf("unknown command %q, try \"help\"", cmd)
	}
}

func (p *Prompt) cmdReserve(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: reserve <addr> <size> <tag>")
	}
	addr, size, err := addrSize(args[0], args[1])
	if err != nil {
		return err
	}
	p.tracker.Reserve(addr, size, args[2], callstack.Capture(0))
	return nil
}

func (p *Prompt) cmdCommit(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: commit <addr> <size>")
	}
	addr, size, err := addrSize(args[0], args[1])
	if err != nil {
		return err
	}
	p.tracker.Commit(addr, size, callstack.Capture(0))
	return nil
}

func (p *Prompt) cmdUncommit(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: uncommit <addr> <size>")
	}
	addr, size, err := addrSize(args[0], args[1])
	if err != nil {
		return err
	}
	p.tracker.Uncommit(addr, size, callstack.Capture(0))
	return nil
}

func (p *Prompt) cmdRelease(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: release <addr> <size>")
	}
	addr, size, err := addrSize(args[0], args[1])
	if err != nil {
		return err
	}
	p.tracker.Release(addr, size)
	return nil
}

func (p *Prompt) cmdSetTag(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: set_tag <addr> <size> <tag>")
	}
	addr, size, err := addrSize(args[0], args[1])
	if err != nil {
		return err
	}
	p.tracker.SetTag(addr, size, args[2])
	return nil
}

func addrSize(addrStr, sizeStr string) (uint64, uint64, error) {
	addr, err := parseAddr(addrStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad address %q: %w", addrStr, err)
	}
	size, err := parseSize(sizeStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad size %q: %w", sizeStr, err)
	}
	return addr, size, nil
}
