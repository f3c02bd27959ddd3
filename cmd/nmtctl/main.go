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

// nmtctl is a small driver for the native memory tracker: it reads
// reserve/commit/uncommit/release/set_tag/summary/detail commands from
// stdin (or a -script file) and prints the resulting reports, the way
// cmd/memtierd drives pkg/memtier interactively for testing.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/intel/native-memory-tracker/pkg/nmt"
	"github.com/intel/native-memory-tracker/pkg/nmt/nmtconfig"
)

func exit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "nmtctl: "+format+"\n", a...)
	os.Exit(1)
}

func main() {
	cfg := nmtconfig.NewDefaultConfig()
	cfg.RegisterFlags(flag.CommandLine)
	script := flag.String("script", "", "read commands from this file instead of stdin")
	flag.Parse()

	if err := cfg.Parse(); err != nil {
		exit("invalid configuration: %v", err)
	}
	if !cfg.Enabled() {
		cfg.Level = nmtconfig.Detail
	}

	tracker := nmt.NewTracker(cfg.Detailed())
	if len(cfg.Tags) > 0 {
		// The tracker registers a tag name on its first use; the names
		// given with -nmt-tags are only listed, not registered here.
		fmt.Fprintf(os.Stderr, "nmtctl: -nmt-tags (registered on first use): %v\n", cfg.Tags)
	}

	in := os.Stdin
	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			exit("opening -script: %v", err)
		}
		defer f.Close()
		in = f
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	p := NewPrompt("nmtctl> ", bufio.NewReader(in), w, tracker)
	for {
		if action := p.Step(); action == paQuit {
			break
		}
	}
}
