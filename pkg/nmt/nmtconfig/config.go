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

// Package nmtconfig is the tracker's configuration surface: a single
// level (off/summary/detail) and a set of tag names to pre-register,
// parsed from flags the way cmd/memtierd parses its own options.
package nmtconfig

import (
	"flag"
	"fmt"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Level is how much the tracker records.
type Level int

const (
	// Off disables recording entirely.
	Off Level = iota
	// Summary records per-tag totals only (detailed mode off).
	Summary
	// Detail records per-tag totals and deduplicated call stacks.
	Detail
)

func (l Level) String() string {
	switch l {
	case Off:
		return "off"
	case Summary:
		return "summary"
	case Detail:
		return "detail"
	default:
		return "unknown"
	}
}

func parseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "off", "":
		return Off, nil
	case "summary":
		return Summary, nil
	case "detail", "detailed":
		return Detail, nil
	default:
		return Off, errors.Errorf("invalid tracking level %q", s)
	}
}

// Config is the tracker's parsed configuration.
type Config struct {
	Level Level
	Tags  []string

	levelFlag string
	tagsFlag  string
}

// NewDefaultConfig returns the zero-value configuration: tracking off,
// no pre-registered tags.
func NewDefaultConfig() *Config {
	return &Config{Level: Off}
}

// RegisterFlags wires Config's fields onto fs, matching the
// flag.StringVar-per-option style of cmd/memtierd/main.go.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.levelFlag, "nmt", "off", "native memory tracking level: off, summary, or detail")
	fs.StringVar(&c.tagsFlag, "nmt-tags", "", "comma-separated memory tags to pre-register")
}

// Parse validates the flags RegisterFlags populated and fills in
// Level/Tags. Errors from multiple malformed options are aggregated,
// matching the teacher's pkg/config module-registration style.
func (c *Config) Parse() error {
	var result *multierror.Error

	level, err := parseLevel(c.levelFlag)
	if err != nil {
		result = multierror.Append(result, errors.Wrap(err, "nmt"))
	} else {
		c.Level = level
	}

	c.Tags = nil
	if c.tagsFlag != "" {
		for _, name := range strings.Split(c.tagsFlag, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				result = multierror.Append(result, fmt.Errorf("nmt-tags: empty tag name"))
				continue
			}
			c.Tags = append(c.Tags, name)
		}
	}

	return result.ErrorOrNil()
}

// Detailed reports whether Level calls for deduplicated call-stack
// capture.
func (c *Config) Detailed() bool {
	return c.Level == Detail
}

// Enabled reports whether the tracker should record at all.
func (c *Config) Enabled() bool {
	return c.Level != Off
}
