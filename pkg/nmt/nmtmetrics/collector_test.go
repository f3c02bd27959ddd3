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

package nmtmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/intel/native-memory-tracker/pkg/nmt"
	"github.com/intel/native-memory-tracker/pkg/nmt/callstack"
)

func TestCollectorRegistersAndGathers(t *testing.T) {
	tr := nmt.NewTracker(false)
	tr.Reserve(0, 4096, "gc-heap", callstack.Capture(0))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, Register(reg, tr))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["nmt_reserved_bytes"], "expected nmt_reserved_bytes metric family")
	require.True(t, names["nmt_tag_overflow"], "expected nmt_tag_overflow metric family")
}
