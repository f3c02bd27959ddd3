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

package tagtable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeTagAssignsAndReuses(t *testing.T) {
	tbl := New()
	t1, overflow := tbl.MakeTag("gc-heap")
	require.False(t, overflow)
	require.NotEqual(t, None, t1)

	t2, overflow := tbl.MakeTag("gc-heap")
	require.False(t, overflow)
	require.Equal(t, t1, t2)

	t3, _ := tbl.MakeTag("code-cache")
	require.NotEqual(t, t1, t3)
}

func TestNameRoundTrips(t *testing.T) {
	tbl := New()
	tag, _ := tbl.MakeTag("thread-stack")
	require.Equal(t, "thread-stack", tbl.Name(tag))
	require.Equal(t, "none", tbl.Name(None))
}

func TestLookupMissingName(t *testing.T) {
	tbl := New()
	_, ok := tbl.Lookup("nonexistent")
	require.False(t, ok)
}

func TestTagsExcludesNone(t *testing.T) {
	tbl := New()
	tbl.MakeTag("a")
	tbl.MakeTag("b")
	require.Equal(t, []Tag{1, 2}, tbl.Tags())
}

func TestMakeTagOverflowsOnlyOnce(t *testing.T) {
	tbl := New()
	for i := 0; i < int(MaxTag); i++ {
		_, overflow := tbl.MakeTag(fmt.Sprintf("tag-%d", i))
		require.False(t, overflow, "tag %d should not overflow", i)
	}

	tag, first := tbl.MakeTag("one-too-many")
	require.True(t, first)
	require.Equal(t, None, tag)

	tag, second := tbl.MakeTag("still-one-too-many")
	require.False(t, second, "overflow is reported only once")
	require.Equal(t, None, tag)
}
