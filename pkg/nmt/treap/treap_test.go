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

package treap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func keysInOrder[V any](t *Treap[V]) []uint64 {
	keys := []uint64{}
	t.VisitInOrder(func(n *Node[V]) bool {
		keys = append(keys, n.Key)
		return true
	})
	return keys
}

func TestUpsertKeepsKeysSorted(t *testing.T) {
	tr := New[string](1)
	for _, k := range []uint64{50, 10, 90, 30, 70, 20} {
		tr.Upsert(k, "v")
	}
	require.Equal(t, []uint64{10, 20, 30, 50, 70, 90}, keysInOrder(tr))
	require.Equal(t, 6, tr.Len())
}

func TestUpsertOverwritesExistingKey(t *testing.T) {
	tr := New[string](2)
	tr.Upsert(10, "first")
	tr.Upsert(10, "second")
	require.Equal(t, 1, tr.Len())
	n := tr.Find(10)
	require.NotNil(t, n)
	require.Equal(t, "second", n.Value)
}

func TestRemove(t *testing.T) {
	tr := New[string](3)
	for _, k := range []uint64{10, 20, 30} {
		tr.Upsert(k, "v")
	}
	tr.Remove(20)
	require.Equal(t, []uint64{10, 30}, keysInOrder(tr))
	tr.Remove(999)
	require.Equal(t, []uint64{10, 30}, keysInOrder(tr))
}

func TestFindLE(t *testing.T) {
	tr := New[string](4)
	for _, k := range []uint64{10, 20, 30} {
		tr.Upsert(k, "v")
	}
	require.Nil(t, tr.FindLE(5))
	n := tr.FindLE(10)
	require.NotNil(t, n)
	require.Equal(t, uint64(10), n.Key)
	n = tr.FindLE(15)
	require.Equal(t, uint64(10), n.Key)
	n = tr.FindLE(30)
	require.Equal(t, uint64(30), n.Key)
	n = tr.FindLE(1000)
	require.Equal(t, uint64(30), n.Key)
}

func TestFindEnclosingRange(t *testing.T) {
	tr := New[string](5)
	for _, k := range []uint64{10, 20, 30} {
		tr.Upsert(k, "v")
	}
	l, u := tr.FindEnclosingRange(15)
	require.Equal(t, uint64(10), l.Key)
	require.Equal(t, uint64(20), u.Key)

	l, u = tr.FindEnclosingRange(100)
	require.Equal(t, uint64(30), l.Key)
	require.Nil(t, u)

	l, u = tr.FindEnclosingRange(1)
	require.Nil(t, l)
	require.Equal(t, uint64(10), u.Key)
}

func TestVisitRangeInOrder(t *testing.T) {
	tr := New[string](6)
	for _, k := range []uint64{10, 20, 30, 40, 50} {
		tr.Upsert(k, "v")
	}
	got := []uint64{}
	tr.VisitRangeInOrder(20, 50, func(n *Node[string]) bool {
		got = append(got, n.Key)
		return true
	})
	require.Equal(t, []uint64{20, 30, 40}, got)
}

func TestVisitRangeInOrderEarlyStop(t *testing.T) {
	tr := New[string](7)
	for _, k := range []uint64{10, 20, 30, 40, 50} {
		tr.Upsert(k, "v")
	}
	got := []uint64{}
	tr.VisitRangeInOrder(0, 1000, func(n *Node[string]) bool {
		got = append(got, n.Key)
		return n.Key != 30
	})
	require.Equal(t, []uint64{10, 20, 30}, got)
}

func TestLargeRandomizedInsertRemainsSorted(t *testing.T) {
	tr := New[int](42)
	seen := map[uint64]bool{}
	g := newLCG(123456789)
	for i := 0; i < 2000; i++ {
		k := g.next() % 10000
		seen[k] = true
		tr.Upsert(k, int(k))
	}
	keys := keysInOrder(tr)
	require.Equal(t, len(seen), len(keys))
	for i := 1; i < len(keys); i++ {
		require.Less(t, keys[i-1], keys[i])
	}
}
