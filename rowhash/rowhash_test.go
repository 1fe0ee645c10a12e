// Copyright 2020-2021 Dolthub, Inc.
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

package rowhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearFallbackBelowThreshold(t *testing.T) {
	require := require.New(t)
	var h RowHash
	for i := int64(1); i <= 5; i++ {
		h.Insert(i)
	}
	require.True(h.Test(1, 3))
	require.False(h.Test(1, 99))
	require.Nil(h.tree)
}

func TestTreeBuildAboveThreshold(t *testing.T) {
	require := require.New(t)
	var h RowHash
	for i := int64(1); i <= 50; i++ {
		h.Insert(i)
	}
	require.True(h.Test(1, 1))
	require.True(h.Test(1, 50))
	require.False(h.Test(1, 9999))
	require.NotNil(h.tree)
}

// TestMembershipInvariant is spec §8's row-hash invariant: after any
// sequence of inserts and any Test call, Test(V) returns true iff some
// Insert(V) preceded the most recent rebuild for the same set-id.
func TestMembershipInvariant(t *testing.T) {
	require := require.New(t)
	var h RowHash
	inserted := map[int64]bool{}
	for i := int64(0); i < 500; i++ {
		v := i * 7 % 113
		h.Insert(v)
		inserted[v] = true
	}
	for v := int64(0); v < 200; v++ {
		require.Equal(inserted[v], h.Test(1, v), "v=%d", v)
	}
}

func TestRebuildOnSetIDChangeObservesNewInserts(t *testing.T) {
	require := require.New(t)
	var h RowHash
	for i := int64(0); i < 20; i++ {
		h.Insert(i)
	}
	require.True(h.Test(1, 5))
	h.Insert(999)
	// same set-id: tree is stale, does not yet see the new insert.
	require.False(h.Test(1, 999))
	// new set-id: forces a rebuild from the now-grown block list.
	require.True(h.Test(2, 999))
}

func TestBlockAllocationBoundary(t *testing.T) {
	require := require.New(t)
	var h RowHash
	for i := int64(0); i < entriesPerBlock+10; i++ {
		h.Insert(i)
	}
	require.Equal(entriesPerBlock+10, h.Len())
	blocks := 0
	for b := h.head; b != nil; b = b.next {
		blocks++
	}
	require.Equal(2, blocks)
}
