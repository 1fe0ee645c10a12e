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

package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareNulls(t *testing.T) {
	require := require.New(t)
	require.Equal(0, Compare(Null, Null, nil))
	require.Equal(-1, Compare(Null, NewInt(1), nil))
	require.Equal(1, Compare(NewInt(1), Null, nil))
}

func TestCompareNumericVsText(t *testing.T) {
	require := require.New(t)
	require.Equal(-1, Compare(NewInt(5), NewText("5"), nil))
	require.Equal(1, Compare(NewText("5"), NewInt(5), nil))
}

func TestCompareNumerics(t *testing.T) {
	require := require.New(t)
	require.Equal(-1, Compare(NewInt(1), NewInt(2), nil))
	require.Equal(0, Compare(NewInt(2), NewReal(2.0), nil))
	require.Equal(-1, Compare(NewReal(1.5), NewInt(2), nil))
}

func TestCompareTextVsBlob(t *testing.T) {
	require := require.New(t)
	require.Equal(-1, Compare(NewText("a"), NewBlob([]byte("a")), nil))
}

func TestCompareTextTieBreakByLength(t *testing.T) {
	require := require.New(t)
	require.True(Compare(NewText("ab"), NewText("abc"), nil) < 0)
	require.True(Compare(NewText("abc"), NewText("ab"), nil) > 0)
}

// TestKeyCompareFirstNonEqualColumn exercises the invariant from
// spec §8: "For every pair of records (A,B): the sign of
// key_compare(A,B) equals the sign of the first non-equal per-column
// comparison, or 0 if equal through the common prefix and the
// trailing rowid."
func TestKeyCompareFirstNonEqualColumn(t *testing.T) {
	require := require.New(t)
	ki := &KeyInfo{NFields: 2}
	a := Encode([]Value{NewInt(1), NewInt(5), NewInt(100)})
	b := Encode([]Value{NewInt(1), NewInt(9), NewInt(1)})
	c, err := CompareIndexKey(a, b, ki, false)
	require.NoError(err)
	require.Equal(-1, c)
}

func TestKeyCompareEqualKeysTrailingRowid(t *testing.T) {
	require := require.New(t)
	ki := &KeyInfo{NFields: 1}
	a := Encode([]Value{NewInt(7), NewInt(10)})
	b := Encode([]Value{NewInt(7), NewInt(20)})
	c, err := CompareIndexKey(a, b, ki, false)
	require.NoError(err)
	require.Equal(-1, c)

	eq := Encode([]Value{NewInt(7), NewInt(10)})
	c, err = CompareIndexKey(a, eq, ki, false)
	require.NoError(err)
	require.Equal(0, c)
}

func TestKeyCompareDescending(t *testing.T) {
	require := require.New(t)
	ki := &KeyInfo{NFields: 1, Desc: []bool{true}}
	a := Encode([]Value{NewInt(1), NewInt(1)})
	b := Encode([]Value{NewInt(2), NewInt(1)})
	c, err := CompareIndexKey(a, b, ki, false)
	require.NoError(err)
	require.Equal(1, c) // descending: 1 > 2 under desc flag
}
