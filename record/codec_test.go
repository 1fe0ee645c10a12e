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

func TestEncodeDecodeRoundTrip(t *testing.T) {
	require := require.New(t)
	row := []Value{
		Null,
		NewInt(42),
		NewReal(3.14),
		NewText("hello"),
		NewBlob([]byte{0x01, 0x02}),
	}
	data := Encode(row)
	got, err := Decode(data)
	require.NoError(err)
	require.Equal(row, got)
}

func TestSerialTypesScenario1(t *testing.T) {
	// Concrete scenario 1 from spec §8: encode (NULL, 42, 3.14,
	// "hello", x'0102') and expect serial types 6,1,5,23,16 with
	// payload sizes 0,1,8,5,2 (per this repo's SerialType formula:
	// text is serialFirstN+1+2*len, not sqlite's own numbering).
	require := require.New(t)
	row := []Value{Null, NewInt(42), NewReal(3.14), NewText("hello"), NewBlob([]byte{1, 2})}
	wantSerials := []uint64{6, 1, 5, 23, 16}
	wantLens := []int{0, 1, 8, 5, 2}
	for i, v := range row {
		st, pl := SerialType(v)
		require.Equal(wantSerials[i], st, "column %d serial type", i)
		require.Equal(wantLens[i], pl, "column %d payload length", i)
	}
}

func TestSerialTypeIntWidths(t *testing.T) {
	require := require.New(t)
	cases := []struct {
		v          int64
		wantSerial uint64
		wantLen    int
	}{
		{0, 1, 1},
		{127, 1, 1},
		{128, 2, 2},
		{32767, 2, 2},
		{32768, 3, 4},
		{1 << 33, 4, 8},
		{-1, 1, 1},
	}
	for _, c := range cases {
		st, pl := SerialType(NewInt(c.v))
		require.Equal(c.wantSerial, st, "value %d", c.v)
		require.Equal(c.wantLen, pl, "value %d", c.v)
	}
}

func TestDecodeEmpty(t *testing.T) {
	require := require.New(t)
	got, err := Decode(nil)
	require.NoError(err)
	require.Nil(got)
}

func TestRowidFromIndexKey(t *testing.T) {
	require := require.New(t)
	row := []Value{NewText("alice"), NewInt(17)}
	data := Encode(row)
	rowid, err := RowidFromIndexKey(data, 1)
	require.NoError(err)
	require.Equal(int64(17), rowid)
}
