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

package trace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tursodatabase/libsql-sub000/vm"
)

func boundProgram(t *testing.T, nVar int, bind func(p *vm.Program)) *vm.Program {
	t.Helper()
	p := vm.Create(nil)
	require.NoError(t, p.MakeReady(nVar, false))
	bind(p)
	return p
}

func TestExpandSubstitutesIntegerAndString(t *testing.T) {
	require := require.New(t)
	p := boundProgram(t, 2, func(p *vm.Program) {
		require.NoError(p.BindInt(1, 42))
		require.NoError(p.BindText(2, "O'Brien", true))
	})

	got, err := Expand("SELECT * FROM t WHERE id = ?1 AND name = ?2", p, nil)
	require.NoError(err)
	require.Equal("SELECT * FROM t WHERE id = 42 AND name = 'O''Brien'", got)
}

func TestExpandAutoIncrementsUnnumberedMarkers(t *testing.T) {
	require := require.New(t)
	p := boundProgram(t, 2, func(p *vm.Program) {
		require.NoError(p.BindInt(1, 1))
		require.NoError(p.BindInt(2, 2))
	})

	got, err := Expand("INSERT INTO t VALUES (?, ?)", p, nil)
	require.NoError(err)
	require.Equal("INSERT INTO t VALUES (1, 2)", got)
}

func TestExpandSkipsMarkersInsideStringLiteralsAndComments(t *testing.T) {
	require := require.New(t)
	p := boundProgram(t, 1, func(p *vm.Program) {
		require.NoError(p.BindInt(1, 7))
	})

	got, err := Expand("SELECT '?', ? -- trailing ?\n FROM t", p, nil)
	require.NoError(err)
	require.Equal("SELECT '?', 7 -- trailing ?\n FROM t", got)
}

func TestExpandRendersNullRealBlobAndZeroBlob(t *testing.T) {
	require := require.New(t)
	p := boundProgram(t, 4, func(p *vm.Program) {
		require.NoError(p.BindNull(1))
		require.NoError(p.BindDouble(2, 3.5))
		require.NoError(p.BindBlob(3, []byte{0xde, 0xad}, true))
		require.NoError(p.BindZeroBlob(4, 16))
	})

	got, err := Expand("?1 ?2 ?3 ?4", p, nil)
	require.NoError(err)
	require.Equal("NULL 3.5 x'dead' zeroblob(16)", got)
}

func TestExpandRejectsOutOfRangeMarker(t *testing.T) {
	require := require.New(t)
	p := boundProgram(t, 1, func(p *vm.Program) {
		require.NoError(p.BindInt(1, 1))
	})

	_, err := Expand("SELECT ?2", p, nil)
	require.Error(err)
}
