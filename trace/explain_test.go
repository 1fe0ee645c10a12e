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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tursodatabase/libsql-sub000/vm"
)

func TestExplainProgramRendersOneLinePerOpcode(t *testing.T) {
	require := require.New(t)
	p := vm.Create(nil)
	_, err := p.AddOp(vm.OpTransaction, 0, 1)
	require.NoError(err)
	_, err = p.AddOp(vm.OpOpenRead, 0, 12)
	require.NoError(err)
	_, err = p.AddOp(vm.OpHalt, 0, 0)
	require.NoError(err)

	out, err := ExplainProgram(p, 0)
	require.NoError(err)

	// MakeReady always appends its own trailing Halt (vm/program.go),
	// on top of the one this program already ends with — harmless at
	// runtime (unreachable after the first Halt halts the machine) but
	// it does mean the explain dump has one more row than ops added
	// here.
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(lines, 4)
	require.Contains(lines[0], "Transaction")
	require.Contains(lines[1], "OpenRead")
	require.Contains(lines[2], "Halt")
	require.Contains(lines[3], "Halt")
}
