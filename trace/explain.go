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
	"fmt"
	"strings"

	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/vm"
)

// ExplainProgram runs p in EXPLAIN mode to completion and renders its
// (address, mnemonic, p1, p2, p3-text) row stream (spec §4.6) as
// aligned, human-readable text — the SPEC_FULL "EXPLAIN QUERY
// PLAN-style" renderer, one line per opcode, each column padded to its
// widest entry and a non-empty p3-text appended after four spaces. For
// Transaction/OpenRead/Rewind plus the Halt MakeReady appends:
//
//	0 Transaction 0 1
//	1 OpenRead    0 12
//	2 Rewind      0 3
//	3 Halt        0 0
//
// p must be fresh (StateInit); ExplainProgram calls MakeReady itself
// and the program is not usable for normal execution afterward.
func ExplainProgram(p *vm.Program, nVar int) (string, error) {
	if err := p.MakeReady(nVar, true); err != nil {
		return "", err
	}
	var rows [][5]string
	for {
		res, err := p.Step()
		if err != nil {
			return "", err
		}
		if res == sqlerr.ResultDone {
			break
		}
		if res != sqlerr.ResultRow {
			continue
		}
		row := p.ResultRow()
		if len(row) != 5 {
			return "", sqlerr.ErrInternal.New("explain row did not have 5 columns")
		}
		var r [5]string
		for i, c := range row {
			r[i] = c.String()
		}
		rows = append(rows, r)
	}
	if _, err := p.Finalize(nil); err != nil {
		return "", err
	}
	return formatExplainRows(rows), nil
}

// formatExplainRows aligns the address/mnemonic/p1/p2 columns and
// appends the p3-text column when non-empty, mirroring sqlite's own
// `EXPLAIN` shell output shape closely enough to be immediately
// readable without being a byte-for-byte clone of it.
func formatExplainRows(rows [][5]string) string {
	widths := [4]int{}
	for _, r := range rows {
		for i := 0; i < 4; i++ {
			if len(r[i]) > widths[i] {
				widths[i] = len(r[i])
			}
		}
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%-*s %-*s %-*s %-*s",
			widths[0], r[0], widths[1], r[1], widths[2], r[2], widths[3], r[3])
		if r[4] != "" {
			b.WriteString("    ")
			b.WriteString(r[4])
		}
		b.WriteString("\n")
	}
	return b.String()
}
