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

package compiler

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/catalog"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/storage"
	"github.com/tursodatabase/libsql-sub000/storage/mutex"
	"github.com/tursodatabase/libsql-sub000/vm"
)

func newTestConn(t *testing.T) *vm.Conn {
	t.Helper()
	b, err := storage.Open(filepath.Join(t.TempDir(), "compiler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return vm.NewConn(b, catalog.New(), mutex.NoopMutex{})
}

// runToCompletion drives p to StateHalt, collecting every result row
// along the way, then finalizes it.
func runToCompletion(t *testing.T, p *vm.Program) [][]vm.Cell {
	t.Helper()
	require.NoError(t, p.MakeReady(0, false))
	var rows [][]vm.Cell
	for {
		res, err := p.Step()
		require.NoError(t, err)
		if res == sqlerr.ResultRow {
			row := p.ResultRow()
			cp := make([]vm.Cell, len(row))
			copy(cp, row)
			rows = append(rows, cp)
			continue
		}
		break
	}
	_, err := p.Finalize(nil)
	require.NoError(t, err)
	return rows
}

func intCol(name string) ast.ColumnDef { return ast.ColumnDef{Name: name, Type: "INTEGER"} }

func createTable(t *testing.T, conn *vm.Conn, name string, cols ...ast.ColumnDef) {
	t.Helper()
	c := New(conn)
	p, err := c.CompileCreateTable(&ast.CreateTable{Name: name, Columns: cols})
	require.NoError(t, err)
	runToCompletion(t, p)
}

func intLit(n string) *ast.Expr { return ast.NewLiteral(n, ast.Span{}) }

func insertRow(t *testing.T, conn *vm.Conn, table string, values ...string) {
	t.Helper()
	row := ast.NewExprList()
	for _, v := range values {
		row.Append(intLit(v), "")
	}
	c := New(conn)
	p, err := c.CompileInsert(&ast.Insert{Table: table, Rows: []*ast.ExprList{row}})
	require.NoError(t, err)
	runToCompletion(t, p)
}

// TestInListRewritesToRowHashPastLinearLimit matches spec §8 scenario
// 2: an all-integer IN-list past rowhash.LinearLimit compiles to
// OpInSet rather than an OpEq OR-chain, and the compiled program still
// filters rows correctly.
func TestInListRewritesToRowHashPastLinearLimit(t *testing.T) {
	require := require.New(t)
	conn := newTestConn(t)
	createTable(t, conn, "t", intCol("x"))
	for i := 1; i <= 15; i++ {
		insertRow(t, conn, "t", itoa(i))
	}

	items := ast.NewExprList()
	members := []int{2, 4, 6, 8, 10, 12, 14, 100, 101, 102, 103} // 11 > LinearLimit (10)
	for _, m := range members {
		items.Append(intLit(itoa(m)), "")
	}
	where := &ast.Expr{Op: ast.OpIn, Left: ast.NewColumnRef("x", ast.Span{}), List: items}
	stmt := &ast.Select{
		Result: ast.NewExprList().Append(ast.NewColumnRef("*", ast.Span{}), ""),
		From:   ast.NewSrcList().Append(ast.SrcItem{Table: "t"}),
		Where:  where,
		Limit:  -1, Offset: -1,
	}

	c := New(conn)
	p, err := c.CompileSelect(stmt)
	require.NoError(err)

	sawInSet := false
	for _, op := range programOps(p) {
		if op.Opcode == vm.OpInSet {
			sawInSet = true
		}
	}
	require.True(sawInSet, "expected the IN-list to compile to OpInSet past LinearLimit")

	rows := runToCompletion(t, p)
	require.Len(rows, 7) // {2,4,6,8,10,12,14} ∩ {1..15}; {100,101,102,103} are absent from the table
}

// itoa avoids importing strconv twice across test helpers.
func itoa(n int) string {
	digits := [...]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9'}
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

// programOps exposes a compiled program's opcode list for assertions
// that need to inspect codegen shape directly (e.g. confirming the
// row-hash rewrite fired) rather than only its runtime behavior.
func programOps(p *vm.Program) []vm.Op { return p.Ops() }
