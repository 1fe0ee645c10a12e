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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/catalog"
	"github.com/tursodatabase/libsql-sub000/record"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/vm"
)

// execStmt drives p to completion and performs the same whole-
// transaction commit/rollback engine.go's Exec does around a compiled
// statement (runToCompletion, used by the rest of this package's
// tests, only resets the program — it never touches the backend
// transaction, which is fine for a single compiled statement per test
// but not for the multi-statement sequences index maintenance needs).
func execStmt(t *testing.T, conn *vm.Conn, p *vm.Program) ([][]vm.Cell, error) {
	t.Helper()
	require.NoError(t, p.MakeReady(0, false))
	var rows [][]vm.Cell
	for {
		res, err := p.Step()
		if err != nil {
			p.Finalize(err)
			conn.Backend.Rollback()
			return rows, err
		}
		if res == sqlerr.ResultRow {
			row := p.ResultRow()
			cp := make([]vm.Cell, len(row))
			copy(cp, row)
			rows = append(rows, cp)
			continue
		}
		break
	}
	if _, err := p.Finalize(nil); err != nil {
		return rows, err
	}
	if err := conn.Backend.Commit(); err != nil {
		return rows, err
	}
	return rows, nil
}

func execOK(t *testing.T, conn *vm.Conn, p *vm.Program) [][]vm.Cell {
	t.Helper()
	rows, err := execStmt(t, conn, p)
	require.NoError(t, err)
	return rows
}

func createIndexedTable(t *testing.T, conn *vm.Conn, table string, unique bool, indexCol string) {
	t.Helper()
	c := New(conn)
	p, err := c.CompileCreateTable(&ast.CreateTable{
		Name:    table,
		Columns: []ast.ColumnDef{intCol("id"), intCol(indexCol)},
	})
	require.NoError(t, err)
	execOK(t, conn, p)

	c = New(conn)
	p, err = c.CompileCreateIndex(&ast.CreateIndex{
		Name:    "idx_" + table + "_" + indexCol,
		Table:   table,
		Columns: []string{indexCol},
		Unique:  unique,
	})
	require.NoError(t, err)
	execOK(t, conn, p)
}

func insertTwoInts(t *testing.T, conn *vm.Conn, table, a, b string) ([][]vm.Cell, error) {
	t.Helper()
	row := ast.NewExprList()
	row.Append(intLit(a), "")
	row.Append(intLit(b), "")
	c := New(conn)
	p, err := c.CompileInsert(&ast.Insert{Table: table, Rows: []*ast.ExprList{row}})
	require.NoError(t, err)
	return execStmt(t, conn, p)
}

func eqPredicate(col, lit string) *ast.Expr {
	return &ast.Expr{Op: ast.OpEq, Left: ast.NewColumnRef(col, ast.Span{}), Right: intLit(lit)}
}

func updateWhereID(t *testing.T, conn *vm.Conn, table, setCol, setVal, whereID string) {
	t.Helper()
	c := New(conn)
	p, err := c.CompileUpdate(&ast.Update{
		Table: table,
		Set:   []ast.UpdateSet{{Column: setCol, Value: intLit(setVal)}},
		Where: eqPredicate("id", whereID),
	})
	require.NoError(t, err)
	execOK(t, conn, p)
}

func deleteWhereID(t *testing.T, conn *vm.Conn, table, whereID string) {
	t.Helper()
	c := New(conn)
	p, err := c.CompileDelete(&ast.Delete{Table: table, Where: eqPredicate("id", whereID)})
	require.NoError(t, err)
	execOK(t, conn, p)
}

// indexRowids opens a raw cursor over idx's storage root and decodes
// every entry's trailing rowid field, the same way vmCursor.idxRowid
// does — a direct, compiler-independent check that codeIndexMaintenance
// left exactly the entries it should have.
func indexRowids(t *testing.T, conn *vm.Conn, idx *catalog.Index) []int64 {
	t.Helper()
	cur, err := conn.Backend.OpenCursor(idx.RootPage, false)
	require.NoError(t, err)
	defer cur.Close()

	var out []int64
	ok, err := cur.First()
	require.NoError(t, err)
	for ok {
		key, err := cur.Key()
		require.NoError(t, err)
		rowid, err := record.RowidFromIndexKey(key, len(idx.Columns))
		require.NoError(t, err)
		out = append(out, rowid)
		ok, err = cur.Next()
		require.NoError(t, err)
	}
	return out
}

// TestIndexMaintenanceTracksInsertUpdateDelete matches the reviewer's
// Finding 2 (spec §3 Index entity, §4.5's "for each index, build key,
// OP_IdxInsert" sequence): an index's entries stay in lockstep with
// INSERT/UPDATE/DELETE on the indexed table, not just the table's own
// rows.
func TestIndexMaintenanceTracksInsertUpdateDelete(t *testing.T) {
	require := require.New(t)
	conn := newTestConn(t)
	createIndexedTable(t, conn, "t", false, "val")
	idx, ok := conn.Catalog.FindIndex("idx_t_val")
	require.True(ok)

	_, err := insertTwoInts(t, conn, "t", "1", "10")
	require.NoError(err)
	_, err = insertTwoInts(t, conn, "t", "2", "20")
	require.NoError(err)
	_, err = insertTwoInts(t, conn, "t", "3", "30")
	require.NoError(err)
	require.ElementsMatch([]int64{1, 2, 3}, indexRowids(t, conn, idx))

	updateWhereID(t, conn, "t", "val", "99", "2")
	require.ElementsMatch([]int64{1, 2, 3}, indexRowids(t, conn, idx),
		"UPDATE must replace row 2's old index entry, not duplicate or drop it")

	deleteWhereID(t, conn, "t", "1")
	require.ElementsMatch([]int64{2, 3}, indexRowids(t, conn, idx))
}

// TestUniqueIndexRejectsDuplicateValue matches spec §8's UNIQUE-
// violation scenario: a second row whose indexed column collides with
// an existing entry raises sqlerr.ErrConstraint instead of silently
// inserting a duplicate key, and the index is left with just the
// original row's entry once the failed statement's transaction rolls back.
func TestUniqueIndexRejectsDuplicateValue(t *testing.T) {
	require := require.New(t)
	conn := newTestConn(t)
	createIndexedTable(t, conn, "u", true, "val")
	idx, ok := conn.Catalog.FindIndex("idx_u_val")
	require.True(ok)

	_, err := insertTwoInts(t, conn, "u", "1", "5")
	require.NoError(err)

	_, err = insertTwoInts(t, conn, "u", "2", "5")
	require.Error(err)
	require.True(sqlerr.IsConstraint(err), "expected a constraint violation, got %v", err)

	require.Equal([]int64{1}, indexRowids(t, conn, idx))
}
