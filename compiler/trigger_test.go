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
	"github.com/tursodatabase/libsql-sub000/vm"
)

// TestTriggerStackGuardsSelfRecursion is a direct unit test of the C8
// recursion guard in isolation: onTriggerStack reports a trigger name
// only between its pushTrigger and popTrigger, which is what lets
// codeRowTriggers refuse to enter a trigger already being coded.
func TestTriggerStackGuardsSelfRecursion(t *testing.T) {
	require := require.New(t)
	c := New(nil)

	require.False(c.onTriggerStack("t_after_ins"))
	c.pushTrigger("t_after_ins")
	require.True(c.onTriggerStack("t_after_ins"))
	c.popTrigger()
	require.False(c.onTriggerStack("t_after_ins"))
}

// selfInsertingTrigger builds an AFTER INSERT trigger on table "t"
// whose single step inserts another row into "t" — the spec §8
// scenario 6 shape that would recurse forever without the guard in
// codeRowTriggers.
func selfInsertingTrigger(tableName string) *ast.Trigger {
	row := ast.NewExprList().Append(ast.NewLiteral("0", ast.Span{}), "")
	return &ast.Trigger{
		Name:        "t_after_ins",
		Table:       tableName,
		Event:       ast.TriggerInsert,
		Timing:      ast.TriggerAfter,
		Granularity: ast.TriggerRow,
		Steps: &ast.TriggerStep{
			Op:     ast.StepInsert,
			Table:  tableName,
			Values: row,
		},
	}
}

// TestCodeRowTriggersStopsSelfRecursion matches spec §8 scenario 6 at
// the compiler level: coding a self-referencing AFTER INSERT trigger
// must terminate (the recursion guard must skip the second,
// would-be-recursive firing) and the resulting program must contain
// exactly one extra OpInsert for the trigger's own body, not an
// unbounded chain.
func TestCodeRowTriggersStopsSelfRecursion(t *testing.T) {
	require := require.New(t)
	conn := newTestConn(t)
	createTable(t, conn, "t", intCol("x"))

	tbl, ok := conn.Catalog.FindTable("t")
	require.True(ok)
	tbl.Triggers = append(tbl.Triggers, selfInsertingTrigger("t"))

	c := New(conn)
	p, err := c.CompileInsert(&ast.Insert{
		Table: "t",
		Rows:  []*ast.ExprList{ast.NewExprList().Append(intLit("1"), "")},
	})
	require.NoError(err)

	insertCount := 0
	for _, op := range p.Ops() {
		if op.Opcode == vm.OpInsert {
			insertCount++
		}
	}
	// One OpInsert for the statement's own row, one for the trigger
	// body's single firing; the guard prevents a third (recursive) one.
	require.Equal(2, insertCount)

	runToCompletion(t, p)

	sel := New(conn)
	selProg, err := sel.CompileSelect(&ast.Select{
		Result: ast.NewExprList().Append(ast.NewColumnRef("*", ast.Span{}), ""),
		From:   ast.NewSrcList().Append(ast.SrcItem{Table: "t"}),
		Limit:  -1, Offset: -1,
	})
	require.NoError(err)
	rows := runToCompletion(t, selProg)
	require.Len(rows, 2)
}
