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
	"strconv"

	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/catalog"
	"github.com/tursodatabase/libsql-sub000/rowhash"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/vm"
)

// CompileSelect lowers a single-table, non-compound SELECT into a
// rewind/scan/filter/project loop. Joins, subqueries in FROM (the
// flattener's job, flatten.go), GROUP BY/aggregates, ORDER BY, and
// compound operators are not yet supported — each rejects with
// ErrMisuse rather than silently ignoring the clause.
func (c *Compiler) CompileSelect(stmt *ast.Select) (*vm.Program, error) {
	if stmt.IsCompound() {
		return nil, sqlerr.ErrMisuse.New("compound SELECT is not yet supported")
	}

	// Flatten any FROM-clause subquery the 21 guards (spec §4.5) permit
	// before checking shape: the common case (§8 scenario 3) collapses
	// to a single-table FROM this compiler can then compile normally.
	stmt = c.Flatten(stmt)

	if stmt.From == nil || stmt.From.Len() != 1 {
		return nil, sqlerr.ErrMisuse.New("only a single-table FROM is supported")
	}
	src := stmt.From.Items[0]
	if src.Subquery != nil {
		return nil, sqlerr.ErrMisuse.New("FROM-clause subqueries require flattening first")
	}
	if stmt.GroupBy.Len() > 0 || stmt.IsAggregate() {
		return nil, sqlerr.ErrMisuse.New("GROUP BY / aggregates are not yet supported")
	}
	if stmt.OrderBy.Len() > 0 {
		return nil, sqlerr.ErrMisuse.New("ORDER BY is not yet supported")
	}
	if stmt.Distinct {
		return nil, sqlerr.ErrMisuse.New("DISTINCT is not yet supported")
	}

	t, err := c.findTable(src.Table)
	if err != nil {
		return nil, err
	}
	cols, err := c.resolveResultColumns(stmt, t)
	if err != nil {
		return nil, err
	}

	p := c.newProgram()
	cur := c.allocCursor()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpOpenRead, cur, int(t.RootPage)); err != nil {
		return nil, err
	}

	loopTop := p.MakeLabel()
	doneLabel := p.MakeLabel()
	if _, err := p.AddOp(vm.OpRewind, cur, doneLabel); err != nil {
		return nil, err
	}
	if err := p.ResolveLabel(loopTop); err != nil {
		return nil, err
	}

	skip := p.MakeLabel()
	if stmt.Where != nil {
		if err := c.compilePredicateSkip(p, t, cur, stmt.Where, skip); err != nil {
			return nil, err
		}
	}

	base := 0
	for i, rc := range cols {
		reg := c.allocReg()
		if i == 0 {
			base = reg
		}
		if err := c.emitResultColumn(p, t, cur, rc, reg); err != nil {
			return nil, err
		}
	}
	if _, err := p.AddOp(vm.OpResultRow, base, len(cols)); err != nil {
		return nil, err
	}

	if err := p.ResolveLabel(skip); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpNext, cur, loopTop); err != nil {
		return nil, err
	}
	if err := p.ResolveLabel(doneLabel); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpClose, cur, 0); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpHalt, 0, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// resolveResultColumns expands a bare `*` result column into one
// per-column entry (in table order); any other result list passes
// through unchanged.
func (c *Compiler) resolveResultColumns(stmt *ast.Select, t *catalog.Table) ([]*ast.ExprListItem, error) {
	if stmt.Result == nil || stmt.Result.Len() == 0 {
		return nil, sqlerr.ErrMisuse.New("SELECT requires a result column list")
	}
	if stmt.Result.Len() == 1 {
		e := stmt.Result.Items[0].Expr
		if e != nil && e.Op == ast.OpColumnRef && e.Token == "*" {
			out := make([]*ast.ExprListItem, len(t.Columns))
			for i, col := range t.Columns {
				out[i] = &ast.ExprListItem{Expr: ast.NewColumnRef(col.Name, ast.Span{}), Name: col.Name}
			}
			return out, nil
		}
	}
	out := make([]*ast.ExprListItem, len(stmt.Result.Items))
	for i := range stmt.Result.Items {
		out[i] = &stmt.Result.Items[i]
	}
	return out, nil
}

// emitResultColumn loads one projected value into reg: a plain column
// reference, a literal constant, or a bound host parameter. Computed
// expressions (arithmetic, function calls) aren't wired into
// result-column codegen yet.
func (c *Compiler) emitResultColumn(p *vm.Program, t *catalog.Table, cur int, item *ast.ExprListItem, reg int) error {
	e := item.Expr
	if e == nil {
		return sqlerr.ErrMisuse.New("empty result column")
	}
	switch e.Op {
	case ast.OpColumnRef:
		pos := t.ColumnIndex(e.Token)
		if pos < 0 {
			return sqlerr.ErrNotFound.New("no such column: " + e.Token)
		}
		_, err := p.Op3(vm.OpColumn, cur, pos, reg, vm.P3NotUsed)
		return err
	case ast.OpLiteral, ast.OpVariable:
		return c.compileValue(p, e, reg)
	default:
		return sqlerr.ErrMisuse.New("unsupported result expression")
	}
}

// flattenAnd splits a WHERE tree along its top-level AND nodes into
// the list of conjuncts compilePredicateSkip evaluates independently.
func flattenAnd(e *ast.Expr) []*ast.Expr {
	if e == nil {
		return nil
	}
	if e.Op == ast.OpAnd {
		return append(flattenAnd(e.Left), flattenAnd(e.Right)...)
	}
	return []*ast.Expr{e}
}

// compilePredicateSkip emits code that falls through when the current
// row satisfies where and jumps to skipLabel otherwise. where must be
// an AND-chain of `column = literal` and `column IN (literal, ...)`
// tests — the predicate shapes this compiler's restricted evaluator
// supports pending a full tree-walking expression evaluator.
func (c *Compiler) compilePredicateSkip(p *vm.Program, t *catalog.Table, cur int, where *ast.Expr, skipLabel int) error {
	for _, conj := range flattenAnd(where) {
		switch conj.Op {
		case ast.OpEq:
			if err := c.compileEqConjunct(p, t, cur, conj, skipLabel); err != nil {
				return err
			}
		case ast.OpIn:
			if err := c.compileInConjunct(p, t, cur, conj, skipLabel); err != nil {
				return err
			}
		default:
			return sqlerr.ErrMisuse.New("only column = literal and column IN (...) predicates are supported")
		}
	}
	return nil
}

func (c *Compiler) compileEqConjunct(p *vm.Program, t *catalog.Table, cur int, conj *ast.Expr, skipLabel int) error {
	if conj.Left == nil || conj.Right == nil {
		return sqlerr.ErrMisuse.New("malformed equality predicate")
	}
	col, lit := conj.Left, conj.Right
	if col.Op != ast.OpColumnRef {
		col, lit = lit, col
	}
	if col.Op != ast.OpColumnRef || (lit.Op != ast.OpLiteral && lit.Op != ast.OpVariable) {
		return sqlerr.ErrMisuse.New("only column = literal/parameter predicates are supported here")
	}
	pos := t.ColumnIndex(col.Token)
	if pos < 0 {
		return sqlerr.ErrNotFound.New("no such column: " + col.Token)
	}

	lhs := c.allocReg()
	if _, err := p.Op3(vm.OpColumn, cur, pos, lhs, vm.P3NotUsed); err != nil {
		return err
	}
	rhs := c.allocReg()
	if err := c.compileValue(p, lit, rhs); err != nil {
		return err
	}
	_, err := p.Op3(vm.OpNe, lhs, skipLabel, rhs, vm.P3NotUsed)
	return err
}

// compileInConjunct implements spec §8 scenario 2: a small or
// non-integer constant set rewrites into an equality-branch OR chain;
// an all-integer set past rowhash.LinearLimit instead builds a
// row-hash engine at compile time and tests membership through
// vm.OpInSet, avoiding an O(n) chain at every row.
func (c *Compiler) compileInConjunct(p *vm.Program, t *catalog.Table, cur int, conj *ast.Expr, skipLabel int) error {
	col := conj.Left
	if col == nil || col.Op != ast.OpColumnRef {
		return sqlerr.ErrMisuse.New("IN requires a column reference on the left")
	}
	pos := t.ColumnIndex(col.Token)
	if pos < 0 {
		return sqlerr.ErrNotFound.New("no such column: " + col.Token)
	}
	items := conj.List
	if items == nil || items.Len() == 0 {
		_, err := p.AddOp(vm.OpGoto, 0, skipLabel)
		return err
	}

	ints := make([]int64, 0, items.Len())
	allInt := true
	for _, it := range items.Items {
		if it.Expr == nil || it.Expr.Op != ast.OpLiteral {
			allInt = false
			break
		}
		n, err := strconv.ParseInt(it.Expr.Token, 10, 64)
		if err != nil {
			allInt = false
			break
		}
		ints = append(ints, n)
	}

	lhs := c.allocReg()
	if _, err := p.Op3(vm.OpColumn, cur, pos, lhs, vm.P3NotUsed); err != nil {
		return err
	}

	if allInt && len(ints) > rowhash.LinearLimit {
		h := &rowhash.RowHash{}
		for _, n := range ints {
			h.Insert(n)
		}
		setID := int64(c.allocReg())
		info := &vm.InSetInfo{Hash: h, SetID: setID}
		_, err := p.Op3(vm.OpInSet, lhs, skipLabel, info, vm.P3Pointer)
		return err
	}

	pass := p.MakeLabel()
	for _, it := range items.Items {
		rhs := c.allocReg()
		if err := c.compileValue(p, it.Expr, rhs); err != nil {
			return err
		}
		if _, err := p.Op3(vm.OpEq, lhs, pass, rhs, vm.P3NotUsed); err != nil {
			return err
		}
	}
	if _, err := p.AddOp(vm.OpGoto, 0, skipLabel); err != nil {
		return err
	}
	return p.ResolveLabel(pass)
}
