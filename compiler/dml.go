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
	"strings"

	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/catalog"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/vm"
)

// compileValue emits the constant-load or host-parameter-read opcode
// for e into reg. OpLiteral and OpVariable are the only expression
// shapes CompileInsert/CompileUpdate's value lists support — e.g.
// `INSERT INTO t VALUES (?, 2)` mixes a host parameter with a literal
// in the same row (spec §9 "canonical opcode sequence" for
// INSERT-from-literal, extended for bound parameters per §4.6's
// OpVariable).
func (c *Compiler) compileValue(p *vm.Program, e *ast.Expr, reg int) error {
	if e == nil {
		return sqlerr.ErrInternal.New("expected a value")
	}
	if e.Op == ast.OpVariable {
		_, err := p.AddOp(vm.OpVariable, c.resolveVarIndex(e.Token), reg)
		return err
	}
	if e.Op != ast.OpLiteral {
		return sqlerr.ErrInternal.New("expected a literal or host parameter")
	}
	tok := e.Token
	if strings.EqualFold(tok, "NULL") {
		_, err := p.AddOp(vm.OpNull, 0, reg)
		return err
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		_, err := p.Op3(vm.OpInteger, int(n), reg, nil, vm.P3NotUsed)
		return err
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		_, err := p.Op3(vm.OpReal, 0, reg, f, vm.P3NotUsed)
		return err
	}
	_, err := p.Op3(vm.OpString, 0, reg, tok, vm.P3Static)
	return err
}

// resolveVarIndex returns the 1-based host-parameter index for a `?`
// (token "") or `?N` (token "N") placeholder, auto-numbering
// anonymous placeholders left to right the way sqlite's own parser
// does, and tracking the high-water mark NumVars reports.
func (c *Compiler) resolveVarIndex(token string) int {
	var n int
	if token == "" {
		c.nextVar++
		n = c.nextVar
	} else if parsed, err := strconv.Atoi(token); err == nil && parsed >= 1 {
		n = parsed
	} else {
		n = 1
	}
	if n > c.maxVar {
		c.maxVar = n
	}
	return n
}

// destColumns maps a VALUES-row position to a catalog column index:
// either an explicit column list, or table order when none was given.
func destColumns(t *catalog.Table, cols *ast.IdList) ([]int, error) {
	destCols := make([]int, len(t.Columns))
	for i := range destCols {
		destCols[i] = i
	}
	if cols == nil || cols.Len() == 0 {
		return destCols, nil
	}
	destCols = destCols[:0]
	for _, item := range cols.Items {
		pos := t.ColumnIndex(item.Name)
		if pos < 0 {
			return nil, sqlerr.ErrNotFound.New("no such column: " + item.Name)
		}
		destCols = append(destCols, pos)
	}
	return destCols, nil
}

// emitInsertRow compiles one VALUES row into cur: a contiguous register
// per catalog column (OpMakeRecord reads cells[base:base+len(columns)]
// as a single run, so every value — whatever order the statement named
// it in — must land at base+columnIndex), declared defaults or NULL
// for unmentioned columns, a fresh rowid, and the Insert itself. Shared
// by CompileInsert and the trigger engine's INSERT step codegen. It
// returns the column register base and the rowid register so the
// caller can maintain the table's indexes against the same values
// (codeIndexMaintenance) without re-deriving them.
func (c *Compiler) emitInsertRow(p *vm.Program, t *catalog.Table, cur int, destCols []int, row *ast.ExprList) (int, int, error) {
	if row.Len() != len(destCols) {
		return 0, 0, sqlerr.ErrMismatch.New()
	}

	base := c.allocRegs(len(t.Columns))
	filled := make([]bool, len(t.Columns))
	for i, item := range row.Items {
		col := destCols[i]
		if err := c.compileValue(p, item.Expr, base+col); err != nil {
			return 0, 0, err
		}
		filled[col] = true
	}
	for i, done := range filled {
		if done {
			continue
		}
		if t.Columns[i].Default != "" {
			lit := ast.NewLiteral(t.Columns[i].Default, ast.Span{})
			if err := c.compileValue(p, lit, base+i); err != nil {
				return 0, 0, err
			}
		} else if _, err := p.AddOp(vm.OpNull, 0, base+i); err != nil {
			return 0, 0, err
		}
	}

	rowidReg := c.allocReg()
	if _, err := p.AddOp(vm.OpNewRowid, 0, rowidReg); err != nil {
		return 0, 0, err
	}
	recReg := c.allocReg()
	if _, err := p.Op3(vm.OpMakeRecord, base, len(t.Columns), recReg, vm.P3NotUsed); err != nil {
		return 0, 0, err
	}
	if _, err := p.Op3(vm.OpInsert, cur, rowidReg, recReg, vm.P3NotUsed); err != nil {
		return 0, 0, err
	}
	return base, rowidReg, nil
}

// CompileInsert lowers an INSERT ... VALUES statement: for each row,
// push its column values into contiguous registers, make a record,
// mint a rowid, and insert by rowid — the canonical sequence spec §9
// names for "INSERT-from-literal". INSERT ... SELECT is not yet
// supported (stmt.Select is rejected).
func (c *Compiler) CompileInsert(stmt *ast.Insert) (*vm.Program, error) {
	if stmt.Select != nil {
		return nil, sqlerr.ErrMisuse.New("INSERT ... SELECT is not yet supported")
	}

	t, err := c.findTable(stmt.Table)
	if err != nil {
		return nil, err
	}
	destCols, err := destColumns(t, stmt.Columns)
	if err != nil {
		return nil, err
	}

	p := c.newProgram()
	cur := c.allocCursor()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpOpenWrite, cur, int(t.RootPage)); err != nil {
		return nil, err
	}
	idxCurs, err := c.openIndexCursors(p, t)
	if err != nil {
		return nil, err
	}

	for _, row := range stmt.Rows {
		if err := c.codeRowTriggers(p, t, ast.TriggerInsert, ast.TriggerBefore, nil); err != nil {
			return nil, err
		}
		base, rowidReg, err := c.emitInsertRow(p, t, cur, destCols, row)
		if err != nil {
			return nil, err
		}
		if err := c.codeIndexMaintenance(p, t, idxCurs, base, rowidReg); err != nil {
			return nil, err
		}
		if err := c.codeRowTriggers(p, t, ast.TriggerInsert, ast.TriggerAfter, nil); err != nil {
			return nil, err
		}
	}

	if err := c.closeIndexCursors(p, idxCurs); err != nil {
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

// CompileDelete lowers DELETE FROM table [WHERE ...] into a
// rewind/scan/delete loop, sharing compilePredicateSkip's restricted
// WHERE evaluator (column = literal / column IN (...), AND-chained)
// with CompileSelect.
func (c *Compiler) CompileDelete(stmt *ast.Delete) (*vm.Program, error) {
	t, err := c.findTable(stmt.Table)
	if err != nil {
		return nil, err
	}

	p := c.newProgram()
	cur := c.allocCursor()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpOpenWrite, cur, int(t.RootPage)); err != nil {
		return nil, err
	}
	idxCurs, err := c.openIndexCursors(p, t)
	if err != nil {
		return nil, err
	}

	loopTop := p.MakeLabel()
	done := p.MakeLabel()
	if _, err := p.AddOp(vm.OpRewind, cur, done); err != nil {
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
	if err := c.codeRowTriggers(p, t, ast.TriggerDelete, ast.TriggerBefore, nil); err != nil {
		return nil, err
	}
	if len(idxCurs) > 0 {
		rowidReg := c.allocReg()
		if _, err := p.AddOp(vm.OpRowid, cur, rowidReg); err != nil {
			return nil, err
		}
		if err := c.codeIndexDeleteForRow(p, t, cur, idxCurs, rowidReg); err != nil {
			return nil, err
		}
	}
	if _, err := p.AddOp(vm.OpDeleteRow, cur, 0); err != nil {
		return nil, err
	}
	if err := c.codeRowTriggers(p, t, ast.TriggerDelete, ast.TriggerAfter, nil); err != nil {
		return nil, err
	}
	if err := p.ResolveLabel(skip); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpNext, cur, loopTop); err != nil {
		return nil, err
	}
	if err := p.ResolveLabel(done); err != nil {
		return nil, err
	}
	if err := c.closeIndexCursors(p, idxCurs); err != nil {
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

// CompileUpdate lowers UPDATE table SET col = literal, ... [WHERE ...]
// by reading the current row's columns into registers, overwriting
// the assigned ones, and re-inserting the record under the same
// rowid. WHERE is evaluated by the same compilePredicateSkip
// CompileDelete/CompileSelect use.
func (c *Compiler) CompileUpdate(stmt *ast.Update) (*vm.Program, error) {
	t, err := c.findTable(stmt.Table)
	if err != nil {
		return nil, err
	}

	assign := make(map[int]*ast.Expr, len(stmt.Set))
	changedCols := make([]string, 0, len(stmt.Set))
	for _, s := range stmt.Set {
		pos := t.ColumnIndex(s.Column)
		if pos < 0 {
			return nil, sqlerr.ErrNotFound.New("no such column: " + s.Column)
		}
		assign[pos] = s.Value
		changedCols = append(changedCols, s.Column)
	}

	p := c.newProgram()
	cur := c.allocCursor()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpOpenWrite, cur, int(t.RootPage)); err != nil {
		return nil, err
	}
	idxCurs, err := c.openIndexCursors(p, t)
	if err != nil {
		return nil, err
	}

	loopTop := p.MakeLabel()
	done := p.MakeLabel()
	if _, err := p.AddOp(vm.OpRewind, cur, done); err != nil {
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

	// Read the row's current rowid and every column's pre-update value
	// into a fresh register block before any assignment overwrites it,
	// so indexes on unassigned columns (and any index sharing a column
	// with one that does change) can still be dropped by their old key.
	rowidReg := c.allocReg()
	if _, err := p.AddOp(vm.OpRowid, cur, rowidReg); err != nil {
		return nil, err
	}
	var oldBase int
	if len(idxCurs) > 0 {
		oldBase = c.allocRegs(len(t.Columns))
		for i := range t.Columns {
			if _, err := p.Op3(vm.OpColumn, cur, i, oldBase+i, vm.P3NotUsed); err != nil {
				return nil, err
			}
		}
		if err := c.codeIndexDeleteFromBase(p, t, idxCurs, oldBase, rowidReg); err != nil {
			return nil, err
		}
	}

	base := c.allocRegs(len(t.Columns))
	for i := range t.Columns {
		reg := base + i
		if e, ok := assign[i]; ok {
			if err := c.compileValue(p, e, reg); err != nil {
				return nil, err
			}
			continue
		}
		if len(idxCurs) > 0 {
			if _, err := p.AddOp(vm.OpSCopy, oldBase+i, reg); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := p.Op3(vm.OpColumn, cur, i, reg, vm.P3NotUsed); err != nil {
			return nil, err
		}
	}

	if err := c.codeRowTriggers(p, t, ast.TriggerUpdate, ast.TriggerBefore, changedCols); err != nil {
		return nil, err
	}

	recReg := c.allocReg()
	if _, err := p.Op3(vm.OpMakeRecord, base, len(t.Columns), recReg, vm.P3NotUsed); err != nil {
		return nil, err
	}
	if _, err := p.Op3(vm.OpInsert, cur, rowidReg, recReg, vm.P3NotUsed); err != nil {
		return nil, err
	}
	if err := c.codeIndexMaintenance(p, t, idxCurs, base, rowidReg); err != nil {
		return nil, err
	}

	if err := c.codeRowTriggers(p, t, ast.TriggerUpdate, ast.TriggerAfter, changedCols); err != nil {
		return nil, err
	}

	if err := p.ResolveLabel(skip); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpNext, cur, loopTop); err != nil {
		return nil, err
	}
	if err := p.ResolveLabel(done); err != nil {
		return nil, err
	}
	if err := c.closeIndexCursors(p, idxCurs); err != nil {
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

// compilePredicateSkip (select.go) implements the shared WHERE-clause
// restriction CompileDelete/CompileUpdate/CompileSelect all compile
// against: an AND-chain of `column = literal` and
// `column IN (literal, ...)` tests.
