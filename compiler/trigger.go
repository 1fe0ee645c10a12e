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
	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/catalog"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/vm"
)

// codeRowTriggers is C8's entry point, called from the DML compilers at
// the point in their scan/insert loop where a row-level trigger with
// the given event/timing should fire (spec §4.8). Only row-granularity
// triggers are wired in; statement-granularity bodies fire once per
// statement and aren't coded yet. changedCols restricts an UPDATE
// trigger per Trigger.MatchesUpdateOf; pass nil for INSERT/DELETE.
func (c *Compiler) codeRowTriggers(p *vm.Program, t *catalog.Table, event ast.TriggerEvent, timing ast.TriggerTiming, changedCols []string) error {
	for _, trig := range t.Triggers {
		if trig.Event != event || trig.Timing != timing {
			continue
		}
		if trig.Granularity != ast.TriggerRow {
			continue
		}
		if !trig.MatchesUpdateOf(changedCols) {
			continue
		}
		// Recursion guard (spec §4.8, §8 scenario 6): a trigger already
		// being coded for this statement is skipped, not re-entered.
		if c.onTriggerStack(trig.Name) {
			continue
		}
		c.pushTrigger(trig.Name)
		err := c.codeTriggerBody(p, trig)
		c.popTrigger()
		if err != nil {
			return err
		}
	}
	return nil
}

// codeTriggerBody walks a trigger's step list, coding each one inline
// into the firing statement's program. WHEN clauses are not yet
// evaluated (every matching trigger's body runs unconditionally).
func (c *Compiler) codeTriggerBody(p *vm.Program, trig *ast.Trigger) error {
	for step := trig.Steps; step != nil; step = step.Next {
		var err error
		switch step.Op {
		case ast.StepInsert:
			err = c.codeTriggerInsert(p, step)
		case ast.StepUpdate:
			err = c.codeTriggerUpdate(p, step)
		case ast.StepDelete:
			err = c.codeTriggerDelete(p, step)
		default:
			err = sqlerr.ErrMisuse.New("SELECT trigger steps are not yet supported")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// codeTriggerInsert codes a trigger body's INSERT step: open the
// target table, build the one VALUES row emitInsertRow expects, close
// the cursor. INSERT ... SELECT bodies aren't supported, matching
// CompileInsert's own restriction.
func (c *Compiler) codeTriggerInsert(p *vm.Program, step *ast.TriggerStep) error {
	if step.Select != nil {
		return sqlerr.ErrMisuse.New("INSERT ... SELECT trigger steps are not yet supported")
	}
	t, err := c.findTable(step.Table)
	if err != nil {
		return err
	}
	destCols, err := destColumns(t, step.Columns)
	if err != nil {
		return err
	}
	if step.Values == nil {
		return sqlerr.ErrMismatch.New()
	}

	cur := c.allocCursor()
	if _, err := p.AddOp(vm.OpOpenWrite, cur, int(t.RootPage)); err != nil {
		return err
	}
	idxCurs, err := c.openIndexCursors(p, t)
	if err != nil {
		return err
	}
	if err := c.codeRowTriggers(p, t, ast.TriggerInsert, ast.TriggerBefore, nil); err != nil {
		return err
	}
	base, rowidReg, err := c.emitInsertRow(p, t, cur, destCols, step.Values)
	if err != nil {
		return err
	}
	if err := c.codeIndexMaintenance(p, t, idxCurs, base, rowidReg); err != nil {
		return err
	}
	if err := c.codeRowTriggers(p, t, ast.TriggerInsert, ast.TriggerAfter, nil); err != nil {
		return err
	}
	if err := c.closeIndexCursors(p, idxCurs); err != nil {
		return err
	}
	_, err = p.AddOp(vm.OpClose, cur, 0)
	return err
}

// codeTriggerDelete codes a trigger body's DELETE step: the same
// rewind/scan/delete loop CompileDelete emits, against the step's own
// target table and WHERE clause. A trigger on the deleted table fires
// through the same codeRowTriggers call CompileDelete uses, so the
// recursion guard in compiler.go governs self/mutual trigger chains
// uniformly whether the DELETE is top-level or itself inside a
// trigger body.
func (c *Compiler) codeTriggerDelete(p *vm.Program, step *ast.TriggerStep) error {
	t, err := c.findTable(step.Table)
	if err != nil {
		return err
	}
	cur := c.allocCursor()
	if _, err := p.AddOp(vm.OpOpenWrite, cur, int(t.RootPage)); err != nil {
		return err
	}
	idxCurs, err := c.openIndexCursors(p, t)
	if err != nil {
		return err
	}

	loopTop := p.MakeLabel()
	done := p.MakeLabel()
	if _, err := p.AddOp(vm.OpRewind, cur, done); err != nil {
		return err
	}
	if err := p.ResolveLabel(loopTop); err != nil {
		return err
	}

	skip := p.MakeLabel()
	if step.Where != nil {
		if err := c.compilePredicateSkip(p, t, cur, step.Where, skip); err != nil {
			return err
		}
	}
	if err := c.codeRowTriggers(p, t, ast.TriggerDelete, ast.TriggerBefore, nil); err != nil {
		return err
	}
	if len(idxCurs) > 0 {
		rowidReg := c.allocReg()
		if _, err := p.AddOp(vm.OpRowid, cur, rowidReg); err != nil {
			return err
		}
		if err := c.codeIndexDeleteForRow(p, t, cur, idxCurs, rowidReg); err != nil {
			return err
		}
	}
	if _, err := p.AddOp(vm.OpDeleteRow, cur, 0); err != nil {
		return err
	}
	if err := c.codeRowTriggers(p, t, ast.TriggerDelete, ast.TriggerAfter, nil); err != nil {
		return err
	}
	if err := p.ResolveLabel(skip); err != nil {
		return err
	}
	if _, err := p.AddOp(vm.OpNext, cur, loopTop); err != nil {
		return err
	}
	if err := p.ResolveLabel(done); err != nil {
		return err
	}
	if err := c.closeIndexCursors(p, idxCurs); err != nil {
		return err
	}
	_, err = p.AddOp(vm.OpClose, cur, 0)
	return err
}

// codeTriggerUpdate codes a trigger body's UPDATE step: the same
// rewind/scan/rewrite loop CompileUpdate emits, against the step's own
// target table, SET list, and WHERE clause. Fires further triggers
// through codeRowTriggers exactly as codeTriggerDelete does.
func (c *Compiler) codeTriggerUpdate(p *vm.Program, step *ast.TriggerStep) error {
	t, err := c.findTable(step.Table)
	if err != nil {
		return err
	}

	assign := make(map[int]*ast.Expr)
	var changedCols []string
	if step.Columns != nil {
		for i, item := range step.Columns.Items {
			pos := t.ColumnIndex(item.Name)
			if pos < 0 {
				return sqlerr.ErrNotFound.New("no such column: " + item.Name)
			}
			if step.Values == nil || i >= len(step.Values.Items) {
				return sqlerr.ErrMismatch.New()
			}
			assign[pos] = step.Values.Items[i].Expr
			changedCols = append(changedCols, item.Name)
		}
	}

	cur := c.allocCursor()
	if _, err := p.AddOp(vm.OpOpenWrite, cur, int(t.RootPage)); err != nil {
		return err
	}
	idxCurs, err := c.openIndexCursors(p, t)
	if err != nil {
		return err
	}

	loopTop := p.MakeLabel()
	done := p.MakeLabel()
	if _, err := p.AddOp(vm.OpRewind, cur, done); err != nil {
		return err
	}
	if err := p.ResolveLabel(loopTop); err != nil {
		return err
	}

	skip := p.MakeLabel()
	if step.Where != nil {
		if err := c.compilePredicateSkip(p, t, cur, step.Where, skip); err != nil {
			return err
		}
	}

	rowidReg := c.allocReg()
	if _, err := p.AddOp(vm.OpRowid, cur, rowidReg); err != nil {
		return err
	}
	var oldBase int
	if len(idxCurs) > 0 {
		oldBase = c.allocRegs(len(t.Columns))
		for i := range t.Columns {
			if _, err := p.Op3(vm.OpColumn, cur, i, oldBase+i, vm.P3NotUsed); err != nil {
				return err
			}
		}
		if err := c.codeIndexDeleteFromBase(p, t, idxCurs, oldBase, rowidReg); err != nil {
			return err
		}
	}

	base := c.allocRegs(len(t.Columns))
	for i := range t.Columns {
		reg := base + i
		if e, ok := assign[i]; ok {
			if err := c.compileValue(p, e, reg); err != nil {
				return err
			}
			continue
		}
		if len(idxCurs) > 0 {
			if _, err := p.AddOp(vm.OpSCopy, oldBase+i, reg); err != nil {
				return err
			}
			continue
		}
		if _, err := p.Op3(vm.OpColumn, cur, i, reg, vm.P3NotUsed); err != nil {
			return err
		}
	}
	if err := c.codeRowTriggers(p, t, ast.TriggerUpdate, ast.TriggerBefore, changedCols); err != nil {
		return err
	}

	recReg := c.allocReg()
	if _, err := p.Op3(vm.OpMakeRecord, base, len(t.Columns), recReg, vm.P3NotUsed); err != nil {
		return err
	}
	if _, err := p.Op3(vm.OpInsert, cur, rowidReg, recReg, vm.P3NotUsed); err != nil {
		return err
	}
	if err := c.codeIndexMaintenance(p, t, idxCurs, base, rowidReg); err != nil {
		return err
	}

	if err := c.codeRowTriggers(p, t, ast.TriggerUpdate, ast.TriggerAfter, changedCols); err != nil {
		return err
	}

	if err := p.ResolveLabel(skip); err != nil {
		return err
	}
	if _, err := p.AddOp(vm.OpNext, cur, loopTop); err != nil {
		return err
	}
	if err := p.ResolveLabel(done); err != nil {
		return err
	}
	if err := c.closeIndexCursors(p, idxCurs); err != nil {
		return err
	}
	_, err = p.AddOp(vm.OpClose, cur, 0)
	return err
}
