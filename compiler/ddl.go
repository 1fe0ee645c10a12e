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

// CompileCreateTable lowers a CREATE TABLE into a program that opens a
// write transaction, allocates a storage root, and registers the
// descriptor in the catalog — all inside one statement, so a
// constraint failure later in the same statement rolls the whole
// thing back together (spec §4.1, §8 scenario 5).
func (c *Compiler) CompileCreateTable(stmt *ast.CreateTable) (*vm.Program, error) {
	if _, ok := c.Conn.Catalog.FindTable(stmt.Name); ok {
		if stmt.IfNotExists {
			return c.emptyProgram(), nil
		}
		return nil, sqlerr.ErrConstraint.New("table " + stmt.Name + " already exists")
	}

	t := catalog.NewTable(stmt.Name)
	for _, cd := range stmt.Columns {
		t.Columns = append(t.Columns, catalog.Column{
			Name: cd.Name, Type: cd.Type, Default: cd.Default,
			NotNull: cd.NotNull, PrimaryKey: cd.PrimaryKey,
		})
		if cd.PrimaryKey {
			t.PKColumn = len(t.Columns) - 1
		}
	}
	if stmt.Temp {
		t.SetFlag(catalog.FlagTemp)
	}

	p := c.newProgram()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}
	if _, err := p.Op3(vm.OpCreateTable, 0, 0, t, vm.P3Pointer); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpHalt, 0, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// CompileCreateIndex lowers CREATE INDEX, resolving the owning table
// and each named column up front so a typo surfaces at compile time
// rather than mid-execution.
func (c *Compiler) CompileCreateIndex(stmt *ast.CreateIndex) (*vm.Program, error) {
	t, err := c.findTable(stmt.Table)
	if err != nil {
		return nil, err
	}
	if _, ok := c.Conn.Catalog.FindIndex(stmt.Name); ok {
		if stmt.IfNotExists {
			return c.emptyProgram(), nil
		}
		return nil, sqlerr.ErrConstraint.New("index " + stmt.Name + " already exists")
	}

	cols := make([]int, len(stmt.Columns))
	for i, name := range stmt.Columns {
		pos := t.ColumnIndex(name)
		if pos < 0 {
			return nil, sqlerr.ErrNotFound.New("no such column: " + name)
		}
		cols[i] = pos
	}
	idx := catalog.NewIndex(stmt.Name, t, cols)
	idx.Desc = stmt.Desc
	if stmt.Unique {
		idx.Unique = ast.ConflictAbort
	}

	p := c.newProgram()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}
	if _, err := p.Op3(vm.OpCreateIndex, 0, 0, idx, vm.P3Pointer); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpHalt, 0, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// CompileCreateView lowers CREATE VIEW: a view is a table descriptor
// with ViewSelect set and no storage root (spec §3's "transient ⇒ root
// is a VM cursor number" invariant does not apply here — a view has no
// root at all). Reuses OpCreateTable, which skips root allocation for
// any descriptor where Table.IsView() is true.
func (c *Compiler) CompileCreateView(stmt *ast.CreateViewStmt) (*vm.Program, error) {
	if _, ok := c.Conn.Catalog.FindTable(stmt.Name); ok {
		return nil, sqlerr.ErrConstraint.New("table " + stmt.Name + " already exists")
	}
	t := catalog.NewTable(stmt.Name)
	t.ViewSelect = stmt.As

	p := c.newProgram()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}
	if _, err := p.Op3(vm.OpCreateTable, 0, 0, t, vm.P3Pointer); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpHalt, 0, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// CompileCreateTrigger lowers CREATE TRIGGER (C8): the owning table
// must already exist, but the trigger body itself is not type-checked
// until it fires (codeRowTriggers in trigger.go compiles it inline at
// each DML site, not here).
func (c *Compiler) CompileCreateTrigger(stmt *ast.CreateTriggerStmt) (*vm.Program, error) {
	trig := stmt.Trigger
	if _, err := c.findTable(trig.Table); err != nil {
		return nil, err
	}
	if _, ok := c.Conn.Catalog.FindTrigger(trig.Name); ok {
		return nil, sqlerr.ErrConstraint.New("trigger " + trig.Name + " already exists")
	}

	p := c.newProgram()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}
	if _, err := p.Op3(vm.OpCreateTrigger, 0, 0, trig, vm.P3Pointer); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpHalt, 0, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// CompileAnalyze lowers the SPEC_FULL.md §C ANALYZE statement into a
// single opcode that walks the named table (or every table, when
// stmt.Table is empty) and records row counts for its planner
// statistics.
func (c *Compiler) CompileAnalyze(stmt *ast.Analyze) (*vm.Program, error) {
	if stmt.Table != "" {
		if _, err := c.findTable(stmt.Table); err != nil {
			return nil, err
		}
	}

	p := c.newProgram()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}
	if _, err := p.Op3(vm.OpAnalyze, 0, 0, stmt.Table, vm.P3Static); err != nil {
		return nil, err
	}
	if _, err := p.AddOp(vm.OpHalt, 0, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// CompileDrop lowers DROP TABLE/INDEX/VIEW/TRIGGER. DROP VIEW reuses
// OpDropTable (guarded the same way OpCreateTable is — no root to
// destroy); DROP TRIGGER uses its own opcode since a trigger is not a
// catalog.Table.
func (c *Compiler) CompileDrop(stmt *ast.Drop) (*vm.Program, error) {
	p := c.newProgram()
	if _, err := p.AddOp(vm.OpTransaction, 0, 1); err != nil {
		return nil, err
	}

	switch stmt.Kind {
	case ast.DropTable:
		t, ok := c.Conn.Catalog.FindTable(stmt.Name)
		if !ok {
			if stmt.IfExists {
				return c.emptyProgram(), nil
			}
			return nil, sqlerr.ErrNotFound.New("no such table: " + stmt.Name)
		}
		if t.IsView() {
			return nil, sqlerr.ErrMisuse.New(stmt.Name + " is a view; use DROP VIEW")
		}
		if _, err := p.Op3(vm.OpDropTable, 0, 0, stmt.Name, vm.P3Static); err != nil {
			return nil, err
		}
	case ast.DropView:
		t, ok := c.Conn.Catalog.FindTable(stmt.Name)
		if !ok {
			if stmt.IfExists {
				return c.emptyProgram(), nil
			}
			return nil, sqlerr.ErrNotFound.New("no such view: " + stmt.Name)
		}
		if !t.IsView() {
			return nil, sqlerr.ErrMisuse.New(stmt.Name + " is not a view")
		}
		if _, err := p.Op3(vm.OpDropTable, 0, 0, stmt.Name, vm.P3Static); err != nil {
			return nil, err
		}
	case ast.DropIndex:
		if _, ok := c.Conn.Catalog.FindIndex(stmt.Name); !ok {
			if stmt.IfExists {
				return c.emptyProgram(), nil
			}
			return nil, sqlerr.ErrNotFound.New("no such index: " + stmt.Name)
		}
		if _, err := p.Op3(vm.OpDropIndex, 0, 0, stmt.Name, vm.P3Static); err != nil {
			return nil, err
		}
	case ast.DropTrigger:
		if _, ok := c.Conn.Catalog.FindTrigger(stmt.Name); !ok {
			if stmt.IfExists {
				return c.emptyProgram(), nil
			}
			return nil, sqlerr.ErrNotFound.New("no such trigger: " + stmt.Name)
		}
		if _, err := p.Op3(vm.OpDropTrigger, 0, 0, stmt.Name, vm.P3Static); err != nil {
			return nil, err
		}
	default:
		return nil, sqlerr.ErrInternal.New("unsupported DROP kind")
	}

	if _, err := p.AddOp(vm.OpHalt, 0, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// emptyProgram is the no-op program returned by an IF EXISTS/IF NOT
// EXISTS statement whose condition makes the statement a no-op.
func (c *Compiler) emptyProgram() *vm.Program {
	p := c.newProgram()
	p.AddOp(vm.OpHalt, 0, 0)
	return p
}
