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
	"github.com/tursodatabase/libsql-sub000/record"
	"github.com/tursodatabase/libsql-sub000/vm"
)

// openIndexCursors opens one write cursor per index on t, in
// t.Indexes list order, and returns their cursor numbers so a later
// codeIndexMaintenance/codeIndexDeleteForRow call can address them
// positionally (spec §3 Index entity, §4.5's canonical "for each
// index, build key, OP_IdxInsert" sequence).
func (c *Compiler) openIndexCursors(p *vm.Program, t *catalog.Table) ([]int, error) {
	var curs []int
	for idx := t.Indexes; idx != nil; idx = idx.Next {
		ki := &record.KeyInfo{NFields: len(idx.Columns), Desc: idx.Desc}
		cur := c.allocCursor()
		if _, err := p.Op3(vm.OpOpenWrite, cur, int(idx.RootPage), ki, vm.P3KeyInfo); err != nil {
			return nil, err
		}
		curs = append(curs, cur)
	}
	return curs, nil
}

func (c *Compiler) closeIndexCursors(p *vm.Program, curs []int) error {
	for _, cur := range curs {
		if _, err := p.AddOp(vm.OpClose, cur, 0); err != nil {
			return err
		}
	}
	return nil
}

// codeIndexMaintenance maintains every index on t for a row whose
// table-column values already sit in the contiguous register run
// [valueBase, valueBase+len(t.Columns)) — the same layout
// emitInsertRow and CompileUpdate build for their own OpMakeRecord
// call — and whose rowid is in rowidReg. Called once per inserted or
// rewritten row.
func (c *Compiler) codeIndexMaintenance(p *vm.Program, t *catalog.Table, idxCursors []int, valueBase, rowidReg int) error {
	i := 0
	for idx := t.Indexes; idx != nil; idx, i = idx.Next, i+1 {
		keyBase := c.allocRegs(len(idx.Columns) + 1)
		for j, pos := range idx.Columns {
			if _, err := p.AddOp(vm.OpSCopy, valueBase+pos, keyBase+j); err != nil {
				return err
			}
		}
		if _, err := p.AddOp(vm.OpSCopy, rowidReg, keyBase+len(idx.Columns)); err != nil {
			return err
		}
		if err := c.codeIndexInsertOne(p, idx, idxCursors[i], keyBase); err != nil {
			return err
		}
	}
	return nil
}

// codeIndexInsertOne checks idx's uniqueness constraint (if any)
// against the candidate key columns already sitting at
// [keyBase, keyBase+len(idx.Columns)+1) — the declared columns
// followed by the row's rowid — then emits the key record and
// OpIdxInsert. Called by codeIndexMaintenance, one index per call.
func (c *Compiler) codeIndexInsertOne(p *vm.Program, idx *catalog.Index, cur, keyBase int) error {
	n := len(idx.Columns)
	if idx.Unique != ast.ConflictDefault {
		if err := c.codeUniqueCheck(p, idx, cur, keyBase, n); err != nil {
			return err
		}
	}
	keyReg := c.allocReg()
	if _, err := p.Op3(vm.OpMakeRecord, keyBase, n+1, keyReg, vm.P3NotUsed); err != nil {
		return err
	}
	_, err := p.Op3(vm.OpIdxInsert, cur, 0, keyReg, vm.P3NotUsed)
	return err
}

// codeUniqueCheck scans idx's own entries — OpRewind/OpColumn/OpNe/
// OpNext, the same cursor-agnostic scan idiom compilePredicateSkip
// already uses for table scans — comparing each existing entry's
// declared columns against the n candidate values at keyBase, and
// raises sqlerr.ErrConstraint through OpHalt the moment every column
// matches (spec §8's UNIQUE-violation scenario). A full scan rather
// than an OpIdxGE seek: storage's Moveto compares index keys purely
// bytewise (boltCursor.Moveto), which only orders consistently with
// column order for fixed-width keys — not the general case here — so
// a seek could land next to, rather than on, a matching prefix.
func (c *Compiler) codeUniqueCheck(p *vm.Program, idx *catalog.Index, cur, keyBase, n int) error {
	loopTop := p.MakeLabel()
	afterScan := p.MakeLabel()
	nextRow := p.MakeLabel()
	if _, err := p.AddOp(vm.OpRewind, cur, afterScan); err != nil {
		return err
	}
	if err := p.ResolveLabel(loopTop); err != nil {
		return err
	}
	for j := 0; j < n; j++ {
		tmp := c.allocReg()
		if _, err := p.Op3(vm.OpColumn, cur, j, tmp, vm.P3NotUsed); err != nil {
			return err
		}
		if _, err := p.Op3(vm.OpNe, tmp, nextRow, keyBase+j, vm.P3NotUsed); err != nil {
			return err
		}
	}
	msg := "UNIQUE constraint failed: " + idx.Table.Name + "." + idx.Name
	if _, err := p.Op3(vm.OpHalt, 1, 0, msg, vm.P3Static); err != nil {
		return err
	}
	if err := p.ResolveLabel(nextRow); err != nil {
		return err
	}
	if _, err := p.AddOp(vm.OpNext, cur, loopTop); err != nil {
		return err
	}
	return p.ResolveLabel(afterScan)
}

// codeIndexDeleteFromBase mirrors codeIndexMaintenance but removes
// rather than inserts: used by CompileUpdate to drop a row's old
// index entries (already materialized at valueBase) before its new
// values are written under the same rowid.
func (c *Compiler) codeIndexDeleteFromBase(p *vm.Program, t *catalog.Table, idxCursors []int, valueBase, rowidReg int) error {
	i := 0
	for idx := t.Indexes; idx != nil; idx, i = idx.Next, i+1 {
		n := len(idx.Columns)
		keyBase := c.allocRegs(n + 1)
		for j, pos := range idx.Columns {
			if _, err := p.AddOp(vm.OpSCopy, valueBase+pos, keyBase+j); err != nil {
				return err
			}
		}
		if _, err := p.AddOp(vm.OpSCopy, rowidReg, keyBase+n); err != nil {
			return err
		}
		keyReg := c.allocReg()
		if _, err := p.Op3(vm.OpMakeRecord, keyBase, n+1, keyReg, vm.P3NotUsed); err != nil {
			return err
		}
		if _, err := p.Op3(vm.OpIdxDelete, idxCursors[i], 0, keyReg, vm.P3NotUsed); err != nil {
			return err
		}
	}
	return nil
}

// codeIndexDeleteForRow builds every index's key for the table cursor
// tblCur's current row — reading each declared column straight off
// the row, since the DELETE paths never stage the old row's values
// into a contiguous register run the way emitInsertRow does — and emits
// OpIdxDelete against idxCursors. rowidReg must already hold the
// row's rowid (its table-cursor OpRowid result).
func (c *Compiler) codeIndexDeleteForRow(p *vm.Program, t *catalog.Table, tblCur int, idxCursors []int, rowidReg int) error {
	i := 0
	for idx := t.Indexes; idx != nil; idx, i = idx.Next, i+1 {
		cur := idxCursors[i]
		n := len(idx.Columns)
		keyBase := c.allocRegs(n + 1)
		for j, pos := range idx.Columns {
			if _, err := p.Op3(vm.OpColumn, tblCur, pos, keyBase+j, vm.P3NotUsed); err != nil {
				return err
			}
		}
		if _, err := p.AddOp(vm.OpSCopy, rowidReg, keyBase+n); err != nil {
			return err
		}
		keyReg := c.allocReg()
		if _, err := p.Op3(vm.OpMakeRecord, keyBase, n+1, keyReg, vm.P3NotUsed); err != nil {
			return err
		}
		if _, err := p.Op3(vm.OpIdxDelete, cur, 0, keyReg, vm.P3NotUsed); err != nil {
			return err
		}
	}
	return nil
}
