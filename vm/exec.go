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

package vm

import (
	"strings"

	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/catalog"
	"github.com/tursodatabase/libsql-sub000/record"
	"github.com/tursodatabase/libsql-sub000/rowhash"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
)

// Step advances the program: in EXPLAIN mode it fabricates one
// five-column description row per opcode and never touches storage;
// otherwise it runs opcodes until a result row is produced or the
// program halts (spec §4.6 "step").
func (p *Program) Step() (sqlerr.Result, error) {
	if p.state != StateRun && p.state != StateHalt {
		return sqlerr.ResultOK, sqlerr.ErrMisuse.New("step outside RUN/HALT")
	}
	if p.state == StateHalt {
		return sqlerr.ResultDone, nil
	}
	if p.explain {
		return p.stepExplain()
	}
	// A program captures the schema cookie at compile time (SetSchemaCookie)
	// and re-checks it against the live catalog on its very first step, so a
	// DDL statement committed by another caller between prepare and run
	// forces a re-prepare instead of running against a stale descriptor
	// (catalog.SchemaCookie's doc comment; spec §5).
	if p.pc == 0 && p.haveSchemaHash && p.conn != nil && p.conn.Catalog != nil {
		cookie, err := p.conn.Catalog.SchemaCookie()
		if err != nil {
			p.state = StateHalt
			return sqlerr.ResultOK, err
		}
		if cookie != p.schemaCookie {
			p.state = StateHalt
			return sqlerr.ResultOK, sqlerr.ErrSchema.New()
		}
	}
	busyRetries := 0
	for {
		if p.conn != nil && p.conn.Interrupt {
			p.state = StateHalt
			return sqlerr.ResultOK, sqlerr.ErrInterrupt.New()
		}
		if p.pc >= len(p.ops) {
			p.state = StateHalt
			return sqlerr.ResultDone, nil
		}
		op := p.ops[p.pc]
		res, row, err := p.exec(op)
		if err != nil {
			// SPEC_FULL.md §C busy-handler retry loop: a busy/locked error
			// retries the same opcode after the callback's say-so, rather
			// than propagating immediately.
			if sqlerr.IsBusy(err) && p.conn != nil && p.conn.BusyHandler != nil {
				if p.conn.BusyHandler(busyRetries) {
					busyRetries++
					continue
				}
			}
			p.state = StateHalt
			return sqlerr.ResultOK, err
		}
		busyRetries = 0
		if res == sqlerr.ResultDone {
			p.state = StateHalt
			return sqlerr.ResultDone, nil
		}
		if res == sqlerr.ResultRow {
			p.resultRow = row
			p.resultOnStack = true
			return sqlerr.ResultRow, nil
		}
		// ResultOK: op branched or fell through; pc already advanced by exec.
	}
}

// stepExplain fabricates the (address, mnemonic, p1, p2, p3-text) row
// spec §4.6 describes and advances pc without executing anything.
func (p *Program) stepExplain() (sqlerr.Result, error) {
	if p.pc >= len(p.ops) {
		p.state = StateHalt
		return sqlerr.ResultDone, nil
	}
	op := p.ops[p.pc]
	row := []Cell{{}, {}, {}, {}, {}}
	row[0].SetInt(int64(p.pc))
	row[1].SetText(op.Opcode.String(), true)
	row[2].SetInt(int64(op.P1))
	row[3].SetInt(int64(op.P2))
	row[4].SetText(explainP3(op), true)
	p.pc++
	p.resultRow = row
	return sqlerr.ResultRow, nil
}

func explainP3(op Op) string {
	switch op.P3Type {
	case P3NotUsed:
		return ""
	case P3Collation:
		name, _ := op.P3.(string)
		return "collseq(" + name + ")"
	case P3KeyInfo:
		ki, ok := op.P3.(*record.KeyInfo)
		if !ok || ki == nil {
			return "keyinfo()"
		}
		s := "keyinfo(" + itoa(int64(ki.NFields))
		for i := 0; i < ki.NFields; i++ {
			name := "BINARY"
			if ki.Collations != nil && i < len(ki.Collations) && ki.Collations[i] != nil {
				name = ki.Collations[i].Name()
			}
			if ki.Desc != nil && i < len(ki.Desc) && ki.Desc[i] {
				name = "-" + name
			}
			s += ", " + name
		}
		return s + ")"
	default:
		if s, ok := op.P3.(string); ok {
			return s
		}
		return ""
	}
}

// exec dispatches one opcode, returning ResultRow with the row to
// deliver, ResultDone if the program halted, or ResultOK to continue
// (pc has already been advanced appropriately).
func (p *Program) exec(op Op) (sqlerr.Result, []Cell, error) {
	advance := true
	var row []Cell
	var result = sqlerr.ResultOK

	switch op.Opcode {
	case OpNoop, OpInit:
		// Init's P2, when nonzero, is the jump to the program's real
		// start (past any leading subroutines); 0 means "fall through".
		if op.Opcode == OpInit && op.P2 != 0 {
			p.pc = op.P2
			advance = false
		}

	case OpGoto:
		p.pc = op.P2
		advance = false

	case OpHalt:
		if op.P1 != 0 {
			if msg, ok := op.P3.(string); ok && msg != "" {
				return sqlerr.ResultOK, nil, sqlerr.ErrConstraint.New(msg)
			}
			return sqlerr.ResultOK, nil, sqlerr.ErrAbort.New()
		}
		result = sqlerr.ResultDone

	case OpTransaction:
		var err error
		if op.P2 != 0 {
			err = p.conn.Backend.Begin()
		}
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpOpenRead, OpOpenWrite:
		writable := op.Opcode == OpOpenWrite
		intKey := true
		var ki *record.KeyInfo
		if k, ok := op.P3.(*record.KeyInfo); ok {
			ki = k
			intKey = false
		}
		c, err := openCursor(p.conn.Backend, int64(op.P2), writable, intKey, ki)
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		p.setCursor(op.P1, c)

	case OpOpenEphemeral:
		c, err := openCursor(p.conn.Backend, int64(op.P2), true, false, nil)
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		p.setCursor(op.P1, c)

	case OpClose:
		if c := p.cursor(op.P1); c != nil {
			if err := c.close(); err != nil {
				return sqlerr.ResultOK, nil, err
			}
			p.cursors[op.P1] = nil
		}

	case OpRewind:
		ok, err := p.cursor(op.P1).first()
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		if !ok {
			p.pc = op.P2
			advance = false
		}

	case OpNext:
		ok, err := p.cursor(op.P1).next()
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		if ok {
			p.pc = op.P2
			advance = false
		}

	case OpPrev:
		ok, err := p.cursor(op.P1).prev()
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		if ok {
			p.pc = op.P2
			advance = false
		}

	case OpSeekRowid:
		// P1 = cursor, P2 = register holding the target rowid.
		rowid := p.cells[op.P2].Int
		p.cursor(op.P1).deferMoveToRowid(rowid)

	case OpNotExists:
		found, err := p.cursor(op.P1).resolveDeferred()
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		if !found {
			p.pc = op.P2
			advance = false
		}

	case OpColumn:
		v, err := p.cursor(op.P1).column(op.P2)
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		p.setCellFromValue(op.P3reg(), v)

	case OpRowid:
		id, err := p.cursor(op.P1).rowid()
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		p.cells[op.P2].SetInt(id)

	case OpResultRow:
		row = make([]Cell, op.P2)
		copy(row, p.cells[op.P1:op.P1+op.P2])
		result = sqlerr.ResultRow

	case OpNull:
		p.cells[op.P2].SetNull()

	case OpInteger:
		p.cells[op.P2].SetInt(int64(op.P1))

	case OpReal:
		f, _ := op.P3.(float64)
		p.cells[op.P2].SetReal(f)

	case OpString:
		s, _ := op.P3.(string)
		p.cells[op.P2].SetText(s, op.P3Type == P3Dynamic)

	case OpBlob:
		b, _ := op.P3.([]byte)
		p.cells[op.P2].SetBlob(b, op.P3Type == P3Dynamic)

	case OpVariable:
		if op.P1 < 1 || op.P1 > len(p.vars) {
			return sqlerr.ResultOK, nil, sqlerr.ErrRange.New()
		}
		p.cells[op.P2] = p.vars[op.P1-1]

	case OpMove, OpSCopy:
		p.cells[op.P2] = p.cells[op.P1]

	case OpMakeRecord:
		vals := make([]record.Value, op.P2)
		for i := 0; i < op.P2; i++ {
			vals[i] = p.cellToValue(p.cells[op.P1+i])
		}
		p.cells[op.P3reg()].SetBlob(record.Encode(vals), true)

	case OpNewRowid:
		id := p.conn.LastInsertRowid + 1
		if p.conn.NextRandomRowid != nil {
			id = p.conn.NextRandomRowid()
		}
		p.conn.LastInsertRowid = id
		p.cells[op.P2].SetInt(id)

	case OpInsert:
		// P1 = cursor, P2 = register holding the rowid, P3 = register
		// holding the already-encoded record payload.
		rowid := p.cells[op.P2].Int
		data := p.cells[op.P3reg()].Bytes
		c := p.cursor(op.P1)
		if err := c.raw.Insert(rowidKey(rowid), data); err != nil {
			return sqlerr.ResultOK, nil, err
		}
		c.rowCacheOK = false
		p.conn.LastInsertRowid = rowid

	case OpDeleteRow:
		if err := p.cursor(op.P1).deleteCurrent(); err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpIdxInsert:
		// P1 = index cursor, P3 = register holding the already-encoded
		// key (declared index columns plus the trailing rowid field).
		key := p.cells[op.P3reg()].Bytes
		if err := p.cursor(op.P1).insertIndexEntry(key); err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpIdxDelete:
		// P1 = index cursor, P3 = register holding the same encoded
		// key OpIdxInsert stored this row's entry under.
		key := p.cells[op.P3reg()].Bytes
		if err := p.cursor(op.P1).deleteIndexEntry(key); err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpIdxGE:
		// P1 = index cursor, P2 = jump target if no key >= probe
		// exists, P3 = register holding the probe key.
		probe := p.cells[op.P3reg()].Bytes
		found, err := p.cursor(op.P1).seekGE(probe)
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		if !found {
			p.pc = op.P2
			advance = false
		}

	case OpIdxRowid:
		id, err := p.cursor(op.P1).idxRowid()
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		p.cells[op.P2].SetInt(id)

	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		a := p.cellToValue(p.cells[op.P1])
		b := p.cellToValue(p.cells[op.P3reg()])
		cmp := record.Compare(a, b, nil)
		branch := false
		switch op.Opcode {
		case OpEq:
			branch = cmp == 0
		case OpNe:
			branch = cmp != 0
		case OpLt:
			branch = cmp < 0
		case OpLe:
			branch = cmp <= 0
		case OpGt:
			branch = cmp > 0
		case OpGe:
			branch = cmp >= 0
		}
		if branch {
			p.pc = op.P2
			advance = false
		}

	case OpIf:
		if p.cells[op.P1].Truthy() {
			p.pc = op.P2
			advance = false
		}

	case OpIfNot:
		if !p.cells[op.P1].Truthy() {
			p.pc = op.P2
			advance = false
		}

	case OpIfZero:
		if p.cells[op.P1].Int == 0 {
			p.pc = op.P2
			advance = false
		}

	case OpAdd, OpSubtract, OpMultiply:
		p.arith(op)

	case OpAggStep:
		if err := p.aggStep(op); err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpAggFinal:
		if err := p.aggFinal(op); err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpAggReset:
		delete(p.agg, op.P1)

	case OpFunction:
		if err := p.callFunction(op); err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpInSet:
		info, _ := op.P3.(*InSetInfo)
		if info == nil {
			return sqlerr.ResultOK, nil, sqlerr.ErrInternal.New("InSet missing set info")
		}
		v := p.cells[op.P1]
		if v.Flags&FlagNull != 0 {
			// NULL is never a member and never excluded either (spec's
			// three-valued IN semantics); treat as "not found" so the
			// caller's NULL-handling branch, not this opcode, decides.
			p.pc = op.P2
			advance = false
			break
		}
		if !info.Hash.Test(info.SetID, v.Int) {
			p.pc = op.P2
			advance = false
		}

	case OpCreateTable:
		t, _ := op.P3.(*catalog.Table)
		if t == nil {
			return sqlerr.ResultOK, nil, sqlerr.ErrInternal.New("CreateTable missing descriptor")
		}
		// A view has no backing B-tree (spec §3's ViewSelect
		// invariant) — the descriptor is cataloged without touching
		// the storage backend.
		if !t.IsView() {
			root, err := p.conn.Backend.CreateRoot()
			if err != nil {
				return sqlerr.ResultOK, nil, err
			}
			t.RootPage = root
			t.SetFlag(catalog.FlagCommitted)
		}
		if err := p.conn.Catalog.InsertTable(t); err != nil {
			return sqlerr.ResultOK, nil, err
		}
		if op.P2 != 0 {
			p.cells[op.P2].SetInt(t.RootPage)
		}

	case OpCreateIndex:
		idx, _ := op.P3.(*catalog.Index)
		if idx == nil {
			return sqlerr.ResultOK, nil, sqlerr.ErrInternal.New("CreateIndex missing descriptor")
		}
		root, err := p.conn.Backend.CreateRoot()
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		idx.RootPage = root
		if err := p.conn.Catalog.InsertIndex(idx); err != nil {
			return sqlerr.ResultOK, nil, err
		}
		if op.P2 != 0 {
			p.cells[op.P2].SetInt(root)
		}

	case OpDropTable:
		name, _ := op.P3.(string)
		t, err := p.conn.Catalog.RemoveTable(name)
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		if !t.IsView() {
			if err := p.conn.Backend.Destroy(t.RootPage); err != nil {
				return sqlerr.ResultOK, nil, err
			}
			for idx := t.Indexes; idx != nil; idx = idx.Next {
				if err := p.conn.Backend.Destroy(idx.RootPage); err != nil {
					return sqlerr.ResultOK, nil, err
				}
			}
		}

	case OpDropIndex:
		name, _ := op.P3.(string)
		idx, err := p.conn.Catalog.RemoveIndex(name)
		if err != nil {
			return sqlerr.ResultOK, nil, err
		}
		if err := p.conn.Backend.Destroy(idx.RootPage); err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpCreateTrigger:
		trig, _ := op.P3.(*ast.Trigger)
		if trig == nil {
			return sqlerr.ResultOK, nil, sqlerr.ErrInternal.New("CreateTrigger missing descriptor")
		}
		owner, ok := p.conn.Catalog.FindTable(trig.Table)
		if !ok {
			return sqlerr.ResultOK, nil, sqlerr.ErrNotFound.New("no such table: " + trig.Table)
		}
		if err := p.conn.Catalog.InsertTrigger(owner, trig); err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpDropTrigger:
		name, _ := op.P3.(string)
		if _, err := p.conn.Catalog.RemoveTrigger(name); err != nil {
			return sqlerr.ResultOK, nil, err
		}

	case OpAnalyze:
		name, _ := op.P3.(string)
		var tables []*catalog.Table
		if name == "" {
			tables = p.conn.Catalog.Tables()
		} else {
			t, ok := p.conn.Catalog.FindTable(name)
			if !ok {
				return sqlerr.ResultOK, nil, sqlerr.ErrNotFound.New("no such table: " + name)
			}
			tables = []*catalog.Table{t}
		}
		for _, t := range tables {
			if t.IsView() {
				continue
			}
			count, err := p.countRoot(t.RootPage)
			if err != nil {
				return sqlerr.ResultOK, nil, err
			}
			p.conn.Catalog.Stats[strings.ToLower(t.Name)] = count
			for idx := t.Indexes; idx != nil; idx = idx.Next {
				icount, err := p.countRoot(idx.RootPage)
				if err != nil {
					return sqlerr.ResultOK, nil, err
				}
				p.conn.Catalog.Stats[strings.ToLower(idx.Name)] = icount
			}
		}

	case OpParseSchema:
		// Schema reload is driven by the caller (Finalize observes
		// sqlerr.IsSchemaChanged and re-prepares); nothing to do inline.

	default:
		return sqlerr.ResultOK, nil, sqlerr.ErrInternal.New("unimplemented opcode " + op.Opcode.String())
	}

	if advance {
		p.pc++
	}
	return result, row, nil
}

// P3reg/P1reg read an opcode's P3/P1 as a register number; several
// opcodes overload P3 to mean "destination register" rather than a
// literal, matching the classic VDBE convention.
func (op Op) P3reg() int {
	if n, ok := op.P3.(int); ok {
		return n
	}
	return 0
}

func (op Op) P1reg() int { return op.P1 }

func (p *Program) setCursor(i int, c *vmCursor) {
	for len(p.cursors) <= i {
		p.cursors = append(p.cursors, nil)
	}
	p.cursors[i] = c
}

func (p *Program) cursor(i int) *vmCursor {
	if i < 0 || i >= len(p.cursors) {
		return nil
	}
	return p.cursors[i]
}

// countRoot opens a throwaway read cursor over root and counts its
// entries, for OpAnalyze. It does not go through the VM's numbered
// cursor slots since ANALYZE has no compiled cursor allocated for it.
func (p *Program) countRoot(root int64) (int64, error) {
	cur, err := p.conn.Backend.OpenCursor(root, false)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	var n int64
	ok, err := cur.First()
	if err != nil {
		return 0, err
	}
	for ok {
		n++
		ok, err = cur.Next()
		if err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (p *Program) cellToValue(c Cell) record.Value {
	switch {
	case c.Flags&FlagNull != 0:
		return record.Null
	case c.Flags&FlagInt != 0:
		return record.NewInt(c.Int)
	case c.Flags&FlagReal != 0:
		return record.NewReal(c.Real)
	case c.Flags&FlagZeroBlob != 0:
		return record.NewBlob(make([]byte, c.Int))
	case c.Flags&FlagBlob != 0:
		return record.NewBlob(c.Bytes)
	default:
		return record.NewText(string(c.Bytes))
	}
}

func (p *Program) setCellFromValue(reg int, v record.Value) {
	switch v.Kind {
	case record.KindNull:
		p.cells[reg].SetNull()
	case record.KindInt:
		p.cells[reg].SetInt(v.Int)
	case record.KindReal:
		p.cells[reg].SetReal(v.Real)
	case record.KindBlob:
		p.cells[reg].SetBlob(v.Bytes, true)
	default:
		p.cells[reg].SetText(v.Str, true)
	}
}

func (p *Program) arith(op Op) {
	a := p.cells[op.P1]
	b := p.cells[op.P3reg()]
	if a.Flags&FlagReal != 0 || b.Flags&FlagReal != 0 {
		af, bf := a.Real, b.Real
		if a.Flags&FlagInt != 0 {
			af = float64(a.Int)
		}
		if b.Flags&FlagInt != 0 {
			bf = float64(b.Int)
		}
		var r float64
		switch op.Opcode {
		case OpAdd:
			r = af + bf
		case OpSubtract:
			r = bf - af
		case OpMultiply:
			r = af * bf
		}
		p.cells[op.P2].SetReal(r)
		return
	}
	var r int64
	switch op.Opcode {
	case OpAdd:
		r = a.Int + b.Int
	case OpSubtract:
		r = b.Int - a.Int
	case OpMultiply:
		r = a.Int * b.Int
	}
	p.cells[op.P2].SetInt(r)
}

func (p *Program) callFunction(op Op) error {
	name, _ := op.P3.(string)
	argc := op.P1
	start := op.P2
	fn, ok := p.conn.lookupFunction(name, argc)
	if !ok {
		return sqlerr.ErrNotFound.New("function " + name)
	}
	result, err := fn.Func(p.cells[start : start+argc])
	if err != nil {
		return err
	}
	p.cells[start] = result
	return nil
}

// InSetInfo is OpInSet's P3 operand: the row-hash engine built at
// compile time from the IN-list's constant members, plus the set-id
// token that groups every Test call against this one list into a
// single build generation (spec §4.4).
type InSetInfo struct {
	Hash  *rowhash.RowHash
	SetID int64
}

// aggCallInfo packs the function name and argument count an
// OpAggStep opcode needs beyond its P1 (slot) and P2 (first argument
// register) operands.
type aggCallInfo struct {
	Name string
	Argc int
}

func (p *Program) aggStep(op Op) error {
	info, _ := op.P3.(*aggCallInfo)
	if info == nil {
		return sqlerr.ErrInternal.New("AggStep missing call info")
	}
	slot := op.P1
	start := op.P2
	fn, ok := p.conn.lookupFunction(info.Name, info.Argc)
	if !ok {
		return sqlerr.ErrNotFound.New("aggregate " + info.Name)
	}
	st, ok := p.agg[slot]
	if !ok {
		st = &aggState{fn: fn}
		p.agg[slot] = st
	}
	ctx, err := fn.Step(st.ctx, p.cells[start:start+info.Argc])
	if err != nil {
		return err
	}
	st.ctx = ctx
	st.stepped = true
	return nil
}

// aggFinal invokes the finalizer exactly once per slot and releases
// the function-owned context (spec §4.6's aggregate-reset rule).
func (p *Program) aggFinal(op Op) error {
	slot := op.P1
	st, ok := p.agg[slot]
	if !ok || st.fn.Final == nil {
		p.cells[op.P2].SetNull()
		return nil
	}
	result, err := st.fn.Final(st.ctx)
	if err != nil {
		return err
	}
	p.cells[op.P2] = result
	delete(p.agg, slot)
	return nil
}
