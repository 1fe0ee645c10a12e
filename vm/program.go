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
	"io"

	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
)

// State is a Program's lifecycle tag (spec §3 "magic-value lifecycle
// tag").
type State int

const (
	StateInit State = iota
	StateRun
	StateHalt
	StateDead
)

// aggState is the per-slot accumulator an aggregate function's Step
// builds up across a group; Finalize converts it to the result Cell
// and releases it, matching spec §4.6's "invoke the finalizer exactly
// once" rule.
type aggState struct {
	fn      *Function
	ctx     interface{}
	stepped bool
}

// Program is the compiled opcode array plus its execution context
// (spec §3 "Bytecode program"): the operand stack, fixed memory-cell
// array, cursor array, and lifecycle tag all live here.
type Program struct {
	conn *Conn

	ops []Op

	nextLabel int
	labelAddr map[int]int   // label -> resolved address, once known
	labelRefs map[int][]int // label -> op indices with a pending P2 ref

	state State
	pc    int

	cells   []Cell
	vars    []Cell
	cursors []*vmCursor
	agg     map[int]*aggState

	resultOnStack bool
	resultRow     []Cell

	explain bool
	trace   io.Writer

	errAction ast.ConflictPolicy

	schemaCookie    uint64
	haveSchemaHash  bool
	statementActive bool
}

// Create begins a new program in INIT state (spec §4.6 "create").
func Create(conn *Conn) *Program {
	return &Program{
		conn:      conn,
		labelAddr: map[int]int{},
		labelRefs: map[int][]int{},
		errAction: ast.ConflictAbort,
	}
}

func (p *Program) State() State { return p.state }

func (p *Program) requireInit() error {
	if p.state != StateInit {
		return sqlerr.ErrMisuse.New("program accepts opcodes only in INIT")
	}
	return nil
}

// AddOp appends an opcode with no P3 operand, returning its address.
func (p *Program) AddOp(op Opcode, p1, p2 int) (int, error) {
	return p.Op3(op, p1, p2, nil, P3NotUsed)
}

// Op3 appends an opcode with a P3 operand, recording its ownership
// tag (spec §4.6 "op3").
func (p *Program) Op3(op Opcode, p1, p2 int, p3 interface{}, p3type P3Type) (int, error) {
	if err := p.requireInit(); err != nil {
		return 0, err
	}
	addr := len(p.ops)
	p.ops = append(p.ops, Op{Opcode: op, P1: p1, P2: p2, P3: p3, P3Type: p3type})
	if p2 < 0 {
		p.labelRefs[p2] = append(p.labelRefs[p2], addr)
	}
	return addr, nil
}

// MakeLabel allocates a new, as-yet-unresolved label (always
// negative, per spec §4.6).
func (p *Program) MakeLabel() int {
	p.nextLabel--
	return p.nextLabel
}

// ResolveLabel binds label to the current (about-to-be-emitted)
// address and back-patches every opcode that referenced it as P2.
func (p *Program) ResolveLabel(label int) error {
	if err := p.requireInit(); err != nil {
		return err
	}
	addr := len(p.ops)
	p.labelAddr[label] = addr
	for _, ref := range p.labelRefs[label] {
		p.ops[ref].P2 = addr
	}
	delete(p.labelRefs, label)
	return nil
}

func (p *Program) ChangeP1(addr, p1 int) { p.ops[addr].P1 = p1 }

func (p *Program) ChangeP2(addr, p2 int) error {
	old := p.ops[addr].P2
	if old < 0 {
		refs := p.labelRefs[old]
		for i, r := range refs {
			if r == addr {
				p.labelRefs[old] = append(refs[:i], refs[i+1:]...)
				break
			}
		}
	}
	p.ops[addr].P2 = p2
	if p2 < 0 {
		p.labelRefs[p2] = append(p.labelRefs[p2], addr)
	}
	return nil
}

// ChangeP3 replaces an opcode's P3 operand, implicitly dropping the
// old variant (spec §9's typed-replacement strategy).
func (p *Program) ChangeP3(addr int, p3 interface{}, p3type P3Type) {
	p.ops[addr].P3 = p3
	p.ops[addr].P3Type = p3type
}

// AddOpList appends a static opcode template. Within the template, a
// P2 value in [-len(tpl), -1] is a relative jump (offset from its own
// position) and is translated to an absolute program address at the
// template's actual insertion point; any other negative P2 is treated
// as a genuine label reference into the surrounding program and is
// left for the caller's own ResolveLabel to patch.
func (p *Program) AddOpList(tpl []Op) ([]int, error) {
	if err := p.requireInit(); err != nil {
		return nil, err
	}
	base := len(p.ops)
	addrs := make([]int, len(tpl))
	for i, op := range tpl {
		addr := base + i
		if op.P2 < 0 && -op.P2 <= len(tpl) {
			op.P2 = addr + op.P2
		} else if op.P2 < 0 {
			p.labelRefs[op.P2] = append(p.labelRefs[op.P2], addr)
		}
		p.ops = append(p.ops, op)
		addrs[i] = addr
	}
	return addrs, nil
}

// MakeReady transitions INIT -> RUN (spec §4.6 "make_ready"): appends
// a final Halt, allocates register storage, zero-fills host-parameter
// storage, and initializes the aggregate slot map.
func (p *Program) MakeReady(nVar int, isExplain bool) error {
	if err := p.requireInit(); err != nil {
		return err
	}
	for label, refs := range p.labelRefs {
		if len(refs) > 0 {
			return sqlerr.ErrInternal.New("unresolved label " + itoa(int64(label)))
		}
	}
	p.AddOp(OpHalt, 0, 0)
	// One operand-stack slot per opcode is an upper bound, since every
	// opcode pushes at most one net value (spec §4.6).
	p.cells = make([]Cell, len(p.ops)+1)
	p.vars = make([]Cell, nVar)
	p.agg = map[int]*aggState{}
	p.explain = isExplain
	p.state = StateRun
	p.pc = 0
	return nil
}

func (p *Program) SetSchemaCookie(cookie uint64) {
	p.schemaCookie = cookie
	p.haveSchemaHash = true
}

func (p *Program) SetErrorAction(a ast.ConflictPolicy) { p.errAction = a }

func (p *Program) SetTrace(w io.Writer) { p.trace = w }

// Bind* implement host-parameter binding (spec §4.6): legal only in
// RUN state with pc == 0.
func (p *Program) bindCheck(i int) error {
	if p.state != StateRun {
		return sqlerr.ErrMisuse.New("bind outside RUN state")
	}
	if p.pc != 0 {
		return sqlerr.ErrMisuse.New("bind after program has started stepping")
	}
	if i < 1 || i > len(p.vars) {
		return sqlerr.ErrRange.New()
	}
	return nil
}

func (p *Program) BindInt(i int, v int64) error {
	if err := p.bindCheck(i); err != nil {
		return err
	}
	p.vars[i-1].SetInt(v)
	return nil
}

func (p *Program) BindDouble(i int, v float64) error {
	if err := p.bindCheck(i); err != nil {
		return err
	}
	p.vars[i-1].SetReal(v)
	return nil
}

func (p *Program) BindText(i int, v string, copy bool) error {
	if err := p.bindCheck(i); err != nil {
		return err
	}
	p.vars[i-1].SetText(v, copy)
	return nil
}

func (p *Program) BindBlob(i int, v []byte, copy bool) error {
	if err := p.bindCheck(i); err != nil {
		return err
	}
	p.vars[i-1].SetBlob(v, copy)
	return nil
}

func (p *Program) BindNull(i int) error {
	if err := p.bindCheck(i); err != nil {
		return err
	}
	p.vars[i-1].SetNull()
	return nil
}

func (p *Program) BindZeroBlob(i int, n int64) error {
	if err := p.bindCheck(i); err != nil {
		return err
	}
	p.vars[i-1].SetZeroBlob(n)
	return nil
}

// ResultRow returns the current result row's cells, valid only right
// after Step returns sqlerr.ResultRow.
func (p *Program) ResultRow() []Cell { return p.resultRow }

// BoundVar returns the 1-indexed host parameter's currently bound
// value, or a Null cell if it was never bound. Used by the trace
// expander (C7) to render a parameter's literal form into SQL text.
func (p *Program) BoundVar(i int) Cell {
	if i < 1 || i > len(p.vars) || p.vars[i-1].Flags == 0 {
		return Cell{Flags: FlagNull}
	}
	return p.vars[i-1]
}

// NumVars reports how many host parameters this program was prepared
// with (the nVar argument to MakeReady).
func (p *Program) NumVars() int { return len(p.vars) }

// Ops returns the program's compiled opcode array. Intended for
// introspection — the EXPLAIN renderer (C7) and tests that assert on
// codegen shape rather than just runtime behavior.
func (p *Program) Ops() []Op { return p.ops }
