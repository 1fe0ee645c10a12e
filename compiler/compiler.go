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

// Package compiler is the query compiler (C5) and trigger engine
// (C8): it lowers parsed statements (spec §4.5, §4.8) into vm.Program
// opcode lists, consulting the catalog for name/column resolution and
// the row-hash engine for IN-set membership tests.
package compiler

import (
	"github.com/satori/go.uuid"

	"github.com/tursodatabase/libsql-sub000/catalog"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/vm"
)

// Compiler is the parse context spec §3 describes: the database
// back-reference, the program under construction, and the counters
// and trigger stack compilation needs. One Compiler compiles one
// top-level statement (and, inline, any triggers it fires); build a
// fresh one per statement.
type Compiler struct {
	Conn *vm.Conn
	prog *vm.Program

	nCursor int
	nReg    int
	nextVar int // auto-numbering counter for anonymous `?` placeholders
	maxVar  int // high-water mark across both `?` and `?N` placeholders

	// InitFlag mirrors the parse context's init flag (spec §3), which
	// marks a replay of stored CREATE statements at open time. The DDL
	// compilers do not read it: CREATE emits the same storage-allocation
	// opcodes whether it is set or not.
	InitFlag bool

	// triggerStack holds the names of triggers currently being coded,
	// the recursion guard spec §4.8 requires (a trigger already on the
	// stack is skipped rather than re-entered).
	triggerStack []string

	errCount int
}

func New(conn *vm.Conn) *Compiler {
	return &Compiler{Conn: conn}
}

func (c *Compiler) newProgram() *vm.Program {
	c.prog = vm.Create(c.Conn)
	return c.prog
}

func (c *Compiler) allocCursor() int {
	n := c.nCursor
	c.nCursor++
	return n
}

func (c *Compiler) allocReg() int {
	c.nReg++
	return c.nReg
}

// allocRegs reserves n consecutive registers and returns the first
// one's number, for codegen that needs a contiguous run (OpMakeRecord
// reads its columns as cells[base:base+n]).
func (c *Compiler) allocRegs(n int) int {
	base := c.nReg + 1
	c.nReg += n
	return base
}

// NumVars reports the host-parameter count a program compiled by c
// needs (the high-water mark across every `?`/`?N` placeholder seen),
// for the caller to pass to vm.Program.MakeReady.
func (c *Compiler) NumVars() int { return c.maxVar }

// transientName synthesizes a name for a flattener/trigger-generated
// ephemeral table, using a UUID so repeated compilations of the same
// statement text never collide within one process (SPEC_FULL.md §B).
func transientName(prefix string) string {
	return prefix + "_" + uuid.NewV4().String()
}

func (c *Compiler) findTable(name string) (*catalog.Table, error) {
	t, ok := c.Conn.Catalog.FindTable(name)
	if !ok {
		return nil, sqlerr.ErrNotFound.New("no such table: " + name)
	}
	return t, nil
}

// pushTrigger/popTrigger/onTriggerStack implement the C8 recursion
// guard (spec §4.8, §8's "Trigger recursion" invariant): a trigger
// already being coded for the current statement is never re-entered.
func (c *Compiler) pushTrigger(name string) { c.triggerStack = append(c.triggerStack, name) }

func (c *Compiler) popTrigger() {
	if len(c.triggerStack) > 0 {
		c.triggerStack = c.triggerStack[:len(c.triggerStack)-1]
	}
}

func (c *Compiler) onTriggerStack(name string) bool {
	for _, n := range c.triggerStack {
		if n == name {
			return true
		}
	}
	return false
}
