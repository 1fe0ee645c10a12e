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
	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
)

// Reset cleans up cursors, the aggregate context, and memory cells,
// rolls back statement-level changes per the program's recorded error
// action, commits the per-database statement sub-transaction on
// success, and returns the program to INIT (spec §4.6 "reset").
func (p *Program) Reset(stepErr error) (sqlerr.Result, error) {
	for i, c := range p.cursors {
		if c != nil {
			c.close()
			p.cursors[i] = nil
		}
	}
	p.agg = map[int]*aggState{}
	for i := range p.cells {
		p.cells[i].Release()
	}

	var result sqlerr.Result
	var err error

	if stepErr == nil {
		if p.conn != nil && p.conn.Backend != nil {
			err = p.conn.Backend.CommitStmt()
		}
		result = sqlerr.ResultOK
	} else {
		switch p.errAction {
		case ast.ConflictRollback:
			if p.conn != nil && p.conn.Backend != nil {
				p.conn.Backend.RollbackStmt()
				p.conn.Backend.Rollback()
			}
		case ast.ConflictAbort, ast.ConflictDefault:
			if p.conn != nil && p.conn.Backend != nil {
				p.conn.Backend.RollbackStmt()
			}
		case ast.ConflictFail:
			if p.conn != nil && p.conn.Backend != nil {
				p.conn.Backend.CommitStmt()
			}
		case ast.ConflictIgnore:
			if p.conn != nil && p.conn.Backend != nil {
				p.conn.Backend.CommitStmt()
			}
		}
		err = stepErr
		result = sqlerr.ResultOK
	}

	p.pc = 0
	p.resultOnStack = false
	p.resultRow = nil
	if p.state != StateDead {
		p.state = StateInit
	}
	return result, err
}

// Finalize is reset followed by destroying the program; it is
// idempotent after the first call (spec §8 lifecycle invariant). If
// stepErr indicates the schema changed, the caller's catalog should be
// reloaded before the next prepare — sqlerr.IsSchemaChanged(err)
// reports when that is needed.
func (p *Program) Finalize(stepErr error) (sqlerr.Result, error) {
	if p.state == StateDead {
		return sqlerr.ResultOK, nil
	}
	result, err := p.Reset(stepErr)
	p.state = StateDead
	p.ops = nil
	p.cells = nil
	p.vars = nil
	return result, err
}
