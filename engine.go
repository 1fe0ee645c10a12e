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

// Package libsql is the root-level embeddable handle: it wires the
// catalog, compiler, virtual machine, and boltdb storage backend
// together the way the teacher's engine.go wires its own Analyzer,
// Catalog, and transaction session into one Engine value.
package libsql

import (
	"math/rand"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/sean-/seed"
	"github.com/sirupsen/logrus"

	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/catalog"
	"github.com/tursodatabase/libsql-sub000/compiler"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
	"github.com/tursodatabase/libsql-sub000/storage"
	"github.com/tursodatabase/libsql-sub000/storage/mutex"
	"github.com/tursodatabase/libsql-sub000/vm"
)

// preparedEntry is one slot of Engine's prepared-program cache
// (SPEC_FULL.md §C): the cached opcode template plus the schema
// cookie it was compiled against, and the host-parameter count the
// caller needs for Program.MakeReady on every reuse.
type preparedEntry struct {
	ops    []vm.Op
	nVars  int
	cookie uint64
}

// Engine is the process-accessible database handle an embedder opens
// (spec §3's Conn, one level up): it owns the storage backend, the
// VM connection, and the compiled-program cache, and is the unit
// whole-transaction autocommit semantics (commit/rollback of both the
// backend transaction and the catalog's deferred create/drop
// bookkeeping) are implemented against.
type Engine struct {
	Conn   *vm.Conn
	Config *Config

	backend *storage.BoltBackend
	log     *logrus.Entry

	cacheMu sync.Mutex
	cache   map[string]*preparedEntry
}

// Open opens (creating if necessary) the boltdb file named by
// cfg.Path and returns a ready-to-use Engine. Only one Engine should
// have a given path open at a time; boltdb itself enforces this with
// a file lock. storage.Open sets no lock timeout, so it waits for that
// lock, and it reports any failure to open the file as
// sqlerr.ErrCannotOpen.
func Open(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, sqlerr.ErrMisuse.New("Config is required")
	}
	backend, err := storage.Open(cfg.Path)
	if err != nil {
		return nil, err
	}

	// seed.Init picks a non-deterministic seed for math/rand the way a
	// long-lived server process would (spec's rowid generator needs an
	// unpredictable starting point, not the package-level default seed
	// every process otherwise shares).
	seed.Init()

	cat := catalog.New()
	m := mutex.NewCheckedMutex(func() int64 { return 1 })
	conn := vm.NewConn(backend, cat, m)
	conn.DefaultConflict = cfg.DefaultConflict
	conn.NextRandomRowid = func() int64 { return rand.Int63() }

	e := &Engine{
		Conn:    conn,
		Config:  cfg,
		backend: backend,
		log:     logrus.WithField("component", "engine"),
		cache:   map[string]*preparedEntry{},
	}
	if cfg.BusyTimeout > 0 {
		e.wireBusyHandler()
	}
	return e, nil
}

// wireBusyHandler installs a sqlite-style backoff table: short sleeps
// at first, lengthening up to 100ms, until cfg.BusyTimeout has
// elapsed, after which the handler gives up and the busy error
// surfaces to the caller (spec §5 "Suspension points").
func (e *Engine) wireBusyHandler() {
	delays := []int{1, 2, 5, 10, 15, 20, 25, 25, 25, 50, 50, 100}
	e.Conn.BusyHandler = func(retries int) bool {
		var waited time.Duration
		for i := 0; i <= retries; i++ {
			d := delays[len(delays)-1]
			if i < len(delays) {
				d = delays[i]
			}
			waited += time.Duration(d) * time.Millisecond
		}
		if waited > e.Config.BusyTimeout {
			return false
		}
		d := delays[len(delays)-1]
		if retries < len(delays) {
			d = delays[retries]
		}
		time.Sleep(time.Duration(d) * time.Millisecond)
		return true
	}
}

// RegisterFunction adds a scalar or aggregate SQL function to the
// connection's function registry (spec §6).
func (e *Engine) RegisterFunction(fn *vm.Function) {
	e.Conn.RegisterFunction(fn)
}

// isWriteStmt reports whether stmt is one Config.IsReadOnly should
// reject: anything other than a SELECT or ANALYZE.
func isWriteStmt(stmt interface{}) bool {
	switch stmt.(type) {
	case *ast.Select, *ast.Analyze:
		return false
	default:
		return true
	}
}

// compile lowers one parsed statement into a fresh vm.Program,
// dispatching to the compiler method that matches its concrete type.
// It also returns the host-parameter count the compiler assigned, so
// prepare can size Program.MakeReady's call without a second pass.
func (e *Engine) compile(stmt interface{}) (*vm.Program, int, error) {
	c := compiler.New(e.Conn)
	var p *vm.Program
	var err error
	switch s := stmt.(type) {
	case *ast.Select:
		p, err = c.CompileSelect(s)
	case *ast.Insert:
		p, err = c.CompileInsert(s)
	case *ast.Update:
		p, err = c.CompileUpdate(s)
	case *ast.Delete:
		p, err = c.CompileDelete(s)
	case *ast.CreateTable:
		p, err = c.CompileCreateTable(s)
	case *ast.CreateIndex:
		p, err = c.CompileCreateIndex(s)
	case *ast.CreateViewStmt:
		p, err = c.CompileCreateView(s)
	case *ast.CreateTriggerStmt:
		p, err = c.CompileCreateTrigger(s)
	case *ast.Analyze:
		p, err = c.CompileAnalyze(s)
	case *ast.Drop:
		p, err = c.CompileDrop(s)
	default:
		return nil, 0, sqlerr.ErrMisuse.New("unsupported statement type")
	}
	if err != nil {
		return nil, 0, err
	}
	return p, c.NumVars(), nil
}

// prepare returns a Program ready to bind and step, reusing the
// cached opcode template under key when the catalog's schema cookie
// still matches the one it was compiled against (SPEC_FULL.md §C: the
// cache is "keyed by SQL text... invalidated wholesale on any catalog
// mutation" — invalidation here is per-entry, by cookie comparison,
// which is equivalent for a cache that is never read from two
// different schema generations at once). key is the caller's own
// identity for stmt (typically the original SQL text); it is opaque
// to Engine.
func (e *Engine) prepare(key string, stmt interface{}) (*vm.Program, error) {
	cookie, err := e.Conn.Catalog.SchemaCookie()
	if err != nil {
		return nil, err
	}

	e.cacheMu.Lock()
	entry, ok := e.cache[key]
	e.cacheMu.Unlock()
	if ok && entry.cookie == cookie {
		p := vm.Create(e.Conn)
		if _, err := p.AddOpList(entry.ops); err != nil {
			return nil, err
		}
		if err := p.MakeReady(entry.nVars, false); err != nil {
			return nil, err
		}
		p.SetSchemaCookie(cookie)
		return p, nil
	}

	p, nVars, err := e.compile(stmt)
	if err != nil {
		return nil, err
	}
	ops := append([]vm.Op(nil), p.Ops()...)
	if err := p.MakeReady(nVars, false); err != nil {
		return nil, err
	}
	p.SetSchemaCookie(cookie)

	e.cacheMu.Lock()
	e.cache[key] = &preparedEntry{ops: ops, nVars: nVars, cookie: cookie}
	e.cacheMu.Unlock()
	return p, nil
}

// Exec compiles (or reuses) the program for stmt under key, runs
// bind against it once it reaches RUN state, steps it to completion,
// and commits or rolls back the whole outer transaction around it —
// the whole-transaction autocommit semantics Program.Reset/Finalize
// leave to their caller (they manage only the statement
// sub-transaction; see their doc comments). bind may be nil for a
// statement with no host parameters.
func (e *Engine) Exec(key string, stmt interface{}, bind func(p *vm.Program) error) ([][]vm.Cell, error) {
	if e.Config.IsReadOnly && isWriteStmt(stmt) {
		return nil, sqlerr.ErrReadOnly.New()
	}

	e.Conn.Mutex.Enter()
	defer e.Conn.Mutex.Leave()

	var span opentracing.Span
	if e.Conn.Tracer != nil {
		span = e.Conn.Tracer.StartSpan("sql.exec")
		defer span.Finish()
	}
	fail := func(err error) ([][]vm.Cell, error) {
		if span != nil {
			span.SetTag("error", true)
		}
		return nil, err
	}

	p, err := e.prepare(key, stmt)
	if err != nil {
		return fail(err)
	}
	if bind != nil {
		if err := bind(p); err != nil {
			p.Finalize(err)
			return fail(err)
		}
	}

	var rows [][]vm.Cell
	for {
		res, stepErr := p.Step()
		if stepErr != nil {
			p.Finalize(stepErr)
			if rerr := e.Conn.Backend.Rollback(); rerr != nil && !sqlerr.IsMisuse(rerr) {
				e.log.WithError(rerr).Warn("rollback after statement error failed")
			}
			e.Conn.Catalog.RollbackDrops()
			e.Conn.Catalog.RollbackCreates()
			if span != nil {
				span.SetTag("error", true)
			}
			return rows, stepErr
		}
		if res == sqlerr.ResultDone {
			break
		}
		if res == sqlerr.ResultRow {
			rows = append(rows, append([]vm.Cell(nil), p.ResultRow()...))
		}
	}

	if _, err := p.Finalize(nil); err != nil {
		e.Conn.Catalog.RollbackDrops()
		e.Conn.Catalog.RollbackCreates()
		return fail(err)
	}
	if err := e.Conn.Backend.Commit(); err != nil && !sqlerr.IsMisuse(err) {
		e.Conn.Catalog.RollbackDrops()
		e.Conn.Catalog.RollbackCreates()
		return fail(err)
	}
	e.Conn.Catalog.CommitDrops()
	e.Conn.Catalog.CommitCreates()
	return rows, nil
}

// Close releases the storage backend's file lock. Any in-flight
// Program must be finalized first; Close does not do it implicitly.
func (e *Engine) Close() error {
	return e.backend.Close()
}
