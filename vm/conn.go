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
	"github.com/opentracing/opentracing-go"

	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/catalog"
	"github.com/tursodatabase/libsql-sub000/storage"
	"github.com/tursodatabase/libsql-sub000/storage/mutex"
)

// Function is a registered SQL function (spec §6 "SQL function
// registry"). Scalar functions set Func; aggregates set Step and
// Final instead. Arity -1 matches any argument count.
type Function struct {
	Name  string
	Arity int
	Func  func(args []Cell) (Cell, error)
	Step  func(ctx interface{}, args []Cell) (interface{}, error)
	Final func(ctx interface{}) (Cell, error)
}

// Conn is the process-accessible database handle spec §3 describes:
// the storage backend, the in-memory catalog, the function registry,
// rowid counters, and the mutex this handle's caller serializes
// global configuration through. Root-level engine construction
// (connection pooling, config loading) lives one level up, outside
// the CORE's scope; Conn is the piece C6 actually touches.
type Conn struct {
	Backend storage.Backend
	Catalog *catalog.Catalog
	Mutex   mutex.Mutex

	Functions map[string]*Function

	LastInsertRowid int64
	NextRandomRowid func() int64

	DefaultConflict ast.ConflictPolicy

	// BusyHandler is invoked with the retry count when the backend
	// reports contention; returning false gives up and surfaces
	// sqlerr.ErrBusy to the caller (spec §5 "Suspension points").
	BusyHandler func(retries int) bool

	Interrupt bool

	Tracer opentracing.Tracer

	writeInProgress bool
}

func NewConn(backend storage.Backend, cat *catalog.Catalog, m mutex.Mutex) *Conn {
	return &Conn{
		Backend:   backend,
		Catalog:   cat,
		Mutex:     m,
		Functions: map[string]*Function{},
	}
}

func (c *Conn) RegisterFunction(fn *Function) {
	c.Functions[fn.Name] = fn
}

func (c *Conn) lookupFunction(name string, argc int) (*Function, bool) {
	fn, ok := c.Functions[name]
	if !ok {
		return nil, false
	}
	if fn.Arity != -1 && fn.Arity != argc {
		return nil, false
	}
	return fn, true
}
