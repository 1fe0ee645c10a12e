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

// Package storage declares the storage backend contract the VM (C6)
// consumes (spec §6) and a concrete boltdb-backed implementation. The
// B-tree/pager file format itself is explicitly out of scope (spec
// §1); bolt's own on-disk B+tree satisfies the contract so the CORE
// has something real to run its cursors against.
package storage

import "github.com/tursodatabase/libsql-sub000/sqlerr"

// MoveResult is the match indicator Moveto returns.
type MoveResult int

const (
	MoveExact MoveResult = iota
	MoveLess
	MoveGreater
	MoveNotFound
)

// Backend is the storage contract §6 names: open/close, transaction
// and statement-sub-transaction control, and cursor construction.
type Backend interface {
	Close() error

	Begin() error
	Commit() error
	Rollback() error

	BeginStmt() error
	CommitStmt() error
	RollbackStmt() error

	// OpenCursor opens a cursor over the B-tree rooted at root
	// (root identifies a table or index — see Table/Index.RootPage).
	OpenCursor(root int64, writable bool) (Cursor, error)

	// Truncate empties the B-tree rooted at root without destroying
	// it; Destroy removes it entirely (used by DROP TABLE/INDEX).
	Truncate(root int64) error
	Destroy(root int64) error

	// CreateRoot allocates storage for a new table/index root,
	// returning its root identifier.
	CreateRoot() (int64, error)
}

// Cursor is a live position within a B-tree.
type Cursor interface {
	Close() error

	// Moveto seeks to key (an encoded record, per the record
	// package, for an index cursor; a raw big-endian rowid for a
	// table cursor). incrKey requests "first key greater than" search
	// semantics (record.CompareIndexKey's incrKey parameter) rather
	// than exact match.
	Moveto(key []byte, incrKey bool) (MoveResult, error)
	Next() (bool, error)
	Prev() (bool, error)
	First() (bool, error)
	Last() (bool, error)

	Insert(key, data []byte) error
	Delete() error

	KeySize() (int, error)
	Key() ([]byte, error)
	DataSize() (int, error)
	Data() ([]byte, error)

	Valid() bool
}

// classify maps a low-level backend error to one of the program-
// visible §7 error kinds the VM and callers consult.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return sqlerr.ErrIOErr.New(err.Error())
}
