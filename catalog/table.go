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

// Package catalog is the schema catalog (C1): the in-memory mapping of
// table/index/trigger names to their descriptors. Lookups are
// case-insensitive and map-backed (bounded), per spec §4.1.
package catalog

import (
	"strings"

	"github.com/tursodatabase/libsql-sub000/ast"
)

// TableFlags is a bitmask of a table descriptor's boolean attributes.
type TableFlags uint8

const (
	FlagReadOnly TableFlags = 1 << iota
	FlagCommitted
	FlagTemp
	FlagTransient
	FlagHasPrimaryKey
)

// Column is one column of a table, as registered in the catalog.
type Column struct {
	Name       string
	Type       string
	Default    string
	NotNull    bool
	PrimaryKey bool
}

// Table is a table descriptor. PKColumn is -1 when rowid is implicit;
// when set, per spec §3's invariant, Columns[PKColumn].Type must be
// "INTEGER" and the column behaves as an alias for rowid. Committed
// implies RootPage refers to a real on-disk page; Transient implies
// RootPage is instead a VM cursor number (an ephemeral table backing a
// subquery/union/except result set, per spec §3).
type Table struct {
	Name     string
	Columns  []Column
	PKColumn int

	Indexes *Index // linked list head; owned
	RootPage int64
	Flags    TableFlags

	ConflictPolicy ast.ConflictPolicy
	ViewSelect     *ast.Select
	Triggers       []*ast.Trigger

	RefCount int
}

func NewTable(name string) *Table {
	return &Table{Name: name, PKColumn: -1}
}

func (t *Table) HasFlag(f TableFlags) bool { return t.Flags&f != 0 }
func (t *Table) SetFlag(f TableFlags)      { t.Flags |= f }
func (t *Table) ClearFlag(f TableFlags)    { t.Flags &^= f }

// IsView reports whether this descriptor represents a CREATE VIEW.
func (t *Table) IsView() bool { return t.ViewSelect != nil }

// ColumnIndex returns the ordinal position of name, or -1 if absent.
// Comparison is case-insensitive per spec §3 ("Column. Name...").
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// AddIndex links idx at the head of t's index list (O(1) insert, per
// spec §9's linked-list-container guidance).
func (t *Table) AddIndex(idx *Index) {
	idx.Table = t
	idx.Next = t.Indexes
	t.Indexes = idx
}

// RemoveIndex unlinks idx by name from t's index list.
func (t *Table) RemoveIndex(name string) bool {
	var prev *Index
	for cur := t.Indexes; cur != nil; cur = cur.Next {
		if strings.EqualFold(cur.Name, name) {
			if prev == nil {
				t.Indexes = cur.Next
			} else {
				prev.Next = cur.Next
			}
			cur.Next = nil
			return true
		}
		prev = cur
	}
	return false
}
