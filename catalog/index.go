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

package catalog

import "github.com/tursodatabase/libsql-sub000/ast"

// Index is an index descriptor. Table is a borrowed back-reference —
// the index never owns its table. Dropped marks an index removed by a
// statement that might still roll back; the catalog keeps such
// entries in a deferred-drop map (see Catalog.RemoveIndex) rather than
// freeing them immediately.
type Index struct {
	Name     string
	Table    *Table // borrowed, never owned
	Columns  []int  // ordered column positions into Table.Columns
	Desc     []bool // per-column descending flag, parallel to Columns
	RootPage int64

	Unique  ast.ConflictPolicy // uniqueness policy
	OnError ast.ConflictPolicy // ON CONFLICT policy for violations

	Dropped bool
	Next    *Index // sibling pointer in the owning table's index list
}

func NewIndex(name string, table *Table, columns []int) *Index {
	return &Index{Name: name, Table: table, Columns: columns}
}
