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

import (
	"sort"
	"strings"

	"github.com/mitchellh/hashstructure"

	"github.com/tursodatabase/libsql-sub000/ast"
	"github.com/tursodatabase/libsql-sub000/sqlerr"
)

// MasterRow is one row of the on-disk master catalog table (§6): rows
// are (type, name, tbl_name, rootpage, sql). A "meta" row with
// sql = "file format N" records the file-format version; SPEC_FULL.md
// §C also uses a "meta" row family to persist ANALYZE statistics.
type MasterRow struct {
	Type     string // "table" | "index" | "trigger" | "view" | "meta"
	Name     string
	TblName  string
	RootPage int64
	SQL      string
}

// Catalog is the in-memory mapping of table/index/trigger names to
// their descriptors (C1). Lookups are case-insensitive. InitFlag marks
// a replay of stored CREATE statements at open time (spec §4.1);
// neither the compiler nor the VM reads it, so it does not change the
// opcodes or disk writes a CREATE produces.
type Catalog struct {
	InitFlag bool

	tables   map[string]*Table
	indexes  map[string]*Index
	triggers map[string]*ast.Trigger

	// deferred-drop maps: a DROP TABLE/INDEX/TRIGGER removes the live
	// entry immediately but keeps it here until the enclosing
	// transaction commits, so a ROLLBACK can restore it (spec §3
	// "Lifecycles" / §4.1).
	droppedTables   map[string]*Table
	droppedIndexes  map[string]*Index
	droppedTriggers map[string]*droppedTrigger

	// newTables/newIndexes/newTriggers name every descriptor a CREATE
	// has registered since the last commit/rollback boundary — the
	// mirror image of the dropped* maps above, needed so a ROLLBACK
	// undoes a CREATE TABLE/INDEX/TRIGGER's catalog half the same way
	// the storage backend's own transaction rollback already undoes
	// its CreateRoot.
	newTables   []string
	newIndexes  []string
	newTriggers []string

	// Stats holds per-table/per-index row counts recorded by ANALYZE
	// (SPEC_FULL.md §C), keyed by table or index name (lower-cased).
	// Consulted by a query planner's join/index-choice heuristics; this
	// package only collects and stores the numbers.
	Stats map[string]int64
}

// droppedTrigger remembers a removed trigger's owning table name so
// RollbackDrops can re-attach it to the right table's Triggers list.
type droppedTrigger struct {
	trig  *ast.Trigger
	owner string
}

func New() *Catalog {
	return &Catalog{
		tables:          map[string]*Table{},
		indexes:         map[string]*Index{},
		triggers:        map[string]*ast.Trigger{},
		droppedTables:   map[string]*Table{},
		droppedIndexes:  map[string]*Index{},
		droppedTriggers: map[string]*droppedTrigger{},
		Stats:           map[string]int64{},
	}
}

func key(name string) string { return strings.ToLower(name) }

// FindTable performs a case-insensitive, bounded (map) lookup.
func (c *Catalog) FindTable(name string) (*Table, bool) {
	t, ok := c.tables[key(name)]
	return t, ok
}

// FindIndex performs a case-insensitive, bounded lookup.
func (c *Catalog) FindIndex(name string) (*Index, bool) {
	idx, ok := c.indexes[key(name)]
	return idx, ok
}

// FindTrigger performs a case-insensitive, bounded lookup.
func (c *Catalog) FindTrigger(name string) (*ast.Trigger, bool) {
	trig, ok := c.triggers[key(name)]
	return trig, ok
}

// InsertTable registers t. It is an error (ErrConstraint) for a table
// or index of the same name to already exist — index names and table
// names share one namespace per spec §4.5's semantic checks.
func (c *Catalog) InsertTable(t *Table) error {
	k := key(t.Name)
	if _, exists := c.tables[k]; exists {
		return sqlerr.ErrConstraint.New("table " + t.Name + " already exists")
	}
	if _, exists := c.indexes[k]; exists {
		return sqlerr.ErrConstraint.New("there is already an index named " + t.Name)
	}
	c.tables[k] = t
	c.newTables = append(c.newTables, k)
	return nil
}

// InsertIndex registers idx under its own name and links it into its
// owning table's index list.
func (c *Catalog) InsertIndex(idx *Index) error {
	k := key(idx.Name)
	if _, exists := c.tables[k]; exists {
		return sqlerr.ErrConstraint.New("there is already a table named " + idx.Name)
	}
	if _, exists := c.indexes[k]; exists {
		return sqlerr.ErrConstraint.New("index " + idx.Name + " already exists")
	}
	c.indexes[k] = idx
	idx.Table.AddIndex(idx)
	c.newIndexes = append(c.newIndexes, k)
	return nil
}

// InsertTrigger registers trig under owner, the table it fires on
// (spec §4.8 / C8). It is an error for a trigger of the same name to
// already exist.
func (c *Catalog) InsertTrigger(owner *Table, trig *ast.Trigger) error {
	k := key(trig.Name)
	if _, exists := c.triggers[k]; exists {
		return sqlerr.ErrConstraint.New("trigger " + trig.Name + " already exists")
	}
	c.triggers[k] = trig
	owner.Triggers = append(owner.Triggers, trig)
	c.newTriggers = append(c.newTriggers, k)
	return nil
}

// RemoveTrigger removes trig from the live catalog and its owning
// table's Triggers list, deferring final disposal until commit so a
// ROLLBACK can restore it.
func (c *Catalog) RemoveTrigger(name string) (*ast.Trigger, error) {
	k := key(name)
	trig, ok := c.triggers[k]
	if !ok {
		return nil, sqlerr.ErrNotFound.New("no such trigger: " + name)
	}
	owner, ok := c.FindTable(trig.Table)
	if ok {
		filtered := owner.Triggers[:0]
		for _, t := range owner.Triggers {
			if t != trig {
				filtered = append(filtered, t)
			}
		}
		owner.Triggers = filtered
	}
	delete(c.triggers, k)
	c.droppedTriggers[k] = &droppedTrigger{trig: trig, owner: trig.Table}
	return trig, nil
}

// RemoveTable removes t (and, per spec §4.1, every index it owns) from
// the live catalog, moving them into the deferred-drop maps so a
// subsequent ROLLBACK can restore them via RollbackDrops.
func (c *Catalog) RemoveTable(name string) (*Table, error) {
	k := key(name)
	t, ok := c.tables[k]
	if !ok {
		return nil, sqlerr.ErrNotFound.New("no such table: " + name)
	}
	delete(c.tables, k)
	c.droppedTables[k] = t
	for idx := t.Indexes; idx != nil; idx = idx.Next {
		ik := key(idx.Name)
		delete(c.indexes, ik)
		idx.Dropped = true
		c.droppedIndexes[ik] = idx
	}
	return t, nil
}

// RemoveIndex removes idx from the live catalog and its owning
// table's index list, deferring final disposal until commit.
func (c *Catalog) RemoveIndex(name string) (*Index, error) {
	k := key(name)
	idx, ok := c.indexes[k]
	if !ok {
		return nil, sqlerr.ErrNotFound.New("no such index: " + name)
	}
	delete(c.indexes, k)
	idx.Table.RemoveIndex(idx.Name)
	idx.Dropped = true
	c.droppedIndexes[k] = idx
	return idx, nil
}

// CommitDrops permanently discards everything pending in the
// deferred-drop maps. Called when a transaction commits.
func (c *Catalog) CommitDrops() {
	c.droppedTables = map[string]*Table{}
	c.droppedIndexes = map[string]*Index{}
	c.droppedTriggers = map[string]*droppedTrigger{}
}

// RollbackDrops restores every entry pending in the deferred-drop maps
// to the live catalog. Called when a transaction rolls back, undoing
// any DROP TABLE/INDEX/TRIGGER the transaction performed.
func (c *Catalog) RollbackDrops() {
	for k, t := range c.droppedTables {
		c.tables[k] = t
	}
	for k, idx := range c.droppedIndexes {
		idx.Dropped = false
		c.indexes[k] = idx
	}
	for k, dt := range c.droppedTriggers {
		c.triggers[k] = dt.trig
		if owner, ok := c.FindTable(dt.owner); ok {
			owner.Triggers = append(owner.Triggers, dt.trig)
		}
	}
	c.CommitDrops()
}

// CommitCreates permanently keeps every table/index/trigger created
// since the last CommitCreates/RollbackCreates call. Called when a
// transaction commits.
func (c *Catalog) CommitCreates() {
	c.newTables = nil
	c.newIndexes = nil
	c.newTriggers = nil
}

// RollbackCreates undoes every table/index/trigger created since the
// last CommitCreates/RollbackCreates call. Called when a transaction
// rolls back, undoing any CREATE TABLE/INDEX/TRIGGER it performed.
func (c *Catalog) RollbackCreates() {
	for _, k := range c.newTriggers {
		trig, ok := c.triggers[k]
		if !ok {
			continue
		}
		delete(c.triggers, k)
		if owner, ok := c.FindTable(trig.Table); ok {
			filtered := owner.Triggers[:0]
			for _, t := range owner.Triggers {
				if t != trig {
					filtered = append(filtered, t)
				}
			}
			owner.Triggers = filtered
		}
	}
	for _, k := range c.newIndexes {
		idx, ok := c.indexes[k]
		if !ok {
			continue
		}
		delete(c.indexes, k)
		idx.Table.RemoveIndex(idx.Name)
	}
	for _, k := range c.newTables {
		delete(c.tables, k)
	}
	c.CommitCreates()
}

// schemaTableSummary is a flattened, acyclic view of a Table used only
// for fingerprinting: hashstructure walks arbitrary struct graphs by
// reflection, and Table/Index/ast.TableRef can round-trip through an
// interface{} (TableRef.Handle) back to a *Table, so hashing the live
// descriptors directly risks an unbounded cycle. The summary carries
// everything a schema-changed check needs to notice (name, root page,
// column shape, owned index names) without following that cycle.
type schemaTableSummary struct {
	Name     string
	RootPage int64
	Flags    TableFlags
	Columns  []Column
	Indexes  []string
}

// SchemaCookie is a fingerprint of the catalog's current table/index
// descriptor set, used by the VM to detect "schema changed" (a
// program captures the cookie at compile time and compares it again
// before running; a mismatch forces re-prepare, per spec §5). Map
// iteration order does not affect the result: hashstructure combines
// map entries commutatively, and the per-table summary is
// deterministic: columns keep their declaration order and index names
// are sorted.
func (c *Catalog) SchemaCookie() (uint64, error) {
	summaries := make(map[string]schemaTableSummary, len(c.tables))
	for k, t := range c.tables {
		var idxNames []string
		for idx := t.Indexes; idx != nil; idx = idx.Next {
			idxNames = append(idxNames, key(idx.Name))
		}
		sort.Strings(idxNames)
		summaries[k] = schemaTableSummary{
			Name:     key(t.Name),
			RootPage: t.RootPage,
			Flags:    t.Flags,
			Columns:  append([]Column(nil), t.Columns...),
			Indexes:  idxNames,
		}
	}
	return hashstructure.Hash(summaries, nil)
}

// Tables returns a snapshot slice of every live table descriptor, used
// by ANALYZE (SPEC_FULL.md §C) to iterate the whole catalog.
func (c *Catalog) Tables() []*Table {
	out := make([]*Table, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	return out
}

// Indexes returns a snapshot slice of every live index descriptor.
func (c *Catalog) Indexes() []*Index {
	out := make([]*Index, 0, len(c.indexes))
	for _, idx := range c.indexes {
		out = append(out, idx)
	}
	return out
}

// Triggers returns a snapshot slice of every live trigger descriptor.
func (c *Catalog) Triggers() []*ast.Trigger {
	out := make([]*ast.Trigger, 0, len(c.triggers))
	for _, t := range c.triggers {
		out = append(out, t)
	}
	return out
}
