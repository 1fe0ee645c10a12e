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

package ast

// ColumnDef is one column of a CREATE TABLE statement, before catalog
// registration assigns it an ordinal position.
type ColumnDef struct {
	Name       string
	Type       string
	Default    string
	NotNull    bool
	PrimaryKey bool
}

// CreateTable is a CREATE TABLE statement.
type CreateTable struct {
	Name        string
	Columns     []ColumnDef
	AsSelect    *Select // CREATE TABLE ... AS SELECT
	IfNotExists bool
	Temp        bool
}

// CreateIndex is a CREATE INDEX statement.
type CreateIndex struct {
	Name     string
	Table    string
	Columns  []string
	Desc     []bool
	Unique   bool
	IfNotExists bool
}

// CreateViewStmt is a CREATE VIEW statement.
type CreateViewStmt struct {
	Name string
	As   *Select
}

// CreateTriggerStmt is a CREATE TRIGGER statement.
type CreateTriggerStmt struct {
	Trigger *Trigger
}

// DropKind names what a DROP statement targets.
type DropKind int

const (
	DropTable DropKind = iota
	DropIndex
	DropView
	DropTrigger
)

// Drop is a DROP TABLE/INDEX/VIEW/TRIGGER statement.
type Drop struct {
	Kind     DropKind
	Name     string
	IfExists bool
}

// Insert is an INSERT statement: either a VALUES list (rows of
// ExprLists) or an INSERT ... SELECT.
type Insert struct {
	Table      string
	Columns    *IdList
	Rows       []*ExprList
	Select     *Select
	OrConflict ConflictPolicy
}

// UpdateSet is one SET clause assignment.
type UpdateSet struct {
	Column string
	Value  *Expr
}

// Update is an UPDATE statement.
type Update struct {
	Table      string
	Set        []UpdateSet
	Where      *Expr
	OrConflict ConflictPolicy
}

// Delete is a DELETE statement.
type Delete struct {
	Table string
	Where *Expr
}

// Analyze is an ANALYZE statement, per SPEC_FULL.md §C: it names a
// table (or, empty, every table) whose per-index statistics should be
// recomputed.
type Analyze struct {
	Table string // "" means every table in the catalog
}
