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

// TriggerEvent is the DML operation a trigger fires on.
type TriggerEvent int

const (
	TriggerInsert TriggerEvent = iota
	TriggerUpdate
	TriggerDelete
)

// TriggerTiming relative to the firing DML statement's row change.
type TriggerTiming int

const (
	TriggerBefore TriggerTiming = iota
	TriggerAfter
)

// TriggerGranularity: once per statement, or once per affected row.
type TriggerGranularity int

const (
	TriggerRow TriggerGranularity = iota
	TriggerStatement
)

// ConflictPolicy controls behavior on constraint violation (the
// GLOSSARY's "Conflict policy"). Default defers to the table/column's
// own declared policy.
type ConflictPolicy int

const (
	ConflictDefault ConflictPolicy = iota
	ConflictRollback
	ConflictAbort
	ConflictFail
	ConflictIgnore
	ConflictReplace
)

// StepOp is the DML/SELECT kind of one trigger body statement.
type StepOp int

const (
	StepSelect StepOp = iota
	StepInsert
	StepUpdate
	StepDelete
)

// TriggerStep is one statement inside a trigger body. Steps form a
// singly linked list via Next, mirroring how a parser accumulates a
// BEGIN...END block one statement at a time.
type TriggerStep struct {
	Op       StepOp
	Table    string
	Columns  *IdList   // UPDATE SET column list / INSERT column list
	Values   *ExprList // UPDATE SET values / INSERT VALUES row
	Select   *Select   // INSERT ... SELECT, or the step's own SELECT
	Where    *Expr
	OrConflict ConflictPolicy
	Next     *TriggerStep
}

// Trigger is a CREATE TRIGGER descriptor. Event/Timing/Granularity and
// an optional WHEN clause gate whether Steps fire; UpdateOf, when
// non-nil, restricts an UPDATE trigger to statements touching at
// least one of the named columns.
type Trigger struct {
	Name        string
	Table       string
	Event       TriggerEvent
	Timing      TriggerTiming
	Granularity TriggerGranularity
	UpdateOf    *IdList
	When        *Expr
	Steps       *TriggerStep
}

// MatchesUpdateOf reports whether an UPDATE statement touching
// changedCols should fire this trigger, per spec §4.8's
// sqliteTriggersExist contract: an absent UpdateOf list matches any
// column set, and a present one must overlap changedCols (an absent
// changedCols — e.g. a non-UPDATE event — also matches).
func (t *Trigger) MatchesUpdateOf(changedCols []string) bool {
	if t.UpdateOf == nil || len(changedCols) == 0 {
		return true
	}
	want := map[string]bool{}
	for _, it := range t.UpdateOf.Items {
		want[it.Name] = true
	}
	for _, c := range changedCols {
		if want[c] {
			return true
		}
	}
	return false
}
