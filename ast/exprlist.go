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

// ExprListItem is one entry of a result-column or argument list: the
// expression itself, an optional result alias, whether it sorts
// descending (ORDER BY), whether analysis marked it as containing an
// aggregate, and a "done" flag analysis passes use to avoid
// revisiting an entry (mirrors the teacher's ExprList item metadata
// pattern — see the alias/child shape exercised by
// expression.NewAlias in sql/plan/project_test.go).
type ExprListItem struct {
	Expr       *Expr
	Name       string // result alias, "" if none given
	SortDesc   bool
	IsAggregate bool
	Done       bool
}

// ExprList is an ordered, owning array of expressions.
type ExprList struct {
	Items []ExprListItem
}

func NewExprList() *ExprList { return &ExprList{} }

func (l *ExprList) Append(e *Expr, name string) *ExprList {
	if l == nil {
		l = &ExprList{}
	}
	l.Items = append(l.Items, ExprListItem{Expr: e, Name: name})
	return l
}

func (l *ExprList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Items)
}

func (l *ExprList) Clone() *ExprList {
	if l == nil {
		return nil
	}
	out := &ExprList{Items: make([]ExprListItem, len(l.Items))}
	for i, it := range l.Items {
		out.Items[i] = ExprListItem{
			Expr:        it.Expr.Clone(),
			Name:        it.Name,
			SortDesc:    it.SortDesc,
			IsAggregate: it.IsAggregate,
			Done:        it.Done,
		}
	}
	return out
}

// IdListItem is one entry of an identifier list (e.g. an INSERT
// column list, or a USING-clause column set): a bare name, an optional
// alias, and — once resolved — the Table it was matched against.
type IdListItem struct {
	Name  string
	Alias string
	Table *TableRef
}

// IdList is an ordered array of identifier entries.
type IdList struct {
	Items []IdListItem
}

func NewIdList() *IdList { return &IdList{} }

func (l *IdList) Append(name, alias string) *IdList {
	if l == nil {
		l = &IdList{}
	}
	l.Items = append(l.Items, IdListItem{Name: name, Alias: alias})
	return l
}

func (l *IdList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Items)
}

// TableRef is a borrowed reference to a resolved table descriptor.
// ast does not own catalog descriptors — the catalog package does —
// so this is deliberately an opaque handle the compiler fills in
// during resolution, not a struct ast itself defines the shape of.
type TableRef struct {
	Name   string
	Cursor int
	Handle interface{} // *catalog.Table, set by the compiler's resolver
}
