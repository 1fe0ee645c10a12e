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

// CompoundOp identifies how a SELECT relates to its Prior sibling in a
// compound statement.
type CompoundOp int

const (
	CompoundNone CompoundOp = iota
	CompoundUnion
	CompoundUnionAll
	CompoundIntersect
	CompoundExcept
)

// Dest encodes where a SELECT's result rows are routed, per spec §3
// ("result-row-destination encoding"). The VM consumes this to decide
// whether a ResultRow opcode calls back to the application, stores
// into a memory cell, inserts into a set/union/except/ephemeral table,
// or feeds an outer query's scan.
type Dest int

const (
	DestCallback Dest = iota
	DestMem
	DestSet
	DestUnionTable
	DestExceptTable
	DestTable
	DestEphemeral
)

// JoinType of one FROM-clause source relative to the one before it.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinCross
	JoinLeftOuter
	JoinNatural
)

// SrcItem is one entry of a SELECT's FROM clause: either a named table
// or a subquery, with an optional alias, resolved cursor number, join
// type relative to the previous item, and an optional ON/USING
// predicate.
type SrcItem struct {
	Table    string
	Alias    string
	Subquery *Select // non-nil for a FROM-clause subquery
	Cursor   int
	Join     JoinType
	On       *Expr
	Using    *IdList
}

func (s SrcItem) clone() SrcItem {
	s.Subquery = s.Subquery.Clone()
	s.On = s.On.Clone()
	return s
}

// SrcList is an ordered, owning array of FROM-clause sources.
type SrcList struct {
	Items []SrcItem
}

func NewSrcList() *SrcList { return &SrcList{} }

func (l *SrcList) Append(item SrcItem) *SrcList {
	if l == nil {
		l = &SrcList{}
	}
	l.Items = append(l.Items, item)
	return l
}

func (l *SrcList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Items)
}

func (l *SrcList) Clone() *SrcList {
	if l == nil {
		return nil
	}
	out := &SrcList{Items: make([]SrcItem, len(l.Items))}
	for i, it := range l.Items {
		out.Items[i] = it.clone()
	}
	return out
}

// Select is a SELECT statement node: possibly one arm of a compound
// chain linked through Prior. LIMIT/OFFSET use -1 for "unbounded",
// per spec §3.
type Select struct {
	Distinct bool

	Result  *ExprList
	From    *SrcList
	Where   *Expr
	Having  *Expr
	GroupBy *ExprList
	OrderBy *ExprList

	Compound CompoundOp
	Prior    *Select

	Limit  int64
	Offset int64

	Dest      Dest
	DestTable string // table/cursor name backing DestTable/DestEphemeral

	// Zombie holds the subquery Selects the flattener has absorbed
	// into this Select's FROM list (spec §4.5 flattening step (g)),
	// kept alongside the flattened statement. Nothing reads or
	// releases them; they live as long as this Select does.
	Zombie []interface{}
}

func NewSelect() *Select {
	return &Select{Limit: -1, Offset: -1}
}

func (s *Select) Clone() *Select {
	if s == nil {
		return nil
	}
	clone := &Select{
		Distinct:  s.Distinct,
		Result:    s.Result.Clone(),
		From:      s.From.Clone(),
		Where:     s.Where.Clone(),
		Having:    s.Having.Clone(),
		GroupBy:   s.GroupBy.Clone(),
		OrderBy:   s.OrderBy.Clone(),
		Compound:  s.Compound,
		Prior:     s.Prior.Clone(),
		Limit:     s.Limit,
		Offset:    s.Offset,
		Dest:      s.Dest,
		DestTable: s.DestTable,
	}
	return clone
}

// IsAggregate reports whether any result column or the GROUP BY list
// is marked aggregate. The compiler's aggregate-analysis pass is
// responsible for setting ExprListItem.IsAggregate; this is a cheap
// post-analysis query used by the flattener's guards.
func (s *Select) IsAggregate() bool {
	if s == nil {
		return false
	}
	if s.GroupBy.Len() > 0 {
		return true
	}
	for _, it := range s.Result.Items {
		if it.IsAggregate {
			return true
		}
	}
	return false
}

// IsCompound reports whether s has a Prior sibling.
func (s *Select) IsCompound() bool { return s != nil && s.Prior != nil }

// IsJoin reports whether s's FROM clause has more than one source.
func (s *Select) IsJoin() bool { return s != nil && s.From.Len() > 1 }
