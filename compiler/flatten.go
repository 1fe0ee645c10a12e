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

package compiler

import (
	"strings"

	"github.com/tursodatabase/libsql-sub000/ast"
)

// Flatten repeatedly flattens FROM-clause subqueries of stmt that
// canFlatten's 21 guards (spec §4.5) permit and this compiler's
// transform can perform correctly, stopping once no candidate remains.
// stmt is never mutated. When no subquery can be flattened, stmt
// itself is returned; otherwise the result is a fresh tree.
func (c *Compiler) Flatten(stmt *ast.Select) *ast.Select {
	cur := stmt
	for {
		i, ok := findFlattenable(cur)
		if !ok {
			return cur
		}
		cur = flattenOne(cur, i)
	}
}

// findFlattenable locates the first FROM-clause subquery canFlatten
// permits AND this package's transform covers. Guard-permitted cases
// this transform does not yet implement — an aggregate S (step (d)'s
// WHERE/HAVING/GROUP BY merge) or a compound S (step (a)'s UNION-ALL
// duplication) — are left unflattened rather than risk an incorrect
// rewrite; CompileSelect's existing subquery rejection is the safe
// fallback for those.
func findFlattenable(outer *ast.Select) (int, bool) {
	if outer.From == nil {
		return 0, false
	}
	for i := range outer.From.Items {
		src := &outer.From.Items[i]
		s := src.Subquery
		if s == nil {
			continue
		}
		if s.IsAggregate() || s.IsCompound() {
			continue
		}
		if canFlatten(outer, i, src) {
			return i, true
		}
	}
	return 0, false
}

// canFlatten reports whether src (a FROM-clause subquery of outer at
// position i) may be flattened, per spec §4.5's 21 guards. Guard 16
// (S is a recursive CTE) and guard 19 (outer is a recursive CTE and S
// is compound) have no representable condition in this AST — this
// compiler has no CTE support at all — so they are vacuously
// satisfied rather than checked.
func canFlatten(outer *ast.Select, i int, src *ast.SrcItem) bool {
	s := src.Subquery
	if s == nil {
		return false
	}
	if outer.IsAggregate() && s.IsAggregate() { // 1
		return false
	}
	if s.IsAggregate() && (outer.IsJoin() || referencesOtherSubquery(outer)) { // 2
		return false
	}
	if src.Join == ast.JoinLeftOuter { // 3
		return false
	}
	if s.Distinct { // 4
		return false
	}
	if s.From == nil || s.From.Len() == 0 { // 5
		return false
	}
	if s.IsAggregate() && outer.Distinct { // 6
		return false
	}
	if s.Limit >= 0 && outer.IsJoin() { // 7
		return false
	}
	if s.Limit >= 0 && outer.IsAggregate() { // 8
		return false
	}
	if outer.OrderBy.Len() > 0 && s.OrderBy.Len() > 0 { // 9
		return false
	}
	if outer.IsAggregate() && s.OrderBy.Len() > 0 { // 10
		return false
	}
	if outer.Limit >= 0 && s.Limit >= 0 { // 11
		return false
	}
	if s.Offset >= 0 { // 12
		return false
	}
	if outer.IsCompound() && s.Limit >= 0 { // 13
		return false
	}
	if s.Limit >= 0 && outer.Where != nil { // 14
		return false
	}
	if s.Limit >= 0 && outer.Distinct { // 15
		return false
	}
	// 16: recursive CTE — not representable, vacuously true.
	if s.IsCompound() {
		if s.Compound != ast.CompoundUnionAll { // 17 (non-UNION-ALL compound)
			return false
		}
		if outer.IsAggregate() || outer.Distinct || outer.IsJoin() { // 17 (P shape)
			return false
		}
		if !compoundColumnCountsAgree(s) { // 17 (column-count agreement)
			return false
		}
		if outer.OrderBy.Len() > 0 && !allBareColumnRefs(outer.OrderBy) { // 18
			return false
		}
		if s.OrderBy.Len() > 0 { // 20
			return false
		}
	}
	// 19: outer recursive CTE with compound S — not representable.
	if hasMinMaxAggregate(s) { // 21
		return false
	}
	return true
}

// flattenOne performs the permitted rewrite (spec §4.5 steps (b)-(g))
// for the non-aggregate, non-compound subquery at outer.From.Items[i].
// Step (a)'s UNION-ALL duplication never applies here: findFlattenable
// excludes compound S before this runs.
func flattenOne(outer *ast.Select, i int) *ast.Select {
	src := outer.From.Items[i]
	s := src.Subquery
	alias := src.Alias
	if alias == "" {
		alias = src.Table
	}

	out := outer.Clone()

	out.Where = substituteColumnRefs(out.Where, alias, s)
	for idx := range out.Result.Items {
		out.Result.Items[idx].Expr = substituteColumnRefs(out.Result.Items[idx].Expr, alias, s)
	}
	for idx := range out.OrderBy.Items {
		out.OrderBy.Items[idx].Expr = substituteColumnRefs(out.OrderBy.Items[idx].Expr, alias, s)
	}

	// (b) transplant S's FROM into P's FROM at position i.
	newFrom := ast.NewSrcList()
	for j, it := range out.From.Items {
		if j == i {
			newFrom.Items = append(newFrom.Items, s.From.Items...)
			continue
		}
		newFrom.Items = append(newFrom.Items, it)
	}
	out.From = newFrom

	// (d) merge WHERE (non-aggregate S: both predicates simply AND).
	if s.Where != nil {
		if out.Where == nil {
			out.Where = s.Where.Clone()
		} else {
			out.Where = ast.NewBinary(ast.OpAnd, s.Where.Clone(), out.Where, ast.Span{})
		}
	}

	// (e) transfer S's ORDER BY/LIMIT only if P has none.
	if out.OrderBy.Len() == 0 && s.OrderBy.Len() > 0 {
		out.OrderBy = s.OrderBy.Clone()
	}
	if out.Limit < 0 && s.Limit >= 0 {
		out.Limit = s.Limit
	}

	// (f) OR-merge DISTINCT.
	out.Distinct = out.Distinct || s.Distinct

	// (g) keep the absorbed subquery S on the result's Zombie list
	// rather than discarding it.
	out.Zombie = append(out.Zombie, s)

	return out
}

// substituteColumnRefs replaces every column reference whose name
// matches a result column of s with that result expression (matched
// by name only; alias is not consulted) (spec §4.5
// step (c)), recursing into nested SELECTs carried by EXISTS/IN/scalar
// subquery expressions.
func substituteColumnRefs(e *ast.Expr, alias string, s *ast.Select) *ast.Expr {
	if e == nil {
		return nil
	}
	if e.Op == ast.OpColumnRef {
		if repl := resultExprFor(s, e.Token); repl != nil {
			return repl.Clone()
		}
		return e
	}
	e.Left = substituteColumnRefs(e.Left, alias, s)
	e.Right = substituteColumnRefs(e.Right, alias, s)
	if e.List != nil {
		for idx := range e.List.Items {
			e.List.Items[idx].Expr = substituteColumnRefs(e.List.Items[idx].Expr, alias, s)
		}
	}
	if e.Sub != nil {
		e.Sub.Where = substituteColumnRefs(e.Sub.Where, alias, s)
		for idx := range e.Sub.Result.Items {
			e.Sub.Result.Items[idx].Expr = substituteColumnRefs(e.Sub.Result.Items[idx].Expr, alias, s)
		}
	}
	return e
}

// resultExprFor finds the result-list expression name names (matching
// by its alias, or by its own column token when unaliased). This
// matches by name alone rather than by resolved cursor, since this
// AST's pre-resolution column refs carry no binding yet — fine for
// the single-subquery-source shape CompileSelect currently feeds
// Flatten, but a name collision against an unrelated FROM item would
// need cursor-based binding to disambiguate correctly.
func resultExprFor(s *ast.Select, name string) *ast.Expr {
	for _, item := range s.Result.Items {
		resultName := item.Name
		if resultName == "" && item.Expr != nil && item.Expr.Op == ast.OpColumnRef {
			resultName = item.Expr.Token
		}
		if resultName != "" && strings.EqualFold(resultName, name) {
			return item.Expr
		}
	}
	return nil
}

func exprAny(e *ast.Expr, pred func(*ast.Expr) bool) bool {
	if e == nil {
		return false
	}
	if pred(e) {
		return true
	}
	if exprAny(e.Left, pred) || exprAny(e.Right, pred) {
		return true
	}
	if e.List != nil {
		for _, it := range e.List.Items {
			if exprAny(it.Expr, pred) {
				return true
			}
		}
	}
	return false
}

func referencesSubquery(e *ast.Expr) bool {
	return exprAny(e, func(n *ast.Expr) bool { return n.Sub != nil })
}

// referencesOtherSubquery implements guard 2's "P references other
// subqueries in WHERE/SELECT/ORDER-BY" condition.
func referencesOtherSubquery(outer *ast.Select) bool {
	if referencesSubquery(outer.Where) {
		return true
	}
	for _, it := range outer.Result.Items {
		if referencesSubquery(it.Expr) {
			return true
		}
	}
	for _, it := range outer.OrderBy.Items {
		if referencesSubquery(it.Expr) {
			return true
		}
	}
	return false
}

func isMinMaxFunc(e *ast.Expr) bool {
	if e.Op != ast.OpFunc {
		return false
	}
	return strings.EqualFold(e.Token, "min") || strings.EqualFold(e.Token, "max")
}

// hasMinMaxAggregate implements guard 21.
func hasMinMaxAggregate(s *ast.Select) bool {
	for _, it := range s.Result.Items {
		if exprAny(it.Expr, isMinMaxFunc) {
			return true
		}
	}
	return false
}

// compoundColumnCountsAgree implements guard 17's column-count check
// across every arm of a compound S.
func compoundColumnCountsAgree(s *ast.Select) bool {
	n := s.Result.Len()
	for p := s.Prior; p != nil; p = p.Prior {
		if p.Result.Len() != n {
			return false
		}
	}
	return true
}

// allBareColumnRefs implements guard 18's "every ORDER BY term of P
// must be a bare column reference" check.
func allBareColumnRefs(list *ast.ExprList) bool {
	for _, it := range list.Items {
		if it.Expr == nil || it.Expr.Op != ast.OpColumnRef {
			return false
		}
	}
	return true
}
