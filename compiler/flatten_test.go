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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tursodatabase/libsql-sub000/ast"
)

// innerSelect builds `SELECT x+y AS a FROM t1 WHERE z<100`-shaped
// subquery in the spirit of spec §8 scenario 3's example, but with a
// bare column result (arithmetic result expressions aren't something
// Flatten needs to understand — it substitutes whatever expression
// tree the inner result column holds, verbatim).
func innerSelect() *ast.Select {
	s := ast.NewSelect()
	s.Result = ast.NewExprList().Append(ast.NewColumnRef("x", ast.Span{}), "a")
	s.From = ast.NewSrcList().Append(ast.SrcItem{Table: "t1"})
	s.Where = ast.NewBinary(ast.OpLt, ast.NewColumnRef("z", ast.Span{}), ast.NewLiteral("100", ast.Span{}), ast.Span{})
	return s
}

func outerOverSubquery(s *ast.Select) *ast.Select {
	o := ast.NewSelect()
	o.Result = ast.NewExprList().Append(ast.NewColumnRef("a", ast.Span{}), "")
	o.From = ast.NewSrcList().Append(ast.SrcItem{Subquery: s, Alias: "sub"})
	o.Where = ast.NewBinary(ast.OpGt, ast.NewColumnRef("a", ast.Span{}), ast.NewLiteral("5", ast.Span{}), ast.Span{})
	return o
}

// TestFlattenMergesSimpleSubquery matches spec §8 scenario 3's
// flattenable case: a plain, non-aggregate, non-distinct subquery with
// no LIMIT/ORDER BY collapses into its outer query's FROM, and the
// outer WHERE (referencing the subquery's result alias) is rewritten
// against the subquery's own column and AND-merged with the
// subquery's own WHERE.
func TestFlattenMergesSimpleSubquery(t *testing.T) {
	require := require.New(t)
	outer := outerOverSubquery(innerSelect())

	c := New(nil)
	flat := c.Flatten(outer)

	require.Equal(1, flat.From.Len())
	require.Equal("t1", flat.From.Items[0].Table)
	require.Nil(flat.From.Items[0].Subquery)

	require.NotNil(flat.Where)
	require.Equal(ast.OpAnd, flat.Where.Op)
	// One side is the transplanted inner predicate (z<100); the other
	// is the outer predicate with `a` substituted back to `x` (x>5).
	require.Equal(ast.OpLt, flat.Where.Left.Op)
	require.Equal(ast.OpGt, flat.Where.Right.Op)
	require.Equal("x", flat.Where.Right.Left.Token)

	require.Len(flat.Zombie, 1)
}

// TestFlattenLeavesDistinctSubqueryAlone matches guard 4: a DISTINCT
// subquery is never flattened, so CompileSelect's existing
// subquery-rejection path remains the safe fallback for it.
func TestFlattenLeavesDistinctSubqueryAlone(t *testing.T) {
	require := require.New(t)
	inner := innerSelect()
	inner.Distinct = true
	outer := outerOverSubquery(inner)

	c := New(nil)
	flat := c.Flatten(outer)

	require.Equal(1, flat.From.Len())
	require.NotNil(flat.From.Items[0].Subquery, "a DISTINCT subquery must not be flattened")
}

// TestFlattenLeavesLimitedSubqueryUnderJoinAlone matches guard 7: a
// subquery with its own LIMIT is never flattened into a join.
func TestFlattenLeavesLimitedSubqueryUnderJoinAlone(t *testing.T) {
	require := require.New(t)
	inner := innerSelect()
	inner.Limit = 10
	outer := outerOverSubquery(inner)
	outer.From.Items = append(outer.From.Items, ast.SrcItem{Table: "t2"})

	c := New(nil)
	flat := c.Flatten(outer)

	require.Equal(2, flat.From.Len())
	require.NotNil(flat.From.Items[0].Subquery)
}
