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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	require := require.New(t)
	left := NewColumnRef("x", Span{0, 1})
	right := NewLiteral("5", Span{2, 3})
	e := NewBinary(OpGt, left, right, Span{0, 3})

	clone := e.Clone()
	require.NotSame(e, clone)
	require.NotSame(e.Left, clone.Left)
	require.NotSame(e.Right, clone.Right)
	require.Equal(e.Op, clone.Op)
	require.Equal(e.Left.Token, clone.Left.Token)

	clone.Left.Token = "mutated"
	require.Equal("x", e.Left.Token, "mutating the clone must not affect the original")
}

func TestExprListClone(t *testing.T) {
	require := require.New(t)
	l := NewExprList().Append(NewLiteral("1", Span{}), "one")
	clone := l.Clone()
	require.Equal(1, clone.Len())
	clone.Items[0].Name = "renamed"
	require.Equal("one", l.Items[0].Name)
}

func TestTriggerMatchesUpdateOf(t *testing.T) {
	require := require.New(t)
	tr := &Trigger{UpdateOf: NewIdList().Append("a", "")}
	require.True(tr.MatchesUpdateOf([]string{"a", "b"}))
	require.False(tr.MatchesUpdateOf([]string{"b", "c"}))
	require.True(tr.MatchesUpdateOf(nil))

	tr2 := &Trigger{}
	require.True(tr2.MatchesUpdateOf([]string{"anything"}))
}

func TestSelectIsAggregateAndJoin(t *testing.T) {
	require := require.New(t)
	s := NewSelect()
	s.Result = NewExprList().Append(NewLiteral("1", Span{}), "")
	require.False(s.IsAggregate())
	s.Result.Items[0].IsAggregate = true
	require.True(s.IsAggregate())

	s.From = NewSrcList().Append(SrcItem{Table: "t1"}).Append(SrcItem{Table: "t2"})
	require.True(s.IsJoin())
}

func TestSelectCloneDetachesPrior(t *testing.T) {
	require := require.New(t)
	base := NewSelect()
	base.Result = NewExprList().Append(NewLiteral("1", Span{}), "")
	top := NewSelect()
	top.Prior = base
	top.Compound = CompoundUnionAll

	clone := top.Clone()
	require.NotSame(top.Prior, clone.Prior)
	clone.Prior.Result.Items[0].Name = "changed"
	require.Equal("", base.Result.Items[0].Name)
}
