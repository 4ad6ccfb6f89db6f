/*
Copyright 2022 Huawei Cloud Computing Technologies Co., Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

 http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package logicplan_test

import (
	"testing"

	"github.com/influxdata/influxql"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/engine/logicplan"
	"github.com/openGemini/heuopt/lib/errno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exprStrings(exprs []influxql.Expr) []string {
	result := make([]string, 0, len(exprs))
	for _, e := range exprs {
		result = append(result, e.String())
	}
	return result
}

func TestReferencedColumns(t *testing.T) {
	refs := logicplan.ReferencedColumns(condition(t, "host = 'a' AND (usage > idle OR usage > 90)"))
	assert.ElementsMatch(t, []string{"host", "usage", "idle"}, refs.ToSlice())
	assert.Equal(t, 0, logicplan.ReferencedColumns(nil).Cardinality())
	assert.Equal(t, 0, logicplan.ReferencedColumns(condition(t, "1 = 1")).Cardinality())
}

func TestSplitConjuncts(t *testing.T) {
	conjuncts := logicplan.SplitConjuncts(condition(t, "a > 1 AND (b > 2 AND c > 3) AND (d > 4 OR e > 5)"))
	assert.Equal(t, []string{"a > 1", "b > 2", "c > 3", "d > 4 OR e > 5"}, exprStrings(conjuncts))
	assert.Nil(t, logicplan.SplitConjuncts(nil))
}

func TestConjunction(t *testing.T) {
	assert.True(t, logicplan.IsTrue(logicplan.Conjunction(nil)))

	conjuncts := []influxql.Expr{condition(t, "a > 1"), condition(t, "b > 2 OR c > 3")}
	joined := logicplan.Conjunction(conjuncts)
	assert.Equal(t, "a > 1 AND (b > 2 OR c > 3)", joined.String())
	assert.Equal(t, []string{"a > 1", "b > 2 OR c > 3"}, exprStrings(logicplan.SplitConjuncts(joined)))

	single := logicplan.Conjunction([]influxql.Expr{condition(t, "b > 2 OR c > 3")})
	assert.Equal(t, "b > 2 OR c > 3", single.String())
}

func TestReduceCondition(t *testing.T) {
	for input, expected := range map[string]string{
		"a > 1 AND 1 = 1":        "a > 1",
		"true AND a > 1 AND b":   "a > 1 AND b",
		"a > 1 + 2":              "a > 3",
		"1 = 2 AND a > 1":        "false",
		"a > 1 AND b > 2":        "a > 1 AND b > 2",
		"(a > 1 OR b > 2)":       "a > 1 OR b > 2",
		"a > 1 AND (b OR false)": "a > 1 AND b",
		"1 < 2":                  "true",
	} {
		expr := condition(t, input)
		reduced := logicplan.ReduceCondition(expr)
		assert.Equal(t, expected, reduced.String(), input)
		assert.Equal(t, reduced.String(), logicplan.ReduceCondition(reduced).String(), input)
	}

	expr := condition(t, "a > 1 + 2")
	logicplan.ReduceCondition(expr)
	assert.Equal(t, "a > 1 + 2", expr.String())
}

func TestRewriteColumns(t *testing.T) {
	expr := condition(t, "h = 'a' AND u > 1 AND idle > 2")
	rewritten := logicplan.RewriteColumns(expr, map[string]string{"h": "host", "u": "usage"})
	assert.Equal(t, "host = 'a' AND usage > 1 AND idle > 2", rewritten.String())
	assert.Equal(t, "h = 'a' AND u > 1 AND idle > 2", expr.String())
}

func TestExprType(t *testing.T) {
	rt := hybridqp.NewRowDataTypeImpl(
		influxql.VarRef{Val: "i", Type: influxql.Integer},
		influxql.VarRef{Val: "f", Type: influxql.Float},
		influxql.VarRef{Val: "s", Type: influxql.String},
		influxql.VarRef{Val: "u", Type: influxql.Unsigned},
	)
	for input, expected := range map[string]influxql.DataType{
		"i":           influxql.Integer,
		"i + 1":       influxql.Integer,
		"i / 2":       influxql.Float,
		"i + f":       influxql.Float,
		"s + s":       influxql.String,
		"u + 1":       influxql.Unsigned,
		"i > 1":       influxql.Boolean,
		"s =~ /a/":    influxql.Boolean,
		"(i)":         influxql.Integer,
		"'x'":         influxql.String,
		"1.5":         influxql.Float,
		"true":        influxql.Boolean,
		"count(s)":    influxql.Integer,
		"mean(i)":     influxql.Float,
		"max(s)":      influxql.String,
		"unknown + s": influxql.Unknown,
	} {
		expr, err := influxql.ParseExpr(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, logicplan.ExprType(expr, rt), input)
	}
}

func TestParseField(t *testing.T) {
	f, err := logicplan.ParseField("usage * 2 as double")
	require.NoError(t, err)
	assert.Equal(t, "double", f.Name())
	assert.Equal(t, "usage * 2", f.Expr.String())

	f, err = logicplan.ParseField("host")
	require.NoError(t, err)
	assert.Equal(t, "host", f.Name())

	_, err = logicplan.ParseField("usage *")
	assert.True(t, errno.Equal(err, errno.InvalidPlanExpr))

	_, err = logicplan.ParseCondition("a >")
	assert.True(t, errno.Equal(err, errno.InvalidPlanExpr))
}

func TestParseColumn(t *testing.T) {
	ref, err := logicplan.ParseColumn("usage")
	require.NoError(t, err)
	assert.Equal(t, influxql.VarRef{Val: "usage", Type: influxql.Float}, ref)

	ref, err = logicplan.ParseColumn("host::Tag")
	require.NoError(t, err)
	assert.Equal(t, influxql.VarRef{Val: "host", Type: influxql.Tag}, ref)

	_, err = logicplan.ParseColumn("::integer")
	assert.True(t, errno.Equal(err, errno.InvalidPlanExpr))
	_, err = logicplan.ParseColumn("host::decimal")
	assert.True(t, errno.Equal(err, errno.InvalidPlanExpr))
}
