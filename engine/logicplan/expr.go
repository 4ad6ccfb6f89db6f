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

package logicplan

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/influxdata/influxql"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/lib/errno"
)

// ReferencedColumns returns the names of all columns expr refers to.
func ReferencedColumns(expr influxql.Expr) mapset.Set[string] {
	columns := mapset.NewThreadUnsafeSet[string]()
	if expr == nil {
		return columns
	}
	influxql.WalkFunc(expr, func(node influxql.Node) {
		if ref, ok := node.(*influxql.VarRef); ok {
			columns.Add(ref.Val)
		}
	})
	return columns
}

// ColumnNames returns the field names of rt as a set.
func ColumnNames(rt hybridqp.RowDataType) mapset.Set[string] {
	names := mapset.NewThreadUnsafeSet[string]()
	for _, f := range rt.Fields() {
		names.Add(f.Name())
	}
	return names
}

func unwrapParen(expr influxql.Expr) influxql.Expr {
	for {
		paren, ok := expr.(*influxql.ParenExpr)
		if !ok {
			return expr
		}
		expr = paren.Expr
	}
}

func IsTrue(expr influxql.Expr) bool {
	lit, ok := unwrapParen(expr).(*influxql.BooleanLiteral)
	return ok && lit.Val
}

func IsFalse(expr influxql.Expr) bool {
	lit, ok := unwrapParen(expr).(*influxql.BooleanLiteral)
	return ok && !lit.Val
}

// SplitConjuncts flattens a tree of AND into its operands.
func SplitConjuncts(expr influxql.Expr) []influxql.Expr {
	if expr == nil {
		return nil
	}
	expr = unwrapParen(expr)
	if binary, ok := expr.(*influxql.BinaryExpr); ok && binary.Op == influxql.AND {
		return append(SplitConjuncts(binary.LHS), SplitConjuncts(binary.RHS)...)
	}
	return []influxql.Expr{expr}
}

// Conjunction joins exprs with AND, an empty list is the literal true.
// Operands which are OR expressions are parenthesized unless alone.
func Conjunction(exprs []influxql.Expr) influxql.Expr {
	var result influxql.Expr
	for _, expr := range exprs {
		if binary, ok := expr.(*influxql.BinaryExpr); ok && binary.Op == influxql.OR && len(exprs) > 1 {
			expr = &influxql.ParenExpr{Expr: binary}
		}
		if result == nil {
			result = expr
			continue
		}
		result = &influxql.BinaryExpr{Op: influxql.AND, LHS: result, RHS: expr}
	}
	if result == nil {
		return &influxql.BooleanLiteral{Val: true}
	}
	return result
}

// ReduceCondition folds constants and drops conjuncts which are always true.
// A condition with a conjunct always false reduces to false.
func ReduceCondition(expr influxql.Expr) influxql.Expr {
	reduced := influxql.Reduce(influxql.CloneExpr(expr), nil)

	conjuncts := SplitConjuncts(reduced)
	kept := make([]influxql.Expr, 0, len(conjuncts))
	for _, c := range conjuncts {
		if IsTrue(c) {
			continue
		}
		if IsFalse(c) {
			return &influxql.BooleanLiteral{Val: false}
		}
		kept = append(kept, c)
	}
	return Conjunction(kept)
}

// RewriteColumns renames the column references of expr, names missing in
// mapping are kept.
func RewriteColumns(expr influxql.Expr, mapping map[string]string) influxql.Expr {
	return influxql.RewriteExpr(influxql.CloneExpr(expr), func(e influxql.Expr) influxql.Expr {
		ref, ok := e.(*influxql.VarRef)
		if !ok {
			return e
		}
		if name, ok := mapping[ref.Val]; ok {
			return &influxql.VarRef{Val: name, Type: ref.Type}
		}
		return e
	})
}

// ExprType infers the type of expr evaluated over rows of rt.
func ExprType(expr influxql.Expr, rt hybridqp.RowDataType) influxql.DataType {
	switch e := expr.(type) {
	case *influxql.VarRef:
		if index := rt.FieldIndex(e.Val); index >= 0 {
			return hybridqp.FieldType(rt.Field(index))
		}
		return e.Type
	case *influxql.IntegerLiteral:
		return influxql.Integer
	case *influxql.UnsignedLiteral:
		return influxql.Unsigned
	case *influxql.NumberLiteral:
		return influxql.Float
	case *influxql.StringLiteral:
		return influxql.String
	case *influxql.BooleanLiteral:
		return influxql.Boolean
	case *influxql.ParenExpr:
		return ExprType(e.Expr, rt)
	case *influxql.BinaryExpr:
		return binaryExprType(e, rt)
	case *influxql.Call:
		return callType(e, rt)
	default:
		return influxql.Unknown
	}
}

func binaryExprType(expr *influxql.BinaryExpr, rt hybridqp.RowDataType) influxql.DataType {
	switch expr.Op {
	case influxql.AND, influxql.OR,
		influxql.EQ, influxql.NEQ, influxql.LT, influxql.LTE, influxql.GT, influxql.GTE,
		influxql.EQREGEX, influxql.NEQREGEX:
		return influxql.Boolean
	}

	lhs, rhs := ExprType(expr.LHS, rt), ExprType(expr.RHS, rt)
	switch {
	case lhs == influxql.Float || rhs == influxql.Float:
		return influxql.Float
	case lhs == influxql.String && rhs == influxql.String && expr.Op == influxql.ADD:
		return influxql.String
	case lhs == influxql.Integer && rhs == influxql.Integer:
		if expr.Op == influxql.DIV {
			return influxql.Float
		}
		return influxql.Integer
	case lhs == influxql.Unsigned || rhs == influxql.Unsigned:
		return influxql.Unsigned
	default:
		return influxql.Unknown
	}
}

func callType(call *influxql.Call, rt hybridqp.RowDataType) influxql.DataType {
	switch strings.ToLower(call.Name) {
	case "count":
		return influxql.Integer
	case "mean", "median", "stddev", "spread":
		return influxql.Float
	}
	if len(call.Args) > 0 {
		return ExprType(call.Args[0], rt)
	}
	return influxql.Float
}

// ParseCondition parses a boolean influxql expression.
func ParseCondition(s string) (influxql.Expr, error) {
	expr, err := influxql.ParseExpr(s)
	if err != nil {
		return nil, errno.NewError(errno.InvalidPlanExpr, s, err)
	}
	return expr, nil
}

// ParseField parses "expr" or "expr AS alias".
func ParseField(s string) (*influxql.Field, error) {
	exprPart, alias := s, ""
	if i := strings.LastIndex(strings.ToUpper(s), " AS "); i >= 0 {
		exprPart, alias = s[:i], strings.TrimSpace(s[i+len(" AS "):])
	}
	expr, err := influxql.ParseExpr(strings.TrimSpace(exprPart))
	if err != nil {
		return nil, errno.NewError(errno.InvalidPlanExpr, s, err)
	}
	return &influxql.Field{Expr: expr, Alias: alias}, nil
}

// ParseColumn parses "name::type", a column without type is a float.
func ParseColumn(s string) (influxql.VarRef, error) {
	name, typ := s, "float"
	if i := strings.Index(s, "::"); i >= 0 {
		name, typ = s[:i], s[i+2:]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return influxql.VarRef{}, errno.NewError(errno.InvalidPlanExpr, s, "column without name")
	}

	var dataType influxql.DataType
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "float":
		dataType = influxql.Float
	case "integer":
		dataType = influxql.Integer
	case "unsigned":
		dataType = influxql.Unsigned
	case "string":
		dataType = influxql.String
	case "boolean":
		dataType = influxql.Boolean
	case "time":
		dataType = influxql.Time
	case "tag":
		dataType = influxql.Tag
	default:
		return influxql.VarRef{}, errno.NewError(errno.InvalidPlanExpr, s, "unknown column type "+typ)
	}
	return influxql.VarRef{Val: name, Type: dataType}, nil
}
