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
	"sort"
	"strings"

	"github.com/influxdata/influxql"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/lib/errno"
)

type JoinType uint8

const (
	INNER_JOIN JoinType = iota
	LEFT_JOIN
)

func (t JoinType) String() string {
	switch t {
	case INNER_JOIN:
		return "inner"
	case LEFT_JOIN:
		return "left"
	default:
		return "unknown"
	}
}

func ParseJoinType(s string) (JoinType, error) {
	switch strings.ToLower(s) {
	case "inner", "":
		return INNER_JOIN, nil
	case "left":
		return LEFT_JOIN, nil
	default:
		return INNER_JOIN, errno.NewError(errno.InvalidPlanDescription, "unknown join type "+s)
	}
}

type LogicalJoin struct {
	left      hybridqp.QueryNode
	right     hybridqp.QueryNode
	joinType  JoinType
	condition influxql.Expr
	LogicalPlanBase
}

// NewLogicalJoin joins left and right on condition, nil means a cross join.
// The rows carry the fields of left followed by those of right.
func NewLogicalJoin(left hybridqp.QueryNode, right hybridqp.QueryNode, joinType JoinType, condition influxql.Expr) *LogicalJoin {
	checkInput("LogicalJoin", left)
	checkInput("LogicalJoin", right)

	rt := hybridqp.ConcatRowDataType(left.RowDataType(), right.RowDataType())
	if condition != nil {
		checkColumns("LogicalJoin", condition, rt)
	}

	join := &LogicalJoin{
		left:            left,
		right:           right,
		joinType:        joinType,
		condition:       condition,
		LogicalPlanBase: newLogicalPlanBase(rt),
	}
	join.init()
	return join
}

func (p *LogicalJoin) init() {
	params := p.joinType.String()
	if p.condition != nil {
		params += ", " + p.condition.String()
	}
	p.updateDigest(p.String(), params, p.Children())
}

func (p *LogicalJoin) WithConvention(c *hybridqp.Convention) *LogicalJoin {
	p.traits = p.traits.Replace(c)
	p.init()
	return p
}

func (p *LogicalJoin) JoinType() JoinType {
	return p.joinType
}

func (p *LogicalJoin) Condition() influxql.Expr {
	return p.condition
}

func (p *LogicalJoin) Clone() hybridqp.QueryNode {
	clone := &LogicalJoin{}
	*clone = *p
	clone.renew()
	return clone
}

func (p *LogicalJoin) Children() []hybridqp.QueryNode {
	return []hybridqp.QueryNode{p.left, p.right}
}

func (p *LogicalJoin) ReplaceChildren(children []hybridqp.QueryNode) {
	if len(children) != 2 {
		panic(malformed(p.String(), "two children in logical join, got %d", len(children)))
	}
	p.left, p.right = children[0], children[1]
	p.init()
}

func (p *LogicalJoin) ReplaceChild(ordinal int, child hybridqp.QueryNode) {
	switch ordinal {
	case 0:
		p.left = child
	case 1:
		p.right = child
	default:
		panic(malformed(p.String(), "index %d out of range %d", ordinal, 2))
	}
	p.init()
}

func (p *LogicalJoin) ExplainIterms(writer LogicalPlanWriter) {
	writer.Item("type", p.joinType)
	if p.condition != nil {
		writer.Item("condition", p.condition)
	}
}

func (p *LogicalJoin) String() string {
	return hybridqp.GetTypeName(p)
}

func (p *LogicalJoin) Type() string {
	return hybridqp.GetType(p)
}

type LogicalAggregate struct {
	input   hybridqp.QueryNode
	groupBy []string
	calls   influxql.Fields
	LogicalPlanBase
}

// NewLogicalAggregate groups the rows of input by the named columns. The rows
// carry the group columns, sorted by name, followed by one field per call.
func NewLogicalAggregate(input hybridqp.QueryNode, groupBy []string, calls influxql.Fields) *LogicalAggregate {
	checkInput("LogicalAggregate", input)
	if len(groupBy) == 0 && len(calls) == 0 {
		panic(malformed("LogicalAggregate", "neither group columns nor calls"))
	}

	inputType := input.RowDataType()
	groups := append([]string(nil), groupBy...)
	sort.Strings(groups)

	refs := make([]influxql.VarRef, 0, len(groups)+len(calls))
	for i, name := range groups {
		if i > 0 && groups[i-1] == name {
			panic(malformed("LogicalAggregate", "duplicate group column %q", name))
		}
		index := inputType.FieldIndex(name)
		if index < 0 {
			panic(malformed("LogicalAggregate", "unknown group column %q", name))
		}
		refs = append(refs, influxql.VarRef{Val: name, Type: hybridqp.FieldType(inputType.Field(index))})
	}
	for _, f := range calls {
		if _, ok := f.Expr.(*influxql.Call); !ok {
			panic(malformed("LogicalAggregate", "%s is not a call", f))
		}
		checkColumns("LogicalAggregate", f.Expr, inputType)
		refs = append(refs, influxql.VarRef{Val: f.Name(), Type: ExprType(f.Expr, inputType)})
	}

	agg := &LogicalAggregate{
		input:           input,
		groupBy:         groups,
		calls:           calls,
		LogicalPlanBase: newLogicalPlanBase(hybridqp.NewRowDataTypeImpl(refs...)),
	}
	agg.init()
	return agg
}

func (p *LogicalAggregate) init() {
	p.updateDigest(p.String(), strings.Join(p.groupBy, ", ")+"; "+p.calls.String(), p.Children())
}

func (p *LogicalAggregate) WithConvention(c *hybridqp.Convention) *LogicalAggregate {
	p.traits = p.traits.Replace(c)
	p.init()
	return p
}

func (p *LogicalAggregate) GroupBy() []string {
	return p.groupBy
}

func (p *LogicalAggregate) Calls() influxql.Fields {
	return p.calls
}

func (p *LogicalAggregate) Clone() hybridqp.QueryNode {
	clone := &LogicalAggregate{}
	*clone = *p
	clone.renew()
	return clone
}

func (p *LogicalAggregate) Children() []hybridqp.QueryNode {
	return []hybridqp.QueryNode{p.input}
}

func (p *LogicalAggregate) ReplaceChildren(children []hybridqp.QueryNode) {
	if len(children) != 1 {
		panic(malformed(p.String(), "only one child in logical aggregate"))
	}
	p.input = children[0]
	p.init()
}

func (p *LogicalAggregate) ReplaceChild(ordinal int, child hybridqp.QueryNode) {
	if ordinal > 0 {
		panic(malformed(p.String(), "index %d out of range %d", ordinal, 1))
	}
	p.input = child
	p.init()
}

func (p *LogicalAggregate) ExplainIterms(writer LogicalPlanWriter) {
	if len(p.groupBy) > 0 {
		writer.Item("group-by", strings.Join(p.groupBy, ", "))
	}
	if len(p.calls) > 0 {
		writer.Item("calls", p.calls)
	}
}

func (p *LogicalAggregate) String() string {
	return hybridqp.GetTypeName(p)
}

func (p *LogicalAggregate) Type() string {
	return hybridqp.GetType(p)
}

// LogicalConverter changes the convention of its input and nothing else.
type LogicalConverter struct {
	input hybridqp.QueryNode
	LogicalPlanBase
}

func NewLogicalConverter(input hybridqp.QueryNode, to *hybridqp.Convention) *LogicalConverter {
	checkInput("LogicalConverter", input)
	if to == nil {
		panic(malformed("LogicalConverter", "target convention is nil"))
	}

	converter := &LogicalConverter{
		input: input,
		LogicalPlanBase: LogicalPlanBase{
			id:     hybridqp.GenerateNodeId(),
			rt:     input.RowDataType(),
			traits: input.Traits().Replace(to),
		},
	}
	converter.init()
	return converter
}

func (p *LogicalConverter) init() {
	p.updateDigest(p.String(), p.Convention().String(), p.Children())
}

func (p *LogicalConverter) ConvertedTraitDef() hybridqp.TraitDef {
	return hybridqp.ConventionTraitDef
}

func (p *LogicalConverter) Clone() hybridqp.QueryNode {
	clone := &LogicalConverter{}
	*clone = *p
	clone.renew()
	return clone
}

func (p *LogicalConverter) Children() []hybridqp.QueryNode {
	return []hybridqp.QueryNode{p.input}
}

func (p *LogicalConverter) ReplaceChildren(children []hybridqp.QueryNode) {
	if len(children) != 1 {
		panic(malformed(p.String(), "only one child in logical converter"))
	}
	p.input = children[0]
	p.init()
}

func (p *LogicalConverter) ReplaceChild(ordinal int, child hybridqp.QueryNode) {
	if ordinal > 0 {
		panic(malformed(p.String(), "index %d out of range %d", ordinal, 1))
	}
	p.input = child
	p.init()
}

func (p *LogicalConverter) ExplainIterms(writer LogicalPlanWriter) {
	writer.Item("to", p.Convention())
}

func (p *LogicalConverter) String() string {
	return hybridqp.GetTypeName(p)
}

func (p *LogicalConverter) Type() string {
	return hybridqp.GetType(p)
}
