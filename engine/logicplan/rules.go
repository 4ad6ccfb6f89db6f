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
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/influxdata/influxql"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/engine/optimizer"
)

var (
	filterType    = (&LogicalFilter{}).Type()
	projectType   = (&LogicalProject{}).Type()
	joinType      = (&LogicalJoin{}).Type()
	aggregateType = (&LogicalAggregate{}).Type()
)

func ruleDescription(rule optimizer.OptRule, description string) string {
	if description == "" {
		return hybridqp.GetTypeName(rule)
	}
	return description
}

// sameConvention reports whether all nodes are in one convention.
func sameConvention(nodes ...hybridqp.QueryNode) bool {
	for _, node := range nodes[1:] {
		if node.Traits().Convention() != nodes[0].Traits().Convention() {
			return false
		}
	}
	return true
}

// FilterTrueRemoveRule removes a filter whose condition is the literal true.
type FilterTrueRemoveRule struct {
	optimizer.OptRuleBase
}

func NewFilterTrueRemoveRule(description string) *FilterTrueRemoveRule {
	r := &FilterTrueRemoveRule{}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput(filterType)
	r.Initialize(r, builder.Operand(), ruleDescription(r, description))
	return r
}

func (r *FilterTrueRemoveRule) Category() optimizer.OptRuleCategory {
	return optimizer.RULE_FILTER_SIMPLIFY
}

func (r *FilterTrueRemoveRule) Matches(call *optimizer.OptRuleCall) bool {
	filter := call.Node(0).(*LogicalFilter)
	return IsTrue(filter.condition) && sameConvention(filter, filter.input)
}

func (r *FilterTrueRemoveRule) OnMatch(call *optimizer.OptRuleCall) {
	filter := call.Node(0).(*LogicalFilter)
	call.TransformTo(filter.input)
}

// FilterMergeRule merges a filter into the filter below it.
type FilterMergeRule struct {
	optimizer.OptRuleBase
}

func NewFilterMergeRule(description string) *FilterMergeRule {
	r := &FilterMergeRule{}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput(filterType)
	input := builder.Operand()
	builder.OneInput(filterType, input)
	r.Initialize(r, builder.Operand(), ruleDescription(r, description))
	return r
}

func (r *FilterMergeRule) Category() optimizer.OptRuleCategory {
	return optimizer.RULE_FILTER_SIMPLIFY
}

func (r *FilterMergeRule) Matches(call *optimizer.OptRuleCall) bool {
	return sameConvention(call.Node(0), call.Node(1))
}

func (r *FilterMergeRule) OnMatch(call *optimizer.OptRuleCall) {
	top := call.Node(0).(*LogicalFilter)
	bottom := call.Node(1).(*LogicalFilter)

	conjuncts := append(SplitConjuncts(bottom.condition), SplitConjuncts(top.condition)...)
	merged := NewLogicalFilter(bottom.input, Conjunction(conjuncts)).WithConvention(top.Convention())
	call.TransformTo(merged)
}

// FilterReduceExpressionsRule folds the constants of a filter condition.
type FilterReduceExpressionsRule struct {
	optimizer.OptRuleBase
}

func NewFilterReduceExpressionsRule(description string) *FilterReduceExpressionsRule {
	r := &FilterReduceExpressionsRule{}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput(filterType)
	r.Initialize(r, builder.Operand(), ruleDescription(r, description))
	return r
}

func (r *FilterReduceExpressionsRule) Category() optimizer.OptRuleCategory {
	return optimizer.RULE_FILTER_SIMPLIFY
}

func (r *FilterReduceExpressionsRule) Matches(call *optimizer.OptRuleCall) bool {
	filter := call.Node(0).(*LogicalFilter)
	return ReduceCondition(filter.condition).String() != filter.condition.String()
}

func (r *FilterReduceExpressionsRule) OnMatch(call *optimizer.OptRuleCall) {
	filter := call.Node(0).(*LogicalFilter)
	reduced := NewLogicalFilter(filter.input, ReduceCondition(filter.condition)).WithConvention(filter.Convention())
	call.TransformTo(reduced)
}

// FilterIntoJoinRule pushes the conjuncts of a filter which reference one
// side of a join below the join. For inner joins the conjuncts referencing
// both sides become part of the join condition.
type FilterIntoJoinRule struct {
	optimizer.OptRuleBase
}

func NewFilterIntoJoinRule(description string) *FilterIntoJoinRule {
	r := &FilterIntoJoinRule{}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput(joinType)
	input := builder.Operand()
	builder.OneInput(filterType, input)
	r.Initialize(r, builder.Operand(), ruleDescription(r, description))
	return r
}

func (r *FilterIntoJoinRule) Category() optimizer.OptRuleCategory {
	return optimizer.RULE_PUSHDOWN_FILTER
}

type joinConjuncts struct {
	left, right, join, remain []influxql.Expr
}

func (c *joinConjuncts) moved() bool {
	return len(c.left)+len(c.right)+len(c.join) > 0
}

func classifyJoinConjuncts(filter *LogicalFilter, join *LogicalJoin) *joinConjuncts {
	leftColumns := ColumnNames(join.left.RowDataType())
	rightColumns := ColumnNames(join.right.RowDataType())
	ambiguous := leftColumns.Intersect(rightColumns)

	c := &joinConjuncts{}
	for _, conjunct := range SplitConjuncts(filter.condition) {
		refs := ReferencedColumns(conjunct)
		switch {
		case refs.Cardinality() == 0 || refs.Intersect(ambiguous).Cardinality() > 0:
			c.remain = append(c.remain, conjunct)
		case refs.IsSubset(leftColumns):
			c.left = append(c.left, conjunct)
		case join.joinType != INNER_JOIN:
			c.remain = append(c.remain, conjunct)
		case refs.IsSubset(rightColumns):
			c.right = append(c.right, conjunct)
		default:
			c.join = append(c.join, conjunct)
		}
	}
	return c
}

func (r *FilterIntoJoinRule) Matches(call *optimizer.OptRuleCall) bool {
	filter := call.Node(0).(*LogicalFilter)
	join := call.Node(1).(*LogicalJoin)
	return sameConvention(filter, join) && classifyJoinConjuncts(filter, join).moved()
}

func (r *FilterIntoJoinRule) OnMatch(call *optimizer.OptRuleCall) {
	filter := call.Node(0).(*LogicalFilter)
	join := call.Node(1).(*LogicalJoin)
	c := classifyJoinConjuncts(filter, join)

	left, right := join.left, join.right
	if len(c.left) > 0 {
		left = NewLogicalFilter(left, Conjunction(c.left)).WithConvention(left.Traits().Convention())
	}
	if len(c.right) > 0 {
		right = NewLogicalFilter(right, Conjunction(c.right)).WithConvention(right.Traits().Convention())
	}

	var condition influxql.Expr
	if conjuncts := append(SplitConjuncts(join.condition), c.join...); len(conjuncts) > 0 {
		condition = Conjunction(conjuncts)
	}

	var result hybridqp.QueryNode = NewLogicalJoin(left, right, join.joinType, condition).WithConvention(join.Convention())
	if len(c.remain) > 0 {
		result = NewLogicalFilter(result, Conjunction(c.remain)).WithConvention(filter.Convention())
	}
	call.TransformTo(result)
}

// FilterProjectTransposeRule moves a filter below a projection of plain columns.
type FilterProjectTransposeRule struct {
	optimizer.OptRuleBase
}

func NewFilterProjectTransposeRule(description string) *FilterProjectTransposeRule {
	r := &FilterProjectTransposeRule{}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput(projectType)
	input := builder.Operand()
	builder.OneInput(filterType, input)
	r.Initialize(r, builder.Operand(), ruleDescription(r, description))
	return r
}

func (r *FilterProjectTransposeRule) Category() optimizer.OptRuleCategory {
	return optimizer.RULE_PUSHDOWN_FILTER
}

func (r *FilterProjectTransposeRule) Matches(call *optimizer.OptRuleCall) bool {
	project := call.Node(1).(*LogicalProject)
	return project.IsColumnsOnly() && sameConvention(call.Node(0), project)
}

func (r *FilterProjectTransposeRule) OnMatch(call *optimizer.OptRuleCall) {
	filter := call.Node(0).(*LogicalFilter)
	project := call.Node(1).(*LogicalProject)

	mapping := make(map[string]string, len(project.fields))
	for _, f := range project.fields {
		mapping[f.Name()] = f.Expr.(*influxql.VarRef).Val
	}

	pushed := NewLogicalFilter(project.input, RewriteColumns(filter.condition, mapping)).WithConvention(filter.Convention())
	call.TransformTo(NewLogicalProject(pushed, project.fields).WithConvention(project.Convention()))
}

// FilterAggregateTransposeRule pushes the conjuncts of a filter which only
// reference group columns below the aggregate.
type FilterAggregateTransposeRule struct {
	optimizer.OptRuleBase
}

func NewFilterAggregateTransposeRule(description string) *FilterAggregateTransposeRule {
	r := &FilterAggregateTransposeRule{}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput(aggregateType)
	input := builder.Operand()
	builder.OneInput(filterType, input)
	r.Initialize(r, builder.Operand(), ruleDescription(r, description))
	return r
}

func (r *FilterAggregateTransposeRule) Category() optimizer.OptRuleCategory {
	return optimizer.RULE_PUSHDOWN_FILTER
}

func splitGroupConjuncts(filter *LogicalFilter, agg *LogicalAggregate) (pushed []influxql.Expr, remain []influxql.Expr) {
	groups := mapset.NewThreadUnsafeSet[string](agg.groupBy...)
	for _, conjunct := range SplitConjuncts(filter.condition) {
		refs := ReferencedColumns(conjunct)
		if refs.Cardinality() > 0 && refs.IsSubset(groups) {
			pushed = append(pushed, conjunct)
		} else {
			remain = append(remain, conjunct)
		}
	}
	return
}

func (r *FilterAggregateTransposeRule) Matches(call *optimizer.OptRuleCall) bool {
	filter := call.Node(0).(*LogicalFilter)
	agg := call.Node(1).(*LogicalAggregate)
	if !sameConvention(filter, agg) {
		return false
	}
	pushed, _ := splitGroupConjuncts(filter, agg)
	return len(pushed) > 0
}

func (r *FilterAggregateTransposeRule) OnMatch(call *optimizer.OptRuleCall) {
	filter := call.Node(0).(*LogicalFilter)
	agg := call.Node(1).(*LogicalAggregate)
	pushed, remain := splitGroupConjuncts(filter, agg)

	input := NewLogicalFilter(agg.input, Conjunction(pushed)).WithConvention(filter.Convention())
	var result hybridqp.QueryNode = NewLogicalAggregate(input, agg.groupBy, agg.calls).WithConvention(agg.Convention())
	if len(remain) > 0 {
		result = NewLogicalFilter(result, Conjunction(remain)).WithConvention(filter.Convention())
	}
	call.TransformTo(result)
}

// ProjectRemoveRule removes a projection returning its input unchanged.
type ProjectRemoveRule struct {
	optimizer.OptRuleBase
}

func NewProjectRemoveRule(description string) *ProjectRemoveRule {
	r := &ProjectRemoveRule{}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput(projectType)
	r.Initialize(r, builder.Operand(), ruleDescription(r, description))
	return r
}

func (r *ProjectRemoveRule) Category() optimizer.OptRuleCategory {
	return optimizer.RULE_PROJECT_SIMPLIFY
}

func (r *ProjectRemoveRule) Matches(call *optimizer.OptRuleCall) bool {
	project := call.Node(0).(*LogicalProject)
	inputType := project.input.RowDataType()
	if len(project.fields) != inputType.NumColumn() || !sameConvention(project, project.input) {
		return false
	}
	for i, f := range project.fields {
		ref, ok := f.Expr.(*influxql.VarRef)
		name := inputType.Field(i).Name()
		if !ok || ref.Val != name || f.Name() != name {
			return false
		}
	}
	return true
}

func (r *ProjectRemoveRule) OnMatch(call *optimizer.OptRuleCall) {
	project := call.Node(0).(*LogicalProject)
	call.TransformTo(project.input)
}

// ConventionConverterRule puts a LogicalConverter on top of a node in one
// convention when a parent asks for another.
type ConventionConverterRule struct {
	optimizer.ConverterRuleBase
}

func NewConventionConverterRule(from *hybridqp.Convention, to *hybridqp.Convention, guaranteed bool) *ConventionConverterRule {
	r := &ConventionConverterRule{}
	r.InitializeConverter(r, "", from, to, guaranteed, fmt.Sprintf("ConventionConverterRule(%s->%s)", from, to))
	return r
}

func (r *ConventionConverterRule) OnMatch(call *optimizer.OptRuleCall) {
	call.TransformTo(NewLogicalConverter(call.Node(0), r.OutTrait().(*hybridqp.Convention)))
}
