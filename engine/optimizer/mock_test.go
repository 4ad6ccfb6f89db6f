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

package optimizer_test

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/influxdata/influxql"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/engine/optimizer"
)

var (
	convA = hybridqp.NewConvention("A")
	convB = hybridqp.NewConvention("B")

	intRow   = hybridqp.NewRowDataTypeImpl(influxql.VarRef{Val: "v", Type: influxql.Integer})
	floatRow = hybridqp.NewRowDataTypeImpl(influxql.VarRef{Val: "v", Type: influxql.Float})
)

type mockNode struct {
	id     uint64
	kind   string
	param  string
	traits hybridqp.TraitSet
	inputs []hybridqp.QueryNode
	rt     hybridqp.RowDataType
}

func newNode(kind string, param string, inputs ...hybridqp.QueryNode) *mockNode {
	return &mockNode{
		id:     hybridqp.GenerateNodeId(),
		kind:   kind,
		param:  param,
		traits: hybridqp.NewTraitSet(hybridqp.LOGICAL),
		inputs: inputs,
		rt:     intRow,
	}
}

func (n *mockNode) in(c *hybridqp.Convention) *mockNode {
	n.traits = n.traits.Replace(c)
	return n
}

func (n *mockNode) withRow(rt hybridqp.RowDataType) *mockNode {
	n.rt = rt
	return n
}

func (n *mockNode) ID() uint64 { return n.id }

func (n *mockNode) Param() string { return n.param }

func (n *mockNode) Digest() string {
	children := make([]string, 0, len(n.inputs))
	for _, input := range n.inputs {
		children = append(children, input.Digest())
	}
	return fmt.Sprintf("%s(%s)%s[%s]", n.kind, n.param, n.traits, strings.Join(children, ","))
}

func (n *mockNode) Children() []hybridqp.QueryNode { return n.inputs }

func (n *mockNode) String() string { return n.kind + "(" + n.param + ")" }

func (n *mockNode) Type() string { return n.kind }

func (n *mockNode) ReplaceChild(i int, child hybridqp.QueryNode) { n.inputs[i] = child }

func (n *mockNode) ReplaceChildren(children []hybridqp.QueryNode) { n.inputs = children }

func (n *mockNode) clone() *mockNode {
	clone := *n
	clone.id = hybridqp.GenerateNodeId()
	clone.inputs = append([]hybridqp.QueryNode(nil), n.inputs...)
	return &clone
}

func (n *mockNode) Clone() hybridqp.QueryNode { return n.clone() }

func (n *mockNode) RowDataType() hybridqp.RowDataType { return n.rt }

func (n *mockNode) Traits() hybridqp.TraitSet { return n.traits }

func paramOf(node hybridqp.QueryNode) string {
	return node.(interface{ Param() string }).Param()
}

// sizedNode knows its row count.
type sizedNode struct {
	*mockNode
	rows float64
}

func newSized(param string, rows float64) *sizedNode {
	return &sizedNode{mockNode: newNode("Scan", param+"/"+strconv.FormatFloat(rows, 'g', -1, 64)), rows: rows}
}

func (n *sizedNode) Clone() hybridqp.QueryNode { return &sizedNode{mockNode: n.clone(), rows: n.rows} }

func (n *sizedNode) RowCount() float64 { return n.rows }

// converterNode changes the convention of its input.
type converterNode struct {
	*mockNode
}

func newConverter(input hybridqp.QueryNode, to *hybridqp.Convention) *converterNode {
	node := newNode("Converter", to.Name(), input).in(to)
	node.rt = input.RowDataType()
	return &converterNode{mockNode: node}
}

func (n *converterNode) Clone() hybridqp.QueryNode { return &converterNode{mockNode: n.clone()} }

func (n *converterNode) ConvertedTraitDef() hybridqp.TraitDef { return hybridqp.ConventionTraitDef }

// removeRule replaces kind(param) by its single input.
type removeRule struct {
	optimizer.OptRuleBase
	param string
}

func newRemoveRule(kind string, param string) *removeRule {
	r := &removeRule{param: param}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput("")
	input := builder.Operand()
	builder.OneInput(kind, input)
	r.Initialize(r, builder.Operand(), fmt.Sprintf("Remove%s(%s)", kind, param))
	return r
}

func (r *removeRule) Category() optimizer.OptRuleCategory { return optimizer.RULE_FILTER_SIMPLIFY }

func (r *removeRule) Matches(call *optimizer.OptRuleCall) bool {
	return paramOf(call.Node(0)) == r.param
}

func (r *removeRule) OnMatch(call *optimizer.OptRuleCall) {
	call.TransformTo(call.Node(0).Children()[0])
}

// renameRule rewrites kind(from) into kind(to), keeping the inputs.
type renameRule struct {
	optimizer.OptRuleBase
	from string
	to   string
}

func newRenameRule(kind string, from string, to string) *renameRule {
	r := &renameRule{from: from, to: to}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput(kind)
	r.Initialize(r, builder.Operand(), fmt.Sprintf("Rename%s(%s->%s)", kind, from, to))
	return r
}

func (r *renameRule) Category() optimizer.OptRuleCategory { return optimizer.RULE_TEST }

func (r *renameRule) Matches(call *optimizer.OptRuleCall) bool {
	return paramOf(call.Node(0)) == r.from
}

func (r *renameRule) OnMatch(call *optimizer.OptRuleCall) {
	node := call.Node(0).(*mockNode).clone()
	node.param = r.to
	call.TransformTo(node)
}

// bumpRule increments the integer param of a leaf while it is below max.
type bumpRule struct {
	optimizer.OptRuleBase
	max int
}

func newBumpRule(kind string, max int) *bumpRule {
	r := &bumpRule{max: max}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.NoInput(kind)
	r.Initialize(r, builder.Operand(), "Bump"+kind)
	return r
}

func (r *bumpRule) Category() optimizer.OptRuleCategory { return optimizer.RULE_TEST }

func (r *bumpRule) Matches(call *optimizer.OptRuleCall) bool {
	n, err := strconv.Atoi(paramOf(call.Node(0)))
	return err == nil && n < r.max
}

func (r *bumpRule) OnMatch(call *optimizer.OptRuleCall) {
	node := call.Node(0).(*mockNode).clone()
	n, _ := strconv.Atoi(node.param)
	node.param = strconv.Itoa(n + 1)
	call.TransformTo(node)
}

// transposeRule swaps upper(lower(x)) into lower(upper(x)).
type transposeRule struct {
	optimizer.OptRuleBase
}

func newTransposeRule(upper string, lower string) *transposeRule {
	r := &transposeRule{}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.AnyInput("")
	input := builder.Operand()
	builder.OneInput(lower, input)
	lowerOperand := builder.Operand()
	builder.OneInput(upper, lowerOperand)
	r.Initialize(r, builder.Operand(), fmt.Sprintf("Transpose(%s,%s)", upper, lower))
	return r
}

func (r *transposeRule) Category() optimizer.OptRuleCategory { return optimizer.RULE_PUSHDOWN_FILTER }

func (r *transposeRule) OnMatch(call *optimizer.OptRuleCall) {
	upper := call.Node(0).(*mockNode).clone()
	lower := call.Node(1).(*mockNode).clone()
	upper.inputs = []hybridqp.QueryNode{lower.inputs[0]}
	lower.inputs = []hybridqp.QueryNode{upper}
	call.TransformTo(lower)
}

// alternativesRule offers several leaves of different sizes for a leaf.
type alternativesRule struct {
	optimizer.OptRuleBase
	results []hybridqp.QueryNode
}

func newAlternativesRule(kind string, param string, results ...hybridqp.QueryNode) *alternativesRule {
	r := &alternativesRule{results: results}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.NoInput(kind)
	r.Initialize(r, builder.Operand(), "Alternatives("+param+")")
	return r
}

func (r *alternativesRule) Category() optimizer.OptRuleCategory { return optimizer.RULE_TEST }

func (r *alternativesRule) Matches(call *optimizer.OptRuleCall) bool {
	return paramOf(call.Node(0)) == "origin"
}

func (r *alternativesRule) OnMatch(call *optimizer.OptRuleCall) {
	for _, result := range r.results {
		call.TransformTo(result)
	}
}

// retypeRule produces a float row from an integer row, which is never legal.
type retypeRule struct {
	optimizer.OptRuleBase
}

func newRetypeRule() *retypeRule {
	r := &retypeRule{}
	builder := optimizer.NewOptRuleOperandBuilderBase()
	builder.NoInput("Scan")
	r.Initialize(r, builder.Operand(), "Retype")
	return r
}

func (r *retypeRule) Category() optimizer.OptRuleCategory { return optimizer.RULE_TEST }

func (r *retypeRule) OnMatch(call *optimizer.OptRuleCall) {
	node := call.Node(0).(*mockNode).clone()
	node.param = "retyped"
	node.rt = floatRow
	call.TransformTo(node)
}

type conventionRule struct {
	optimizer.ConverterRuleBase
}

func newConventionRule(from *hybridqp.Convention, to *hybridqp.Convention, guaranteed bool) *conventionRule {
	r := &conventionRule{}
	r.InitializeConverter(r, "", from, to, guaranteed, fmt.Sprintf("Convert(%s->%s)", from, to))
	return r
}

func (r *conventionRule) OnMatch(call *optimizer.OptRuleCall) {
	call.TransformTo(newConverter(call.Node(0), r.OutTrait().(*hybridqp.Convention)))
}

// recordingListener keeps the descriptions of the rules whose results were adopted.
type recordingListener struct {
	optimizer.NopListener
	fired     []string
	inserted  int
	discarded int
	chosen    []hybridqp.QueryNode
}

func (l *recordingListener) NodeEquivalenceFound(rule optimizer.OptRule, _ *optimizer.HeuVertex, _ hybridqp.QueryNode) {
	if rule == nil {
		l.inserted++
		return
	}
	l.fired = append(l.fired, rule.Description())
}

func (l *recordingListener) NodeDiscarded(hybridqp.QueryNode) {
	l.discarded++
}

func (l *recordingListener) NodeChosen(node hybridqp.QueryNode) {
	l.chosen = append(l.chosen, node)
}

func newPlanner(program *optimizer.HeuProgram, rules ...optimizer.OptRule) *optimizer.HeuPlannerImpl {
	registry := optimizer.NewRuleRegistry()
	registry.AddRules(rules...)
	return optimizer.NewHeuPlannerImpl(program, registry)
}

// explain renders a final plan as kind(param) with inputs in brackets.
func explain(node hybridqp.QueryNode) string {
	var sb strings.Builder
	sb.WriteString(node.String())
	if len(node.Children()) > 0 {
		parts := make([]string, 0, len(node.Children()))
		for _, child := range node.Children() {
			parts = append(parts, explain(child))
		}
		sb.WriteString("[" + strings.Join(parts, ",") + "]")
	}
	return sb.String()
}
