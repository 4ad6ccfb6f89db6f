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

package optimizer

import (
	"container/list"
	"strings"
	"sync/atomic"

	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/lib/errno"
)

type OptRuleOperandChildPolicy int

const (
	// ANY places no constraint on the inputs
	ANY OptRuleOperandChildPolicy = iota
	// LEAF requires a node without inputs
	LEAF
	// SOME matches the child operands against the inputs pairwise, in order
	SOME
	// UNORDERED matches every child operand against some distinct input
	UNORDERED
)

type OptRuleOperand interface {
	Equals(rhs OptRuleOperand) bool
	SetParent(parent OptRuleOperand)
	Parent() OptRuleOperand
	Matches(node hybridqp.QueryNode) bool
	Policy() OptRuleOperandChildPolicy
	PlanType() string
	Trait() hybridqp.Trait
	SetRule(rule OptRule)
	Rule() OptRule
	SetOrdinalInParent(int)
	SetOrdinalInRule(int)
	OrdinalInRule() int
	Children() []OptRuleOperand
}

type OptRuleOperands []OptRuleOperand

func (operands OptRuleOperands) Equals(rhs OptRuleOperands) bool {
	if len(operands) != len(rhs) {
		return false
	}

	for i, operand := range operands {
		if !operand.Equals(rhs[i]) {
			return false
		}
	}

	return true
}

type OptRuleOperandBase struct {
	policy          OptRuleOperandChildPolicy
	planType        string
	trait           hybridqp.Trait
	children        []OptRuleOperand
	parent          OptRuleOperand
	rule            OptRule
	ordinalInParent int
	ordinalInRule   int
}

// NewOptRuleOperandBase creates an operand for nodes of planType. An empty
// planType matches nodes of every type, a nil trait matches every trait set.
func NewOptRuleOperandBase(planType string, trait hybridqp.Trait, policy OptRuleOperandChildPolicy, children []OptRuleOperand) *OptRuleOperandBase {
	ob := &OptRuleOperandBase{
		planType:        planType,
		trait:           trait,
		policy:          policy,
		children:        children,
		parent:          nil,
		rule:            nil,
		ordinalInParent: 0,
		ordinalInRule:   0,
	}

	return ob
}

func (ob *OptRuleOperandBase) Equals(rhs OptRuleOperand) bool {
	if ob == rhs {
		return true
	}

	if rob, ok := rhs.(*OptRuleOperandBase); !ok {
		return false
	} else {
		return ob.planType == rob.planType &&
			ob.policy == rob.policy &&
			hybridqp.TraitEqual(ob.trait, rob.trait) &&
			OptRuleOperands(ob.children).Equals(OptRuleOperands(rob.children))
	}
}

func (ob *OptRuleOperandBase) SetParent(parent OptRuleOperand) {
	ob.parent = parent
}

func (ob *OptRuleOperandBase) Parent() OptRuleOperand {
	return ob.parent
}

func (ob *OptRuleOperandBase) Matches(node hybridqp.QueryNode) bool {
	if ob.planType != "" && ob.planType != node.Type() {
		return false
	}
	return ob.trait == nil || node.Traits().Contains(ob.trait)
}

func (ob *OptRuleOperandBase) Policy() OptRuleOperandChildPolicy {
	return ob.policy
}

func (ob *OptRuleOperandBase) PlanType() string {
	return ob.planType
}

func (ob *OptRuleOperandBase) Trait() hybridqp.Trait {
	return ob.trait
}

func (ob *OptRuleOperandBase) SetRule(rule OptRule) {
	ob.rule = rule
}

func (ob *OptRuleOperandBase) Rule() OptRule {
	return ob.rule
}

func (ob *OptRuleOperandBase) SetOrdinalInParent(ordinal int) {
	ob.ordinalInParent = ordinal
}

func (ob *OptRuleOperandBase) SetOrdinalInRule(ordinal int) {
	ob.ordinalInRule = ordinal
}

func (ob *OptRuleOperandBase) OrdinalInRule() int {
	return ob.ordinalInRule
}

func (ob *OptRuleOperandBase) Children() []OptRuleOperand {
	return ob.children
}

type OptRuleOperandBuilder interface {
	NoInput(planType string)
	AnyInput(planType string)
	TraitInput(planType string, trait hybridqp.Trait)
	OneInput(planType string, input OptRuleOperand)
	Inputs(planType string, inputs ...OptRuleOperand)
	UnorderedInputs(planType string, inputs ...OptRuleOperand)
	Operands() []OptRuleOperand
	Operand() OptRuleOperand
}

type OptRuleOperandBuilderBase struct {
	operands []OptRuleOperand
}

func NewOptRuleOperandBuilderBase() *OptRuleOperandBuilderBase {
	builder := &OptRuleOperandBuilderBase{
		operands: nil,
	}

	return builder
}

func (builder *OptRuleOperandBuilderBase) build(planType string, trait hybridqp.Trait, policy OptRuleOperandChildPolicy, inputs []OptRuleOperand) {
	operand := NewOptRuleOperandBase(planType, trait, policy, inputs)
	builder.operands = append(builder.operands, operand)
}

func (builder *OptRuleOperandBuilderBase) NoInput(planType string) {
	builder.build(planType, nil, LEAF, nil)
}

func (builder *OptRuleOperandBuilderBase) AnyInput(planType string) {
	builder.build(planType, nil, ANY, nil)
}

// TraitInput matches nodes of planType carrying trait, whatever their inputs.
func (builder *OptRuleOperandBuilderBase) TraitInput(planType string, trait hybridqp.Trait) {
	builder.build(planType, trait, ANY, nil)
}

func (builder *OptRuleOperandBuilderBase) OneInput(planType string, input OptRuleOperand) {
	builder.build(planType, nil, SOME, []OptRuleOperand{input})
}

func (builder *OptRuleOperandBuilderBase) Inputs(planType string, inputs ...OptRuleOperand) {
	builder.build(planType, nil, SOME, inputs)
}

func (builder *OptRuleOperandBuilderBase) UnorderedInputs(planType string, inputs ...OptRuleOperand) {
	builder.build(planType, nil, UNORDERED, inputs)
}

func (builder *OptRuleOperandBuilderBase) Operands() []OptRuleOperand {
	operands := builder.operands
	builder.operands = nil
	return operands
}

func (builder *OptRuleOperandBuilderBase) Operand() OptRuleOperand {
	if len(builder.operands) == 0 {
		builder.operands = nil
		return nil
	}
	operands := builder.Operands()
	return operands[0]
}

var (
	nextOptRuleCallId uint64 = 0
)

// OptRuleCall is one firing of a rule. Nodes are bound in operand order: the
// node matched by the root operand first, then its inputs depth first.
type OptRuleCall struct {
	id      uint64
	results []hybridqp.QueryNode
	planner HeuPlanner
	rule    OptRule
	nodes   []hybridqp.QueryNode
}

func NewOptRuleCall(planner HeuPlanner,
	rule OptRule,
	nodes []hybridqp.QueryNode,
) *OptRuleCall {
	if len(nodes) != len(rule.Operands()) {
		panic(errno.NewError(errno.OperandArityMismatch, rule.Description(), len(rule.Operands()), len(nodes)))
	}
	return &OptRuleCall{
		id:      atomic.AddUint64(&nextOptRuleCallId, 1),
		results: nil,
		planner: planner,
		rule:    rule,
		nodes:   nodes,
	}
}

func (c *OptRuleCall) ID() uint64 {
	return c.id
}

func (c *OptRuleCall) Rule() OptRule {
	return c.rule
}

func (c *OptRuleCall) Planner() HeuPlanner {
	return c.planner
}

func (c *OptRuleCall) Node(ordinal int) hybridqp.QueryNode {
	return c.nodes[ordinal]
}

func (c *OptRuleCall) Nodes() []hybridqp.QueryNode {
	return c.nodes
}

func (c *OptRuleCall) GetResult() []hybridqp.QueryNode {
	return c.results
}

// TransformTo registers an equivalent of the matched root. A result with a
// row type other than the matched root's is a broken rule.
func (c *OptRuleCall) TransformTo(to hybridqp.QueryNode) []hybridqp.QueryNode {
	from := c.nodes[0]
	if !c.planner.RowTypeChecker().Equivalent(from.RowDataType(), to.RowDataType()) {
		panic(errno.NewError(errno.RuleResultRowTypeMismatch, c.rule.Description(), to.RowDataType(), from.RowDataType()))
	}
	c.results = append(c.results, to)
	return c.results
}

type OptRuleCategory int

const (
	RULE_TEST OptRuleCategory = iota
	RULE_FILTER_SIMPLIFY
	RULE_PUSHDOWN_FILTER
	RULE_PROJECT_SIMPLIFY
	RULE_CONVERTER
)

var categoryNames = map[OptRuleCategory]string{
	RULE_TEST:             "test",
	RULE_FILTER_SIMPLIFY:  "simplify",
	RULE_PUSHDOWN_FILTER:  "pushdown",
	RULE_PROJECT_SIMPLIFY: "project",
	RULE_CONVERTER:        "converter",
}

func (c OptRuleCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

func ParseOptRuleCategory(name string) (OptRuleCategory, error) {
	for category, n := range categoryNames {
		if strings.EqualFold(n, name) {
			return category, nil
		}
	}
	return RULE_TEST, errno.NewError(errno.UnknownConfigKind, "rule category", name)
}

type OptRule interface {
	Initialize(rule OptRule, operand OptRuleOperand, description string)
	ToString() string
	Description() string
	Category() OptRuleCategory
	Equals(OptRule) bool
	GetOperand() OptRuleOperand
	Operands() []OptRuleOperand
	Matches(call *OptRuleCall) bool
	OnMatch(call *OptRuleCall)
}

type OptRuleBase struct {
	derive      OptRule
	description string
	operand     OptRuleOperand
	operands    []OptRuleOperand
}

func (r *OptRuleBase) flattenOptRuleOperand(operand OptRuleOperand) []OptRuleOperand {
	operandList := list.New()

	operand.SetRule(r.derive)
	operand.SetParent(nil)
	operand.SetOrdinalInParent(0)
	operand.SetOrdinalInRule(operandList.Len())
	operandList.PushBack(operand)

	r.flatten(operandList, operand)

	operands := make([]OptRuleOperand, 0, operandList.Len())
	for e := operandList.Front(); e != nil; e = e.Next() {
		operands = append(operands, e.Value.(OptRuleOperand))
	}
	return operands
}

func (r *OptRuleBase) flatten(operandList *list.List, parentOperand OptRuleOperand) {
	for i, operand := range parentOperand.Children() {
		operand.SetRule(r.derive)
		operand.SetParent(parentOperand)
		operand.SetOrdinalInParent(i)
		operand.SetOrdinalInRule(operandList.Len())
		operandList.PushBack(operand)
		r.flatten(operandList, operand)
	}
}

func (r *OptRuleBase) Initialize(rule OptRule, operand OptRuleOperand, description string) {
	r.derive = rule
	r.operand = operand
	r.description = description
	r.operands = r.flattenOptRuleOperand(operand)
}

func (r *OptRuleBase) Description() string {
	return r.description
}

func (r *OptRuleBase) ToString() string {
	return r.description
}

func (r *OptRuleBase) GetOperand() OptRuleOperand {
	return r.operand
}

func (r *OptRuleBase) Operands() []OptRuleOperand {
	return r.operands
}

func (r *OptRuleBase) Equals(rhs OptRule) bool {
	if rhs == nil {
		return false
	}
	if r.derive == rhs {
		return true
	}

	return r.description == rhs.Description() && r.operand.Equals(rhs.GetOperand())
}

func (r *OptRuleBase) Matches(_ *OptRuleCall) bool {
	return true
}

// RuleSet is an ordered set of rules keyed by description.
type RuleSet []OptRule

func (rs RuleSet) Contains(rule OptRule) bool {
	for _, r := range rs {
		if r.Description() == rule.Description() {
			return true
		}
	}
	return false
}

func (rs *RuleSet) Add(rule OptRule) {
	if !rs.Contains(rule) {
		*rs = append(*rs, rule)
	}
}

func (rs *RuleSet) AddAll(rules RuleSet) {
	for _, rule := range rules {
		rs.Add(rule)
	}
}
