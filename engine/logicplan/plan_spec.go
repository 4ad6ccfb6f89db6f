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

	"github.com/BurntSushi/toml"
	"github.com/influxdata/influxql"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/engine/optimizer"
	"github.com/openGemini/heuopt/lib/errno"
)

const (
	KindScan      = "scan"
	KindFilter    = "filter"
	KindProject   = "project"
	KindJoin      = "join"
	KindAggregate = "aggregate"
	KindConverter = "converter"
)

type ConverterSpec struct {
	From       string `toml:"from"`
	To         string `toml:"to"`
	Guaranteed bool   `toml:"guaranteed"`
}

// NodeSpec describes one plan node. A node with an id may be used again
// anywhere below by a node spec holding only a ref to that id.
type NodeSpec struct {
	Kind       string     `toml:"kind"`
	ID         string     `toml:"id"`
	Ref        string     `toml:"ref"`
	Convention string     `toml:"convention"`
	Table      string     `toml:"table"`
	Columns    []string   `toml:"columns"`
	Rows       int64      `toml:"rows"`
	Condition  string     `toml:"condition"`
	Fields     []string   `toml:"fields"`
	JoinType   string     `toml:"join-type"`
	GroupBy    []string   `toml:"group-by"`
	Calls      []string   `toml:"calls"`
	Inputs     []NodeSpec `toml:"inputs"`
}

// PlanSpec is a plan to optimize along with what the planner needs to
// know about conventions.
type PlanSpec struct {
	RootConvention string          `toml:"root-convention"`
	Converters     []ConverterSpec `toml:"converters"`
	Plan           NodeSpec        `toml:"plan"`
}

func ParsePlanSpec(content string) (*PlanSpec, error) {
	spec := &PlanSpec{}
	if _, err := toml.Decode(content, spec); err != nil {
		return nil, errno.NewError(errno.InvalidPlanDescription, err)
	}
	return spec, nil
}

func LoadPlanSpec(path string) (*PlanSpec, error) {
	spec := &PlanSpec{}
	if _, err := toml.DecodeFile(path, spec); err != nil {
		return nil, errno.NewError(errno.InvalidPlanDescription, err)
	}
	return spec, nil
}

func parseConvention(name string) *hybridqp.Convention {
	if name == "" {
		return hybridqp.LOGICAL
	}
	return hybridqp.NewConvention(strings.ToUpper(name))
}

// RequestedRootTraits is empty unless a root convention is given.
func (s *PlanSpec) RequestedRootTraits() hybridqp.TraitSet {
	if s.RootConvention == "" {
		return hybridqp.TraitSet{}
	}
	return hybridqp.NewTraitSet(parseConvention(s.RootConvention))
}

func (s *PlanSpec) ConverterRules() ([]optimizer.OptRule, error) {
	rules := make([]optimizer.OptRule, 0, len(s.Converters))
	for _, c := range s.Converters {
		if c.From == "" || c.To == "" {
			return nil, errno.NewError(errno.InvalidPlanDescription, "converter needs both from and to")
		}
		rules = append(rules, NewConventionConverterRule(parseConvention(c.From), parseConvention(c.To), c.Guaranteed))
	}
	return rules, nil
}

// Build creates the plan. Nodes sharing an id are built once.
func (s *PlanSpec) Build() (root hybridqp.QueryNode, err error) {
	defer func() {
		if r := recover(); r != nil {
			root, err = nil, errno.FromPanic(r)
		}
	}()

	b := &planBuilder{nodes: make(map[string]hybridqp.QueryNode)}
	return b.build(&s.Plan), nil
}

type planBuilder struct {
	nodes map[string]hybridqp.QueryNode
}

func (b *planBuilder) build(spec *NodeSpec) hybridqp.QueryNode {
	if spec.Ref != "" {
		node, ok := b.nodes[spec.Ref]
		if !ok {
			panic(errno.NewError(errno.InvalidPlanDescription, "unknown ref "+spec.Ref))
		}
		return node
	}

	inputs := make([]hybridqp.QueryNode, 0, len(spec.Inputs))
	for i := range spec.Inputs {
		inputs = append(inputs, b.build(&spec.Inputs[i]))
	}

	node := b.buildNode(spec, inputs)
	if spec.ID != "" {
		if _, ok := b.nodes[spec.ID]; ok {
			panic(errno.NewError(errno.InvalidPlanDescription, "duplicate id "+spec.ID))
		}
		b.nodes[spec.ID] = node
	}
	return node
}

func expectInputs(kind string, inputs []hybridqp.QueryNode, n int) {
	if len(inputs) != n {
		panic(malformed(kind, "%d inputs, expected %d", len(inputs), n))
	}
}

func mustCondition(s string) influxql.Expr {
	expr, err := ParseCondition(s)
	if err != nil {
		panic(err)
	}
	return expr
}

func mustFields(specs []string) influxql.Fields {
	fields := make(influxql.Fields, 0, len(specs))
	for _, s := range specs {
		f, err := ParseField(s)
		if err != nil {
			panic(err)
		}
		fields = append(fields, f)
	}
	return fields
}

func (b *planBuilder) buildNode(spec *NodeSpec, inputs []hybridqp.QueryNode) hybridqp.QueryNode {
	convention := parseConvention(spec.Convention)

	switch kind := strings.ToLower(spec.Kind); kind {
	case KindScan:
		expectInputs(kind, inputs, 0)
		columns := make([]influxql.VarRef, 0, len(spec.Columns))
		for _, s := range spec.Columns {
			c, err := ParseColumn(s)
			if err != nil {
				panic(err)
			}
			columns = append(columns, c)
		}
		return NewLogicalScan(spec.Table, columns, float64(spec.Rows)).WithConvention(convention)
	case KindFilter:
		expectInputs(kind, inputs, 1)
		return NewLogicalFilter(inputs[0], mustCondition(spec.Condition)).WithConvention(convention)
	case KindProject:
		expectInputs(kind, inputs, 1)
		return NewLogicalProject(inputs[0], mustFields(spec.Fields)).WithConvention(convention)
	case KindJoin:
		expectInputs(kind, inputs, 2)
		joinType, err := ParseJoinType(spec.JoinType)
		if err != nil {
			panic(err)
		}
		var condition influxql.Expr
		if spec.Condition != "" {
			condition = mustCondition(spec.Condition)
		}
		return NewLogicalJoin(inputs[0], inputs[1], joinType, condition).WithConvention(convention)
	case KindAggregate:
		expectInputs(kind, inputs, 1)
		return NewLogicalAggregate(inputs[0], spec.GroupBy, mustFields(spec.Calls)).WithConvention(convention)
	case KindConverter:
		expectInputs(kind, inputs, 1)
		return NewLogicalConverter(inputs[0], convention)
	default:
		panic(errno.NewError(errno.UnknownPlanNodeKind, spec.Kind))
	}
}
