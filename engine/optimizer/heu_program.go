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
	"math"

	"github.com/openGemini/heuopt/lib/config"
	"github.com/openGemini/heuopt/lib/errno"
)

type HeuInstruction interface {
	// Initialize prepares the instruction for a new execution of its
	// program. Cached state is dropped only when clearCache is set.
	Initialize(bool)
	Execute(HeuPlanner)
}

// MatchUntilFixpoint disables the match limit.
const MatchUntilFixpoint = math.MaxInt

type HeuMatchOrder uint8

const (
	ARBITRARY HeuMatchOrder = iota
	BOTTOM_UP
	TOP_DOWN
	DEPTH_FIRST
)

func (o HeuMatchOrder) String() string {
	switch o {
	case ARBITRARY:
		return config.MatchOrderArbitrary
	case BOTTOM_UP:
		return config.MatchOrderBottomUp
	case TOP_DOWN:
		return config.MatchOrderTopDown
	case DEPTH_FIRST:
		return config.MatchOrderDepthFirst
	default:
		return "unknown"
	}
}

func ParseMatchOrder(s string) (HeuMatchOrder, error) {
	switch s {
	case config.MatchOrderArbitrary, "":
		return ARBITRARY, nil
	case config.MatchOrderBottomUp:
		return BOTTOM_UP, nil
	case config.MatchOrderTopDown:
		return TOP_DOWN, nil
	case config.MatchOrderDepthFirst:
		return DEPTH_FIRST, nil
	default:
		return ARBITRARY, errno.NewError(errno.UnknownConfigKind, "match order", s)
	}
}

// RuleInstanceInstruction fires one rule, given directly or by description.
type RuleInstanceInstruction struct {
	description string
	rule        OptRule
}

func NewRuleInstanceInstruction(rule OptRule) *RuleInstanceInstruction {
	return &RuleInstanceInstruction{rule: rule}
}

func NewRuleDescriptionInstruction(description string) *RuleInstanceInstruction {
	return &RuleInstanceInstruction{description: description}
}

func (g *RuleInstanceInstruction) Initialize(clearCache bool) {
	if !clearCache || g.description == "" {
		return
	}

	g.rule = nil
}

func (g *RuleInstanceInstruction) Execute(planner HeuPlanner) {
	planner.ExecuteInstruction(g)
}

func (g *RuleInstanceInstruction) Description() string {
	if g.rule != nil {
		return g.rule.Description()
	}
	return g.description
}

// RuleInstruction fires every registered rule of a category.
type RuleInstruction struct {
	ruleCategory OptRuleCategory
	ruleSet      RuleSet
	version      uint64
}

func NewRuleInstruction(ruleCategory OptRuleCategory) *RuleInstruction {
	return &RuleInstruction{
		ruleCategory: ruleCategory,
		ruleSet:      nil,
	}
}

func (g *RuleInstruction) Initialize(clearCache bool) {
	if !clearCache {
		return
	}

	g.ruleSet = nil
}

func (g *RuleInstruction) Execute(planner HeuPlanner) {
	planner.ExecuteInstruction(g)
}

func (g *RuleInstruction) RuleCategory() OptRuleCategory {
	return g.ruleCategory
}

type RuleCollectionInstruction struct {
	rules RuleSet
}

func NewRuleCollectionInstruction(rules ...OptRule) *RuleCollectionInstruction {
	g := &RuleCollectionInstruction{}
	for _, rule := range rules {
		g.rules.Add(rule)
	}
	return g
}

func (g *RuleCollectionInstruction) Initialize(bool) {}

func (g *RuleCollectionInstruction) Execute(planner HeuPlanner) {
	planner.ExecuteInstruction(g)
}

// ConverterRulesInstruction fires the registered converter rules.
type ConverterRulesInstruction struct {
	guaranteed bool
	ruleSet    RuleSet
	version    uint64
}

func NewConverterRulesInstruction(guaranteed bool) *ConverterRulesInstruction {
	return &ConverterRulesInstruction{guaranteed: guaranteed}
}

func (g *ConverterRulesInstruction) Initialize(clearCache bool) {
	if !clearCache {
		return
	}

	g.ruleSet = nil
}

func (g *ConverterRulesInstruction) Execute(planner HeuPlanner) {
	planner.ExecuteInstruction(g)
}

type BeginGroupInstruction struct {
	endGroup *EndGroupInstruction
}

func (g *BeginGroupInstruction) Initialize(bool) {}

func (g *BeginGroupInstruction) Execute(planner HeuPlanner) {
	planner.ExecuteInstruction(g)
}

// EndGroupInstruction fires the rules collected since the matching begin
// instruction as one rule set. Rules are collected on the first execution
// after the cache was cleared only.
type EndGroupInstruction struct {
	ruleSet    RuleSet
	collecting bool
}

func (g *EndGroupInstruction) Initialize(clearCache bool) {
	if !clearCache {
		return
	}

	g.ruleSet = nil
	g.collecting = true
}

func (g *EndGroupInstruction) Execute(planner HeuPlanner) {
	planner.ExecuteInstruction(g)
}

type MatchOrderInstruction struct {
	order HeuMatchOrder
}

func (g *MatchOrderInstruction) Initialize(bool) {}

func (g *MatchOrderInstruction) Execute(planner HeuPlanner) {
	planner.ExecuteInstruction(g)
}

type MatchLimitInstruction struct {
	limit int
}

func (g *MatchLimitInstruction) Initialize(bool) {}

func (g *MatchLimitInstruction) Execute(planner HeuPlanner) {
	planner.ExecuteInstruction(g)
}

// SubprogramInstruction runs a nested program until it stops changing the plan.
type SubprogramInstruction struct {
	subprogram *HeuProgram
}

func (g *SubprogramInstruction) Initialize(clearCache bool) {
	g.subprogram.Initialize(clearCache)
}

func (g *SubprogramInstruction) Execute(planner HeuPlanner) {
	planner.ExecuteInstruction(g)
}

// HeuProgram is an ordered list of instructions together with the state of
// its execution. A program must not be run by two planners at the same time.
type HeuProgram struct {
	instructions []HeuInstruction

	defaultMatchOrder HeuMatchOrder
	defaultMatchLimit int

	matchLimit int
	matchOrder HeuMatchOrder
	group      *EndGroupInstruction
}

func NewHeuProgram(instructions []HeuInstruction) *HeuProgram {
	program := &HeuProgram{
		instructions:      instructions,
		defaultMatchOrder: ARBITRARY,
		defaultMatchLimit: MatchUntilFixpoint,
	}

	return program
}

// SetDefaults changes the order and limit every execution starts with.
// A limit of zero or less means no limit.
func (p *HeuProgram) SetDefaults(order HeuMatchOrder, limit int) *HeuProgram {
	if limit <= 0 {
		limit = MatchUntilFixpoint
	}
	p.defaultMatchOrder = order
	p.defaultMatchLimit = limit
	return p
}

func (p *HeuProgram) Initialize(clearCache bool) {
	p.matchLimit = p.defaultMatchLimit
	p.matchOrder = p.defaultMatchOrder
	p.group = nil

	for _, instruction := range p.instructions {
		instruction.Initialize(clearCache)
	}
}

func (p *HeuProgram) Instructions() []HeuInstruction {
	return p.instructions
}

func (p *HeuProgram) MatchOrder() HeuMatchOrder {
	return p.matchOrder
}

func (p *HeuProgram) MatchLimit() int {
	return p.matchLimit
}

type HeuProgramBuilder struct {
	instructions []HeuInstruction
	group        *BeginGroupInstruction
}

func NewHeuProgramBuilder() *HeuProgramBuilder {
	return &HeuProgramBuilder{}
}

func (b *HeuProgramBuilder) add(instruction HeuInstruction) *HeuProgramBuilder {
	b.instructions = append(b.instructions, instruction)
	return b
}

func (b *HeuProgramBuilder) AddRuleInstance(rule OptRule) *HeuProgramBuilder {
	return b.add(NewRuleInstanceInstruction(rule))
}

func (b *HeuProgramBuilder) AddRuleByDescription(description string) *HeuProgramBuilder {
	return b.add(NewRuleDescriptionInstruction(description))
}

func (b *HeuProgramBuilder) AddRuleCategory(category OptRuleCategory) *HeuProgramBuilder {
	return b.add(NewRuleInstruction(category))
}

func (b *HeuProgramBuilder) AddRuleCollection(rules ...OptRule) *HeuProgramBuilder {
	return b.add(NewRuleCollectionInstruction(rules...))
}

func (b *HeuProgramBuilder) AddConverters(guaranteed bool) *HeuProgramBuilder {
	return b.add(NewConverterRulesInstruction(guaranteed))
}

func (b *HeuProgramBuilder) AddGroupBegin() *HeuProgramBuilder {
	if b.group != nil {
		panic(errno.NewError(errno.InvalidHeuProgram, "nested rule group"))
	}
	b.group = &BeginGroupInstruction{endGroup: &EndGroupInstruction{collecting: true}}
	return b.add(b.group)
}

func (b *HeuProgramBuilder) AddGroupEnd() *HeuProgramBuilder {
	if b.group == nil {
		panic(errno.NewError(errno.InvalidHeuProgram, "group end without group begin"))
	}
	end := b.group.endGroup
	b.group = nil
	return b.add(end)
}

func (b *HeuProgramBuilder) AddMatchOrder(order HeuMatchOrder) *HeuProgramBuilder {
	return b.add(&MatchOrderInstruction{order: order})
}

// AddMatchLimit limits the number of matches of each following rule
// application, zero or less means no limit.
func (b *HeuProgramBuilder) AddMatchLimit(limit int) *HeuProgramBuilder {
	if limit <= 0 {
		limit = MatchUntilFixpoint
	}
	return b.add(&MatchLimitInstruction{limit: limit})
}

func (b *HeuProgramBuilder) AddSubprogram(program *HeuProgram) *HeuProgramBuilder {
	return b.add(&SubprogramInstruction{subprogram: program})
}

func (b *HeuProgramBuilder) Build() *HeuProgram {
	if b.group != nil {
		panic(errno.NewError(errno.InvalidHeuProgram, "group begin without group end"))
	}
	instructions := b.instructions
	b.instructions = nil
	return NewHeuProgram(instructions)
}

// NewHeuProgramFromConfig translates configured instructions. Rules named by
// description are resolved against the registry of the planner running the
// program.
func NewHeuProgramFromConfig(conf config.Program) (program *HeuProgram, err error) {
	if err = conf.Validate(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			program, err = nil, errno.FromPanic(r)
		}
	}()

	builder := NewHeuProgramBuilder()
	if err = buildInstructions(builder, conf.Instructions); err != nil {
		return nil, err
	}
	return builder.Build(), nil
}

func buildInstructions(builder *HeuProgramBuilder, instructions []config.Instruction) error {
	for _, ins := range instructions {
		switch ins.Kind {
		case config.InstructionRule:
			for _, description := range ins.Rules {
				builder.AddRuleByDescription(description)
			}
		case config.InstructionCategory:
			category, err := ParseOptRuleCategory(ins.Category)
			if err != nil {
				return err
			}
			builder.AddRuleCategory(category)
		case config.InstructionConverters:
			builder.AddConverters(ins.Guaranteed)
		case config.InstructionGroupBegin:
			builder.AddGroupBegin()
		case config.InstructionGroupEnd:
			builder.AddGroupEnd()
		case config.InstructionMatchOrder:
			order, err := ParseMatchOrder(ins.MatchOrder)
			if err != nil {
				return err
			}
			builder.AddMatchOrder(order)
		case config.InstructionMatchLimit:
			builder.AddMatchLimit(ins.MatchLimit)
		case config.InstructionSubprogram:
			sub := NewHeuProgramBuilder()
			if err := buildInstructions(sub, ins.Instructions); err != nil {
				return err
			}
			builder.AddSubprogram(sub.Build())
		default:
			return errno.NewError(errno.UnknownConfigKind, "instruction kind", ins.Kind)
		}
	}
	return nil
}
