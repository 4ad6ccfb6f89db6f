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
	"time"

	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/lib/config"
	"github.com/openGemini/heuopt/lib/errno"
	"github.com/openGemini/heuopt/lib/logger"
	"go.uber.org/zap"
)

type HeuPlanner interface {
	hybridqp.Planner
	ExecuteInstruction(HeuInstruction)
	Vertex(node hybridqp.QueryNode) (*HeuVertex, bool)
	RowTypeChecker() hybridqp.RowTypeChecker
}

// heuSession holds the counters of one planner.
type heuSession struct {
	nTransformation       int
	nTransformationLastGC int
	graphSizeLastGC       int
}

func (s *heuSession) needCollect() bool {
	return s.nTransformation-s.nTransformationLastGC > s.graphSizeLastGC
}

type HeuPlannerImpl struct {
	mainProgram    *HeuProgram
	currentProgram *HeuProgram
	registry       *RuleRegistry
	dag            *HeuDag
	session        heuSession

	listener            HeuListener
	costEstimator       hybridqp.CostEstimator
	rowTypeChecker      hybridqp.RowTypeChecker
	requestedRootTraits hybridqp.TraitSet
	checkCycle          bool

	logger  *logger.Logger
	aborted error
}

func NewHeuPlannerImpl(program *HeuProgram, registry *RuleRegistry) *HeuPlannerImpl {
	if registry == nil {
		registry = NewRuleRegistry()
	}
	planner := &HeuPlannerImpl{
		mainProgram:    program,
		currentProgram: nil,
		registry:       registry,
		dag:            NewHeuDag(),
		listener:       NopListener{},
		costEstimator:  DefaultCostEstimator{},
		rowTypeChecker: hybridqp.TypeEquivalenceChecker{},
		logger:         logger.NewLogger(errno.ModuleOptimizer),
	}

	return planner
}

// NewHeuPlannerFromConfig creates a planner running program with the
// configured default match order and limit.
func NewHeuPlannerFromConfig(conf config.Planner, program *HeuProgram, registry *RuleRegistry) (*HeuPlannerImpl, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	order, err := ParseMatchOrder(conf.MatchOrder)
	if err != nil {
		return nil, err
	}
	program.SetDefaults(order, conf.MatchLimit)

	planner := NewHeuPlannerImpl(program, registry)
	planner.SetCheckCycle(conf.CheckCycle)
	return planner, nil
}

func (p *HeuPlannerImpl) SetListener(listener HeuListener) {
	if listener == nil {
		listener = NopListener{}
	}
	p.listener = listener
	p.dag.SetListener(listener)
}

func (p *HeuPlannerImpl) SetCostEstimator(estimator hybridqp.CostEstimator) {
	p.costEstimator = estimator
}

func (p *HeuPlannerImpl) SetRowTypeChecker(checker hybridqp.RowTypeChecker) {
	p.rowTypeChecker = checker
}

// SetRequestedRootTraits lets converters producing one of traits fire on the root.
func (p *HeuPlannerImpl) SetRequestedRootTraits(traits hybridqp.TraitSet) {
	p.requestedRootTraits = traits
}

// SetCheckCycle verifies the graph after every transformation, for diagnostics only.
func (p *HeuPlannerImpl) SetCheckCycle(check bool) {
	p.checkCycle = check
}

func (p *HeuPlannerImpl) SetLogger(lg *logger.Logger) {
	p.logger = lg
}

func (p *HeuPlannerImpl) RowTypeChecker() hybridqp.RowTypeChecker {
	return p.rowTypeChecker
}

func (p *HeuPlannerImpl) Registry() *RuleRegistry {
	return p.registry
}

func (p *HeuPlannerImpl) Dag() *HeuDag {
	return p.dag
}

func (p *HeuPlannerImpl) Root() *HeuVertex {
	return p.dag.Root()
}

func (p *HeuPlannerImpl) Vertex(node hybridqp.QueryNode) (*HeuVertex, bool) {
	if vertex, ok := node.(*HeuVertex); ok {
		return vertex, p.dag.Contains(vertex)
	}
	return p.dag.GetVertexByDigest(node.Digest())
}

func (p *HeuPlannerImpl) AddRule(rule OptRule) bool {
	return p.registry.AddRule(rule)
}

func (p *HeuPlannerImpl) SetRoot(root hybridqp.QueryNode) {
	vertex, _ := p.dag.Insert(root)
	p.dag.SetRoot(vertex)
}

func (p *HeuPlannerImpl) Transformations() int {
	return p.session.nTransformation
}

// Optimize is SetRoot followed by FindBestExp.
func (p *HeuPlannerImpl) Optimize(root hybridqp.QueryNode) (hybridqp.QueryNode, error) {
	p.SetRoot(root)
	return p.FindBestExp()
}

// FindBestExp runs the main program and returns the rewritten plan. An
// internal error aborts the run, the planner is unusable afterwards.
func (p *HeuPlannerImpl) FindBestExp() (best hybridqp.QueryNode, err error) {
	if p.aborted != nil {
		return nil, errno.NewError(errno.PlannerAborted, p.aborted)
	}
	if p.dag.Root() == nil {
		return nil, errno.NewError(errno.PlannerRootNotSet)
	}

	start := time.Now()
	planningRunsTotal.Inc()
	defer func() {
		if r := recover(); r != nil {
			e := errno.FromPanic(r)
			p.aborted = e
			plannerAbortedTotal.Inc()
			p.logger.Error("planning aborted", zap.Error(e), zap.Int("transformations", p.session.nTransformation))
			best, err = nil, e
		}
		planningDuration.Observe(time.Since(start).Seconds())
	}()

	p.mainProgram.Initialize(true)
	p.executeProgram(p.mainProgram)
	p.collectGarbage()

	best = p.buildFinalPlan(p.dag.Root(), make(map[*HeuVertex]hybridqp.QueryNode))
	p.logger.Debug("planning finished",
		zap.Int("transformations", p.session.nTransformation),
		zap.Int("vertices", p.dag.VertexSize()))
	return best, nil
}

// buildFinalPlan replaces every vertex by a copy of its current node. Shared
// vertices stay shared in the result.
func (p *HeuPlannerImpl) buildFinalPlan(vertex *HeuVertex, built map[*HeuVertex]hybridqp.QueryNode) hybridqp.QueryNode {
	if node, ok := built[vertex]; ok {
		return node
	}

	node := vertex.Node()
	children := node.Children()
	if len(children) > 0 {
		inputs := make([]hybridqp.QueryNode, 0, len(children))
		for _, child := range children {
			if v, ok := child.(*HeuVertex); ok {
				inputs = append(inputs, p.buildFinalPlan(v, built))
			} else {
				inputs = append(inputs, child)
			}
		}
		if !hybridqp.EqualNodes(children, inputs) {
			node = p.dag.cloneNodeWithChildren(node, inputs)
		}
	}

	p.listener.NodeChosen(node)
	built[vertex] = node
	return node
}

func (p *HeuPlannerImpl) ExecuteInstruction(instruction HeuInstruction) {
	switch t := instruction.(type) {
	case *RuleInstanceInstruction:
		p.executeRuleInstance(t)
	case *RuleInstruction:
		p.executeRuleInstruction(t)
	case *RuleCollectionInstruction:
		p.executeRuleCollection(t)
	case *ConverterRulesInstruction:
		p.executeConverterRules(t)
	case *BeginGroupInstruction:
		p.executeBeginGroup(t)
	case *EndGroupInstruction:
		p.executeEndGroup(t)
	case *MatchOrderInstruction:
		p.currentProgram.matchOrder = t.order
	case *MatchLimitInstruction:
		p.currentProgram.matchLimit = t.limit
	case *SubprogramInstruction:
		p.executeSubprogram(t)
	default:
		panic(errno.NewError(errno.UnknownHeuInstruction, t))
	}
}

// skippingGroup is true inside a group whose rules were collected already.
func (p *HeuPlannerImpl) skippingGroup() bool {
	if group := p.currentProgram.group; group != nil {
		return !group.collecting
	}
	return false
}

func (p *HeuPlannerImpl) executeRuleInstance(instruction *RuleInstanceInstruction) {
	if p.skippingGroup() {
		return
	}

	if instruction.rule == nil {
		rule, ok := p.registry.Rule(instruction.description)
		if !ok {
			p.logger.Warn("rule is not registered", zap.String("rule", instruction.description))
			return
		}
		instruction.rule = rule
	}

	p.applyRules(RuleSet{instruction.rule}, true)
}

func (p *HeuPlannerImpl) executeRuleInstruction(instruction *RuleInstruction) {
	if p.skippingGroup() {
		return
	}

	if version := p.registry.Version(); instruction.ruleSet == nil || instruction.version != version {
		instruction.ruleSet = RuleSet(p.registry.RulesOfCategory(instruction.RuleCategory()))
		instruction.version = version
	}

	p.applyRules(instruction.ruleSet, true)
}

func (p *HeuPlannerImpl) executeRuleCollection(instruction *RuleCollectionInstruction) {
	if p.skippingGroup() {
		return
	}

	p.applyRules(instruction.rules, true)
}

func (p *HeuPlannerImpl) executeConverterRules(instruction *ConverterRulesInstruction) {
	if p.skippingGroup() {
		return
	}

	if version := p.registry.Version(); instruction.ruleSet == nil || instruction.version != version {
		instruction.ruleSet = RuleSet(p.registry.Converters(instruction.guaranteed))
		instruction.version = version
	}

	p.applyRules(instruction.ruleSet, instruction.guaranteed)
}

func (p *HeuPlannerImpl) executeBeginGroup(instruction *BeginGroupInstruction) {
	p.currentProgram.group = instruction.endGroup
}

func (p *HeuPlannerImpl) executeEndGroup(instruction *EndGroupInstruction) {
	p.currentProgram.group = nil
	instruction.collecting = false
	p.applyRules(instruction.ruleSet, true)
}

// executeSubprogram repeats the subprogram until an execution leaves the plan
// unchanged. The run state of the subprogram is reset before the first
// execution only.
func (p *HeuPlannerImpl) executeSubprogram(instruction *SubprogramInstruction) {
	instruction.subprogram.Initialize(false)
	for {
		before := p.session.nTransformation
		p.executeProgram(instruction.subprogram)
		if p.session.nTransformation == before {
			return
		}
	}
}

func (p *HeuPlannerImpl) executeProgram(program *HeuProgram) {
	savedProgram := p.currentProgram
	p.currentProgram = program

	for _, instruction := range program.instructions {
		instruction.Execute(p)
		if p.session.needCollect() {
			p.collectGarbage()
		}
	}

	p.currentProgram = savedProgram
}

func (p *HeuPlannerImpl) graphIterator(start *HeuVertex) *GraphIterator {
	order := p.currentProgram.matchOrder
	if order == TOP_DOWN || order == BOTTOM_UP {
		// topological orders need a graph without garbage
		p.collectGarbage()
	}
	return p.dag.GetGraphIterator(start, order)
}

func (p *HeuPlannerImpl) applyRules(ruleSet RuleSet, forceConversions bool) {
	if group := p.currentProgram.group; group != nil {
		if group.collecting {
			group.ruleSet.AddAll(ruleSet)
		}
		return
	}
	if len(ruleSet) == 0 {
		return
	}

	matchOrder := p.currentProgram.matchOrder
	matchLimit := p.currentProgram.matchLimit
	nMatches := 0
	var fixedPoint bool
	for {
		iter := p.graphIterator(p.dag.Root())
		fixedPoint = true
		for iter.HasNext() {
			vertex := iter.Next()
			for _, rule := range ruleSet {
				newVertex := p.applyRule(rule, vertex, forceConversions)
				if newVertex == nil || newVertex == vertex {
					continue
				}
				nMatches++
				if nMatches >= matchLimit {
					return
				}
				if matchOrder == ARBITRARY {
					iter = p.graphIterator(p.dag.Root())
				} else if matchOrder == DEPTH_FIRST {
					iter = p.graphIterator(newVertex)
					nMatches = p.depthFirstApply(iter, ruleSet, forceConversions, nMatches)
					if nMatches >= matchLimit {
						return
					}
					fixedPoint = false
				} else {
					// the topological walk goes on, vertices swept meanwhile are skipped
					fixedPoint = false
				}
				break
			}
		}
		if fixedPoint {
			return
		}
	}
}

func (p *HeuPlannerImpl) depthFirstApply(iter *GraphIterator, ruleSet RuleSet, forceConversions bool, nMatches int) int {
	for iter.HasNext() {
		vertex := iter.Next()
		for _, rule := range ruleSet {
			newVertex := p.applyRule(rule, vertex, forceConversions)
			if newVertex == nil || newVertex == vertex {
				continue
			}
			nMatches++
			if nMatches >= p.currentProgram.matchLimit {
				return nMatches
			}
			depthIter := p.graphIterator(newVertex)
			nMatches = p.depthFirstApply(depthIter, ruleSet, forceConversions, nMatches)
			break
		}
	}
	return nMatches
}

func (p *HeuPlannerImpl) applyRule(rule OptRule, vertex *HeuVertex, forceConversions bool) *HeuVertex {
	if !p.dag.Contains(vertex) {
		return nil
	}

	var parentTrait hybridqp.Trait
	if converter, ok := rule.(ConverterRule); ok && (converter.Guaranteed() || !forceConversions) {
		if !p.doesConverterApply(converter, vertex) {
			return nil
		}
		parentTrait = converter.OutTrait()
	}

	// prune advance for type unmatched
	operand := rule.GetOperand()
	if !operand.Matches(vertex.Node()) {
		return nil
	}

	bindings, match := p.matchOperands(operand, vertex.Node(), nil)
	if !match {
		return nil
	}

	call := NewOptRuleCall(p, rule, bindings)
	if !rule.Matches(call) {
		return nil
	}

	rule.OnMatch(call)

	if len(call.GetResult()) > 0 {
		return p.applyTransformationResults(vertex, call, parentTrait)
	}

	return nil
}

// doesConverterApply reports whether some parent of vertex, or the caller
// for the root, wants the output trait of the converter.
func (p *HeuPlannerImpl) doesConverterApply(converter ConverterRule, vertex *HeuVertex) bool {
	outTrait := converter.OutTrait()
	for _, parent := range p.dag.Parents(vertex) {
		if isConverterOf(parent.Node(), outTrait) {
			continue
		}
		if parent.Traits().Contains(outTrait) {
			return true
		}
	}
	return vertex == p.dag.Root() && p.requestedRootTraits.Contains(outTrait)
}

func isConverterOf(node hybridqp.QueryNode, trait hybridqp.Trait) bool {
	converter, ok := node.(hybridqp.Converter)
	return ok && converter.ConvertedTraitDef().Name() == trait.TraitDef().Name()
}

func (p *HeuPlannerImpl) applyTransformationResults(vertex *HeuVertex, call *OptRuleCall, parentTrait hybridqp.Trait) *HeuVertex {
	var bestNode hybridqp.QueryNode
	if len(call.GetResult()) == 1 {
		bestNode = call.GetResult()[0]
	} else {
		bestCost := hybridqp.InfiniteCost
		for _, result := range call.GetResult() {
			cost := p.costEstimator.SelfCost(result)
			if bestNode == nil || cost.IsLt(bestCost) {
				bestNode = result
				bestCost = cost
			}
		}
	}

	// only the parents present before the insertion are redirected
	allParents := p.dag.Parents(vertex)
	parents := make([]*HeuVertex, 0, len(allParents))
	for _, parent := range allParents {
		if parentTrait != nil {
			if isConverterOf(parent.Node(), parentTrait) || !parent.Traits().Contains(parentTrait) {
				continue
			}
		}
		parents = append(parents, parent)
	}

	newVertex, _ := p.dag.Insert(bestNode)
	if newVertex == vertex || HeuVertexs(allParents).IndexOf(newVertex) != -1 {
		// the result is the vertex itself or one of its parents, contracting would create a loop
		return vertex
	}

	p.session.nTransformation++
	transformationsTotal.WithLabelValues(call.Rule().Description()).Inc()
	p.dag.Contract(newVertex, vertex, parents)

	if p.logger.IsDebugLevel() {
		p.logger.Debug("rule fired",
			zap.String("rule", call.Rule().Description()),
			zap.Uint64("vertex", vertex.ID()),
			zap.Uint64("new_vertex", newVertex.ID()))
	}
	p.listener.NodeEquivalenceFound(call.Rule(), newVertex, bestNode)

	if p.checkCycle {
		p.dag.AssertNoCycle()
	}
	if p.session.needCollect() {
		p.collectGarbage()
	}

	return newVertex
}

// matchOperands binds node and, following the operand, its inputs. On
// failure the bindings are returned as they were passed in.
func (p *HeuPlannerImpl) matchOperands(operand OptRuleOperand, node hybridqp.QueryNode,
	bindings []hybridqp.QueryNode) ([]hybridqp.QueryNode, bool) {

	if !operand.Matches(node) {
		return bindings, false
	}

	mark := len(bindings)
	bindings = append(bindings, node)
	children := node.Children()

	switch operand.Policy() {
	case ANY:
		return bindings, true
	case LEAF:
		if len(children) > 0 {
			return bindings[:mark], false
		}
		return bindings, true
	case UNORDERED:
		used := make([]bool, len(children))
		for _, operandChild := range operand.Children() {
			match := false
			for i, child := range children {
				vertex, ok := child.(*HeuVertex)
				if used[i] || !ok {
					continue
				}
				if bindings, match = p.matchOperands(operandChild, vertex.Node(), bindings); match {
					used[i] = true
					break
				}
			}
			if !match {
				return bindings[:mark], false
			}
		}
		return bindings, true
	default:
		operandChildren := operand.Children()
		if len(children) != len(operandChildren) {
			return bindings[:mark], false
		}

		for i, operandChild := range operandChildren {
			vertex, ok := children[i].(*HeuVertex)
			if !ok {
				return bindings[:mark], false
			}
			var match bool
			if bindings, match = p.matchOperands(operandChild, vertex.Node(), bindings); !match {
				return bindings[:mark], false
			}
		}

		return bindings, true
	}
}

func (p *HeuPlannerImpl) collectGarbage() {
	swept, collected := p.dag.CollectGarbage(p.dag.Root())
	p.session.nTransformationLastGC = p.session.nTransformation
	p.session.graphSizeLastGC = p.dag.VertexSize()
	if !collected {
		return
	}

	gcRunsTotal.Inc()
	gcSweptVerticesTotal.Add(float64(swept))
	p.logger.Debug("plan graph collected", zap.Int("swept", swept), zap.Int("vertices", p.dag.VertexSize()))
}
