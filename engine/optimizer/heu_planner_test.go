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
	"testing"

	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/engine/optimizer"
	"github.com/openGemini/heuopt/lib/config"
	"github.com/openGemini/heuopt/lib/errno"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matchOrders = []optimizer.HeuMatchOrder{
	optimizer.ARBITRARY,
	optimizer.DEPTH_FIRST,
	optimizer.TOP_DOWN,
	optimizer.BOTTOM_UP,
}

func TestHeuPlanner_FilterTrueRemoved(t *testing.T) {
	rule := newRemoveRule("Filter", "true")
	program := optimizer.NewHeuProgramBuilder().AddRuleInstance(rule).Build()
	planner := newPlanner(program, rule)

	best, err := planner.Optimize(newNode("Filter", "true", newNode("Scan", "T")))
	require.NoError(t, err)
	assert.Equal(t, "Scan(T)", explain(best))
	assert.Equal(t, 1, planner.Transformations())
	assert.Equal(t, 1, planner.Dag().VertexSize())
	assert.NoError(t, catchErrno(planner.Dag().AssertNoCycle))
}

func TestHeuPlanner_MatchOrders(t *testing.T) {
	for _, order := range matchOrders {
		t.Run(order.String(), func(t *testing.T) {
			rule := newRemoveRule("Filter", "true")
			program := optimizer.NewHeuProgramBuilder().
				AddMatchOrder(order).
				AddRuleInstance(rule).
				Build()
			planner := newPlanner(program, rule)
			planner.SetCheckCycle(true)

			root := newNode("Filter", "true",
				newNode("Filter", "true",
					newNode("Filter", "x", newNode("Scan", "T"))))
			best, err := planner.Optimize(root)
			require.NoError(t, err)
			assert.Equal(t, "Filter(x)[Scan(T)]", explain(best))
			assert.Equal(t, 2, planner.Transformations())
			assert.Equal(t, 2, planner.Dag().VertexSize())
		})
	}
}

func TestHeuPlanner_Fixpoint(t *testing.T) {
	for _, order := range matchOrders {
		t.Run(order.String(), func(t *testing.T) {
			rule := newTransposeRule("Filter", "Project")
			program := optimizer.NewHeuProgramBuilder().
				AddMatchOrder(order).
				AddRuleCategory(optimizer.RULE_PUSHDOWN_FILTER).
				Build()
			planner := newPlanner(program, rule)

			root := newNode("Filter", "f",
				newNode("Project", "p1",
					newNode("Project", "p2", newNode("Scan", "s"))))
			best, err := planner.Optimize(root)
			require.NoError(t, err)
			assert.Equal(t, "Project(p1)[Project(p2)[Filter(f)[Scan(s)]]]", explain(best))
			assert.Equal(t, 2, planner.Transformations())

			// a second run finds nothing left to do
			again := newPlanner(optimizer.NewHeuProgramBuilder().AddRuleInstance(rule).Build(), rule)
			_, err = again.Optimize(best)
			require.NoError(t, err)
			assert.Equal(t, 0, again.Transformations())
		})
	}
}

func TestHeuPlanner_MatchLimit(t *testing.T) {
	rule := newBumpRule("Scan", 100)
	program := optimizer.NewHeuProgramBuilder().
		AddMatchLimit(3).
		AddRuleInstance(rule).
		Build()
	planner := newPlanner(program, rule)

	best, err := planner.Optimize(newNode("Scan", "0"))
	require.NoError(t, err)
	assert.Equal(t, "Scan(3)", explain(best))
	assert.Equal(t, 3, planner.Transformations())
}

func TestHeuPlanner_MatchLimitAcrossRules(t *testing.T) {
	bumpScan := newBumpRule("Scan", 100)
	bumpLeaf := newBumpRule("Leaf", 100)
	program := optimizer.NewHeuProgramBuilder().
		AddMatchLimit(5).
		AddRuleCollection(bumpScan, bumpLeaf).
		Build()
	planner := newPlanner(program, bumpScan, bumpLeaf)

	_, err := planner.Optimize(newNode("Join", "j", newNode("Scan", "0"), newNode("Leaf", "0")))
	require.NoError(t, err)
	assert.Equal(t, 5, planner.Transformations())
}

func TestHeuPlanner_MatchLimitFromConfig(t *testing.T) {
	rule := newBumpRule("Scan", 100)
	program := optimizer.NewHeuProgramBuilder().AddRuleInstance(rule).Build()
	registry := optimizer.NewRuleRegistry()
	registry.AddRule(rule)

	conf := config.NewPlanner()
	conf.MatchOrder = config.MatchOrderTopDown
	conf.MatchLimit = 2
	planner, err := optimizer.NewHeuPlannerFromConfig(conf, program, registry)
	require.NoError(t, err)

	best, err := planner.Optimize(newNode("Scan", "0"))
	require.NoError(t, err)
	assert.Equal(t, "Scan(2)", explain(best))

	conf.MatchOrder = "sideways"
	_, err = optimizer.NewHeuPlannerFromConfig(conf, program, registry)
	assert.True(t, errno.Equal(err, errno.UnknownConfigKind))
}

func TestHeuPlanner_ConverterGuard(t *testing.T) {
	a2b := newConventionRule(convA, convB, true)
	b2a := newConventionRule(convB, convA, true)
	program := optimizer.NewHeuProgramBuilder().AddConverters(true).Build()
	planner := newPlanner(program, a2b, b2a)

	best, err := planner.Optimize(newNode("Scan", "t").in(convA))
	require.NoError(t, err)
	assert.Equal(t, "Scan(t)", explain(best))
	assert.Equal(t, 0, planner.Transformations())
}

func TestHeuPlanner_ConverterForParent(t *testing.T) {
	a2b := newConventionRule(convA, convB, true)
	b2a := newConventionRule(convB, convA, true)
	program := optimizer.NewHeuProgramBuilder().AddConverters(true).Build()
	planner := newPlanner(program, a2b, b2a)

	root := newNode("Filter", "c", newNode("Scan", "t").in(convA)).in(convB)
	best, err := planner.Optimize(root)
	require.NoError(t, err)
	assert.Equal(t, "Filter(c)[Converter(B)[Scan(t)]]", explain(best))
	assert.Equal(t, 1, planner.Transformations())
	assert.True(t, best.Children()[0].Traits().Contains(convB))
	_, ok := best.Children()[0].(hybridqp.Converter)
	assert.True(t, ok)
}

func TestHeuPlanner_ConverterForRequestedRootTraits(t *testing.T) {
	a2b := newConventionRule(convA, convB, true)
	b2a := newConventionRule(convB, convA, true)
	program := optimizer.NewHeuProgramBuilder().AddConverters(true).Build()
	planner := newPlanner(program, a2b, b2a)
	planner.SetRequestedRootTraits(hybridqp.NewTraitSet(convB))

	best, err := planner.Optimize(newNode("Scan", "t").in(convA))
	require.NoError(t, err)
	assert.Equal(t, "Converter(B)[Scan(t)]", explain(best))
	assert.Equal(t, 1, planner.Transformations())
}

func TestHeuPlanner_ConverterNotGuaranteed(t *testing.T) {
	a2b := newConventionRule(convA, convB, false)

	// fired as a converter instruction the guard applies
	planner := newPlanner(optimizer.NewHeuProgramBuilder().AddConverters(false).Build(), a2b)
	best, err := planner.Optimize(newNode("Scan", "t").in(convA))
	require.NoError(t, err)
	assert.Equal(t, "Scan(t)", explain(best))

	// fired as a plain rule it converts once and stops
	planner = newPlanner(optimizer.NewHeuProgramBuilder().AddRuleInstance(a2b).Build(), a2b)
	best, err = planner.Optimize(newNode("Scan", "t").in(convA))
	require.NoError(t, err)
	assert.Equal(t, "Converter(B)[Scan(t)]", explain(best))
	assert.Equal(t, 1, planner.Transformations())
}

func TestHeuPlanner_GroupBatching(t *testing.T) {
	newRoot := func() hybridqp.QueryNode {
		return newNode("Top", "p", newNode("Mid", "m", newNode("Leaf", "x")))
	}
	r1 := newRenameRule("Leaf", "x", "y")
	r2 := newRenameRule("Top", "p", "q")

	grouped := optimizer.NewHeuProgramBuilder().
		AddGroupBegin().
		AddRuleInstance(r1).
		AddRuleInstance(r2).
		AddGroupEnd().
		Build()
	planner := newPlanner(grouped, r1, r2)
	listener := &recordingListener{}
	planner.SetListener(listener)
	best, err := planner.Optimize(newRoot())
	require.NoError(t, err)
	assert.Equal(t, "Top(q)[Mid(m)[Leaf(y)]]", explain(best))
	assert.Equal(t, 2, planner.Transformations())
	assert.Equal(t, []string{r2.Description(), r1.Description()}, listener.fired)

	sequential := optimizer.NewHeuProgramBuilder().
		AddRuleInstance(r1).
		AddRuleInstance(r2).
		Build()
	planner = newPlanner(sequential, r1, r2)
	listener = &recordingListener{}
	planner.SetListener(listener)
	best, err = planner.Optimize(newRoot())
	require.NoError(t, err)
	assert.Equal(t, "Top(q)[Mid(m)[Leaf(y)]]", explain(best))
	assert.Equal(t, []string{r1.Description(), r2.Description()}, listener.fired)
}

func TestHeuPlanner_Subprogram(t *testing.T) {
	rule := newBumpRule("Scan", 4)
	sub := optimizer.NewHeuProgramBuilder().
		AddMatchLimit(1).
		AddRuleInstance(rule).
		Build()
	program := optimizer.NewHeuProgramBuilder().AddSubprogram(sub).Build()
	planner := newPlanner(program, rule)
	listener := &recordingListener{}
	planner.SetListener(listener)

	best, err := planner.Optimize(newNode("Scan", "0"))
	require.NoError(t, err)
	assert.Equal(t, "Scan(4)", explain(best))
	assert.Equal(t, 4, planner.Transformations())
	assert.Len(t, listener.fired, 4)
}

func TestHeuPlanner_SubprogramWithGroup(t *testing.T) {
	bump := newBumpRule("Scan", 3)
	rename := newRenameRule("Top", "p", "q")
	sub := optimizer.NewHeuProgramBuilder().
		AddGroupBegin().
		AddRuleInstance(bump).
		AddRuleByDescription(rename.Description()).
		AddGroupEnd().
		Build()
	program := optimizer.NewHeuProgramBuilder().AddSubprogram(sub).Build()
	planner := newPlanner(program, bump, rename)

	best, err := planner.Optimize(newNode("Top", "p", newNode("Scan", "0")))
	require.NoError(t, err)
	assert.Equal(t, "Top(q)[Scan(3)]", explain(best))
	assert.Equal(t, 4, planner.Transformations())
}

func TestHeuPlanner_MultipleResults(t *testing.T) {
	rule := newAlternativesRule("Scan", "origin",
		newSized("a", 50),
		newSized("b", 10),
		newSized("c", 10),
	)
	program := optimizer.NewHeuProgramBuilder().AddRuleInstance(rule).Build()
	planner := newPlanner(program, rule)

	best, err := planner.Optimize(newNode("Filter", "f", newNode("Scan", "origin")))
	require.NoError(t, err)
	assert.Equal(t, "Filter(f)[Scan(b/10)]", explain(best))
	assert.Equal(t, 1, planner.Transformations())
}

func TestHeuPlanner_RuleByDescription(t *testing.T) {
	rule := newRemoveRule("Filter", "true")
	program := optimizer.NewHeuProgramBuilder().
		AddRuleByDescription("NoSuchRule").
		AddRuleByDescription(rule.Description()).
		Build()
	planner := newPlanner(program, rule)

	best, err := planner.Optimize(newNode("Filter", "true", newNode("Scan", "T")))
	require.NoError(t, err)
	assert.Equal(t, "Scan(T)", explain(best))
}

func TestHeuPlanner_RuleCategory(t *testing.T) {
	remove := newRemoveRule("Filter", "true")
	rename := newRenameRule("Scan", "T", "U")
	program := optimizer.NewHeuProgramBuilder().AddRuleCategory(optimizer.RULE_FILTER_SIMPLIFY).Build()
	planner := newPlanner(program, remove, rename)

	best, err := planner.Optimize(newNode("Filter", "true", newNode("Scan", "T")))
	require.NoError(t, err)
	assert.Equal(t, "Scan(T)", explain(best))
	assert.Equal(t, 1, planner.Transformations())
}

func TestHeuPlanner_NodeChosen(t *testing.T) {
	planner := newPlanner(optimizer.NewHeuProgramBuilder().Build())
	listener := &recordingListener{}
	planner.SetListener(listener)

	scan := newNode("Scan", "s")
	root := newNode("Join", "j", scan, newNode("Filter", "f", scan))
	best, err := planner.Optimize(root)
	require.NoError(t, err)
	assert.Equal(t, "Join(j)[Scan(s),Filter(f)[Scan(s)]]", explain(best))
	assert.Len(t, listener.chosen, 3)
	assert.Same(t, best.Children()[0], best.Children()[1].Children()[0])
	assert.NotSame(t, root, best)
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestHeuPlanner_RowTypeMismatchAborts(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, optimizer.RegisterMetrics(reg))
	require.NoError(t, optimizer.RegisterMetrics(reg))
	aborted := metricValue(t, reg, "heuopt_planner_aborted_total")

	rule := newRetypeRule()
	planner := newPlanner(optimizer.NewHeuProgramBuilder().AddRuleInstance(rule).Build(), rule)

	best, err := planner.Optimize(newNode("Scan", "t"))
	assert.Nil(t, best)
	assert.True(t, errno.Equal(err, errno.RuleResultRowTypeMismatch))
	assert.Equal(t, aborted+1, metricValue(t, reg, "heuopt_planner_aborted_total"))

	_, err = planner.FindBestExp()
	assert.True(t, errno.Equal(err, errno.PlannerAborted))
}

func TestHeuPlanner_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, optimizer.RegisterMetrics(reg))
	runs := metricValue(t, reg, "heuopt_planner_runs_total")
	transformations := metricValue(t, reg, "heuopt_planner_transformations_total")
	swept := metricValue(t, reg, "heuopt_planner_gc_swept_vertices_total")

	rule := newRemoveRule("Filter", "true")
	planner := newPlanner(optimizer.NewHeuProgramBuilder().AddRuleInstance(rule).Build(), rule)
	_, err := planner.Optimize(newNode("Filter", "true", newNode("Scan", "T")))
	require.NoError(t, err)

	assert.Equal(t, runs+1, metricValue(t, reg, "heuopt_planner_runs_total"))
	assert.Equal(t, transformations+1, metricValue(t, reg, "heuopt_planner_transformations_total"))
	assert.Equal(t, swept+1, metricValue(t, reg, "heuopt_planner_gc_swept_vertices_total"))

	count, err := testutil.GatherAndCount(reg, "heuopt_planner_duration_seconds", "heuopt_planner_gc_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// eventListener records rule firings and discarded nodes in arrival order.
type eventListener struct {
	optimizer.NopListener
	events []string
}

func (l *eventListener) NodeEquivalenceFound(rule optimizer.OptRule, _ *optimizer.HeuVertex, node hybridqp.QueryNode) {
	if rule != nil {
		l.events = append(l.events, "fired "+node.String())
	}
}

func (l *eventListener) NodeDiscarded(node hybridqp.QueryNode) {
	l.events = append(l.events, "discarded "+node.String())
}

func TestHeuPlanner_CollectsGarbageDuringRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, optimizer.RegisterMetrics(reg))
	runs := metricValue(t, reg, "heuopt_planner_gc_runs_total")
	swept := metricValue(t, reg, "heuopt_planner_gc_swept_vertices_total")

	rule := newBumpRule("Scan", 10)
	planner := newPlanner(optimizer.NewHeuProgramBuilder().AddRuleInstance(rule).Build(), rule)
	listener := &eventListener{}
	planner.SetListener(listener)

	best, err := planner.Optimize(newNode("Scan", "0"))
	require.NoError(t, err)
	assert.Equal(t, "Scan(10)", explain(best))
	assert.Equal(t, 10, planner.Transformations())
	assert.Equal(t, 1, planner.Dag().VertexSize())

	// collections run every time the transformations since the last one
	// exceed the graph size then, before the final collection
	assert.Equal(t, runs+6, metricValue(t, reg, "heuopt_planner_gc_runs_total"))
	assert.Equal(t, swept+10, metricValue(t, reg, "heuopt_planner_gc_swept_vertices_total"))
	require.GreaterOrEqual(t, len(listener.events), 4)
	assert.Equal(t, []string{"fired Scan(1)", "discarded Scan(0)", "fired Scan(2)", "fired Scan(3)"}, listener.events[:4])
}

func TestHeuPlanner_RootNotSet(t *testing.T) {
	planner := newPlanner(optimizer.NewHeuProgramBuilder().Build())
	_, err := planner.FindBestExp()
	assert.True(t, errno.Equal(err, errno.PlannerRootNotSet))
}

func TestHeuPlanner_Vertex(t *testing.T) {
	planner := newPlanner(optimizer.NewHeuProgramBuilder().Build())
	planner.SetRoot(newNode("Scan", "t"))

	vertex, ok := planner.Vertex(newNode("Scan", "t"))
	require.True(t, ok)
	assert.Same(t, planner.Root(), vertex)
	vertex, ok = planner.Vertex(vertex)
	assert.True(t, ok)
	assert.Same(t, planner.Root(), vertex)
	_, ok = planner.Vertex(newNode("Scan", "u"))
	assert.False(t, ok)
}
