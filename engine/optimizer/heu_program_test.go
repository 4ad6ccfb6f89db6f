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

	"github.com/openGemini/heuopt/engine/optimizer"
	"github.com/openGemini/heuopt/lib/config"
	"github.com/openGemini/heuopt/lib/errno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuProgramBuilder_Groups(t *testing.T) {
	err := catchErrno(func() {
		optimizer.NewHeuProgramBuilder().AddGroupBegin().AddGroupBegin()
	})
	assert.True(t, errno.Equal(err, errno.InvalidHeuProgram))

	err = catchErrno(func() {
		optimizer.NewHeuProgramBuilder().AddGroupEnd()
	})
	assert.True(t, errno.Equal(err, errno.InvalidHeuProgram))

	err = catchErrno(func() {
		optimizer.NewHeuProgramBuilder().AddGroupBegin().Build()
	})
	assert.True(t, errno.Equal(err, errno.InvalidHeuProgram))

	program := optimizer.NewHeuProgramBuilder().
		AddGroupBegin().
		AddRuleInstance(newRemoveRule("Filter", "true")).
		AddGroupEnd().
		AddGroupBegin().
		AddGroupEnd().
		Build()
	assert.Len(t, program.Instructions(), 5)
}

func TestHeuProgram_Defaults(t *testing.T) {
	program := optimizer.NewHeuProgramBuilder().Build()
	program.Initialize(true)
	assert.Equal(t, optimizer.ARBITRARY, program.MatchOrder())
	assert.Equal(t, optimizer.MatchUntilFixpoint, program.MatchLimit())

	program.SetDefaults(optimizer.BOTTOM_UP, 0)
	program.Initialize(false)
	assert.Equal(t, optimizer.BOTTOM_UP, program.MatchOrder())
	assert.Equal(t, optimizer.MatchUntilFixpoint, program.MatchLimit())

	program.SetDefaults(optimizer.TOP_DOWN, 7).Initialize(true)
	assert.Equal(t, optimizer.TOP_DOWN, program.MatchOrder())
	assert.Equal(t, 7, program.MatchLimit())
}

func TestParseMatchOrder(t *testing.T) {
	for _, order := range matchOrders {
		parsed, err := optimizer.ParseMatchOrder(order.String())
		require.NoError(t, err)
		assert.Equal(t, order, parsed)
	}

	parsed, err := optimizer.ParseMatchOrder("")
	require.NoError(t, err)
	assert.Equal(t, optimizer.ARBITRARY, parsed)

	_, err = optimizer.ParseMatchOrder("sideways")
	assert.True(t, errno.Equal(err, errno.UnknownConfigKind))
	assert.Equal(t, "unknown", optimizer.HeuMatchOrder(42).String())
}

func TestHeuProgram_FromConfig(t *testing.T) {
	conf := config.Program{Instructions: []config.Instruction{
		{Kind: config.InstructionMatchOrder, MatchOrder: config.MatchOrderBottomUp},
		{Kind: config.InstructionCategory, Category: "simplify"},
		{Kind: config.InstructionSubprogram, Instructions: []config.Instruction{
			{Kind: config.InstructionMatchLimit, MatchLimit: 1},
			{Kind: config.InstructionRule, Rules: []string{"BumpScan"}},
		}},
		{Kind: config.InstructionGroupBegin},
		{Kind: config.InstructionRule, Rules: []string{"RenameTop(p->q)", "NoSuchRule"}},
		{Kind: config.InstructionGroupEnd},
		{Kind: config.InstructionConverters, Guaranteed: true},
	}}
	program, err := optimizer.NewHeuProgramFromConfig(conf)
	require.NoError(t, err)
	assert.Len(t, program.Instructions(), 8)

	planner := newPlanner(program,
		newRemoveRule("Filter", "true"),
		newBumpRule("Scan", 2),
		newRenameRule("Top", "p", "q"),
	)
	best, err := planner.Optimize(newNode("Top", "p", newNode("Filter", "true", newNode("Scan", "0"))))
	require.NoError(t, err)
	assert.Equal(t, "Top(q)[Scan(2)]", explain(best))
	assert.Equal(t, 4, planner.Transformations())
}

func TestHeuProgram_FromConfigErrors(t *testing.T) {
	_, err := optimizer.NewHeuProgramFromConfig(config.Program{Instructions: []config.Instruction{
		{Kind: config.InstructionCategory, Category: "everything"},
	}})
	assert.True(t, errno.Equal(err, errno.UnknownConfigKind))

	_, err = optimizer.NewHeuProgramFromConfig(config.Program{Instructions: []config.Instruction{
		{Kind: config.InstructionGroupBegin},
	}})
	assert.True(t, errno.Equal(err, errno.InvalidConfigValue))

	_, err = optimizer.NewHeuProgramFromConfig(config.Program{Instructions: []config.Instruction{
		{Kind: "jump"},
	}})
	assert.True(t, errno.Equal(err, errno.UnknownConfigKind))
}

func TestRuleInstanceInstruction_Description(t *testing.T) {
	rule := newRemoveRule("Filter", "true")
	assert.Equal(t, rule.Description(), optimizer.NewRuleInstanceInstruction(rule).Description())

	byDescription := optimizer.NewRuleDescriptionInstruction(rule.Description())
	assert.Equal(t, rule.Description(), byDescription.Description())
	assert.Equal(t, optimizer.RULE_TEST, optimizer.NewRuleInstruction(optimizer.RULE_TEST).RuleCategory())
}
