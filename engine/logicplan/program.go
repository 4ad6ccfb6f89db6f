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
	"github.com/openGemini/heuopt/engine/optimizer"
)

// StandardRules returns new instances of every rewrite rule of this package.
// Converter rules depend on the conventions in use and are not included.
func StandardRules() []optimizer.OptRule {
	return []optimizer.OptRule{
		NewFilterTrueRemoveRule(""),
		NewFilterReduceExpressionsRule(""),
		NewFilterMergeRule(""),
		NewFilterIntoJoinRule(""),
		NewFilterProjectTransposeRule(""),
		NewFilterAggregateTransposeRule(""),
		NewProjectRemoveRule(""),
	}
}

func NewStandardRegistry(converters ...optimizer.OptRule) *optimizer.RuleRegistry {
	registry := optimizer.NewRuleRegistry()
	registry.AddRules(StandardRules()...)
	registry.AddRules(converters...)
	return registry
}

// StandardProgram simplifies filters, then pushes them down top-down until
// nothing moves, then cleans up projections and filters left behind and
// finally lets the guaranteed converters satisfy the requested conventions.
func StandardProgram() *optimizer.HeuProgram {
	pushdown := optimizer.NewHeuProgramBuilder().
		AddMatchOrder(optimizer.TOP_DOWN).
		AddRuleCategory(optimizer.RULE_PUSHDOWN_FILTER).
		AddRuleCategory(optimizer.RULE_FILTER_SIMPLIFY).
		Build()

	return optimizer.NewHeuProgramBuilder().
		AddRuleCategory(optimizer.RULE_FILTER_SIMPLIFY).
		AddSubprogram(pushdown).
		AddGroupBegin().
		AddRuleCategory(optimizer.RULE_PROJECT_SIMPLIFY).
		AddRuleCategory(optimizer.RULE_FILTER_SIMPLIFY).
		AddGroupEnd().
		AddConverters(true).
		Build()
}
