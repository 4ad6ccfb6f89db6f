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
	"github.com/openGemini/heuopt/engine/hybridqp"
)

// ConverterRule changes the traits of a node and nothing else. A guaranteed
// converter can always fire, the planner only lets it fire where a parent or
// the requested root traits want its output.
type ConverterRule interface {
	OptRule
	InTrait() hybridqp.Trait
	OutTrait() hybridqp.Trait
	Guaranteed() bool
}

type ConverterRuleBase struct {
	OptRuleBase
	inTrait    hybridqp.Trait
	outTrait   hybridqp.Trait
	guaranteed bool
}

// InitializeConverter matches nodes of planType in trait in, any planType if empty.
func (r *ConverterRuleBase) InitializeConverter(rule ConverterRule, planType string, in hybridqp.Trait, out hybridqp.Trait, guaranteed bool, description string) {
	r.inTrait = in
	r.outTrait = out
	r.guaranteed = guaranteed

	builder := NewOptRuleOperandBuilderBase()
	builder.TraitInput(planType, in)
	r.Initialize(rule, builder.Operand(), description)
}

func (r *ConverterRuleBase) InTrait() hybridqp.Trait {
	return r.inTrait
}

func (r *ConverterRuleBase) OutTrait() hybridqp.Trait {
	return r.outTrait
}

func (r *ConverterRuleBase) Guaranteed() bool {
	return r.guaranteed
}

func (r *ConverterRuleBase) Category() OptRuleCategory {
	return RULE_CONVERTER
}

// Matches rejects nodes already in the out trait.
func (r *ConverterRuleBase) Matches(call *OptRuleCall) bool {
	return !call.Node(0).Traits().Contains(r.outTrait)
}
