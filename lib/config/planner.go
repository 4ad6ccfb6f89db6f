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

package config

import (
	"fmt"
	"runtime"

	"github.com/openGemini/heuopt/lib/errno"
)

const (
	MatchOrderArbitrary  = "arbitrary"
	MatchOrderDepthFirst = "depth-first"
	MatchOrderTopDown    = "top-down"
	MatchOrderBottomUp   = "bottom-up"

	// DefaultMatchLimit of zero means the number of rule matches is not limited.
	DefaultMatchLimit = 0
)

// Planner holds the settings of one heuristic planning run.
type Planner struct {
	MatchOrder string `toml:"match-order"`
	MatchLimit int    `toml:"match-limit"`

	// CheckCycle verifies the plan graph is acyclic after every transformation.
	// It is a diagnostic switch and slows planning down considerably.
	CheckCycle bool `toml:"check-cycle"`

	BatchConcurrency int `toml:"batch-concurrency"`
}

func NewPlanner() Planner {
	return Planner{
		MatchOrder:       MatchOrderArbitrary,
		MatchLimit:       DefaultMatchLimit,
		CheckCycle:       false,
		BatchConcurrency: runtime.NumCPU(),
	}
}

func (c Planner) Validate() error {
	if !validMatchOrder(c.MatchOrder) {
		return errno.NewError(errno.UnknownConfigKind, "planner.match-order", c.MatchOrder)
	}
	if c.MatchLimit < 0 {
		return errno.NewError(errno.InvalidConfigValue, "planner.match-limit", c.MatchLimit)
	}
	if c.BatchConcurrency <= 0 {
		return errno.NewError(errno.InvalidConfigValue, "planner.batch-concurrency", c.BatchConcurrency)
	}
	return nil
}

func validMatchOrder(order string) bool {
	switch order {
	case MatchOrderArbitrary, MatchOrderDepthFirst, MatchOrderTopDown, MatchOrderBottomUp:
		return true
	default:
		return false
	}
}

const (
	InstructionRule       = "rule"
	InstructionCategory   = "category"
	InstructionConverters = "converters"
	InstructionGroupBegin = "group-begin"
	InstructionGroupEnd   = "group-end"
	InstructionMatchOrder = "match-order"
	InstructionMatchLimit = "match-limit"
	InstructionSubprogram = "subprogram"
)

// Instruction is one step of a heuristic program.
//
//	[[program.instructions]]
//	kind = "rule"
//	rules = ["FilterTrueRemoveRule"]
type Instruction struct {
	Kind         string        `toml:"kind"`
	Rules        []string      `toml:"rules"`
	Category     string        `toml:"category"`
	Guaranteed   bool          `toml:"guaranteed"`
	MatchOrder   string        `toml:"match-order"`
	MatchLimit   int           `toml:"match-limit"`
	Instructions []Instruction `toml:"instructions"`
}

// Program is an ordered list of instructions. An empty program means the built-in standard program.
type Program struct {
	Instructions []Instruction `toml:"instructions"`
}

func NewProgram() Program {
	return Program{}
}

func (c Program) Validate() error {
	return validateInstructions(c.Instructions, "program")
}

func validateInstructions(instructions []Instruction, scope string) error {
	depth := 0
	for i := range instructions {
		ins := &instructions[i]
		name := fmt.Sprintf("%s.instructions[%d]", scope, i)
		switch ins.Kind {
		case InstructionRule:
			if len(ins.Rules) == 0 {
				return errno.NewError(errno.InvalidConfigValue, name, "rules must not be empty")
			}
		case InstructionCategory:
			if ins.Category == "" {
				return errno.NewError(errno.InvalidConfigValue, name, "category must not be empty")
			}
		case InstructionConverters:
		case InstructionGroupBegin:
			if depth > 0 {
				return errno.NewError(errno.InvalidConfigValue, name, "nested group")
			}
			depth++
		case InstructionGroupEnd:
			if depth == 0 {
				return errno.NewError(errno.InvalidConfigValue, name, "group-end without group-begin")
			}
			depth--
		case InstructionMatchOrder:
			if !validMatchOrder(ins.MatchOrder) {
				return errno.NewError(errno.UnknownConfigKind, name+".match-order", ins.MatchOrder)
			}
		case InstructionMatchLimit:
			if ins.MatchLimit < 0 {
				return errno.NewError(errno.InvalidConfigValue, name+".match-limit", ins.MatchLimit)
			}
		case InstructionSubprogram:
			if err := validateInstructions(ins.Instructions, name); err != nil {
				return err
			}
		default:
			return errno.NewError(errno.UnknownConfigKind, name+".kind", ins.Kind)
		}
	}
	if depth != 0 {
		return errno.NewError(errno.InvalidConfigValue, scope, "group-begin without group-end")
	}
	return nil
}
