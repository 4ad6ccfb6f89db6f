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

package errno

type Message struct {
	format string
	level  Level
	module Module
}

func newMessage(format string, module Module, level Level) *Message {
	return &Message{
		format: format,
		level:  level,
		module: module,
	}
}

func newNoticeMessage(format string, module Module) *Message {
	return newMessage(format, module, LevelNotice)
}

func newWarnMessage(format string, module Module) *Message {
	return newMessage(format, module, LevelWarn)
}

func newFatalMessage(format string, module Module) *Message {
	return newMessage(format, module, LevelFatal)
}

var unknownMessage = newNoticeMessage("unknown error", ModuleUnknown)

// When an error message is initialized, the level and module corresponding to the error code are bound
// If the module to which the error code belongs cannot be determined during initialization, set to ModuleUnknown
var messageMap = map[Errno]*Message{
	// common error codes
	InternalError:   newWarnMessage("%v", ModuleUnknown),
	InvalidDataType: newWarnMessage("invalid data type, exp: %s, got: %s", ModuleUnknown),
	RecoverPanic:    newFatalMessage("runtime panic: %v", ModuleUnknown),

	// optimizer error codes, all of them are programming errors of a rule or of the planner
	PlanCycleDetected:         newFatalMessage("cycle detected in plan graph at vertex %d (%s)", ModuleOptimizer),
	RuleResultRowTypeMismatch: newFatalMessage("rule %s produced row type %s, expected %s", ModuleOptimizer),
	VertexSelfCost:            newFatalMessage("self cost must not be requested on vertex %d, go through the cost estimator", ModuleOptimizer),
	OperandArityMismatch:      newFatalMessage("rule %s has %d operands but %d bindings", ModuleOptimizer),
	DuplicateRuleDescription:  newFatalMessage("description of rules must be unique, existing rule(%s), new rule(%s)", ModuleOptimizer),
	InvalidHeuProgram:         newFatalMessage("invalid heuristic program: %s", ModuleOptimizer),
	UnknownHeuInstruction:     newFatalMessage("unsupported heuristic instruction %T", ModuleOptimizer),
	UnknownMatchOrder:         newFatalMessage("unknown heuristic match order %d", ModuleOptimizer),
	VertexNotInGraph:          newFatalMessage("vertex %d is not in plan graph", ModuleOptimizer),
	PlannerRootNotSet:         newWarnMessage("planner root is not set", ModuleOptimizer),
	PlannerAborted:            newWarnMessage("planning aborted: %v", ModuleOptimizer),

	// logical plan error codes
	MalformedPlanNode:      newFatalMessage("malformed %s node: %s", ModuleLogicPlan),
	InvalidPlanDescription: newWarnMessage("invalid plan description: %s", ModuleLogicPlan),
	UnknownPlanNodeKind:    newWarnMessage("unknown plan node kind %q", ModuleLogicPlan),
	InvalidPlanExpr:        newWarnMessage("invalid expression %q: %v", ModuleLogicPlan),

	// configuration error codes
	InvalidConfigValue: newWarnMessage("invalid config %s: %v", ModuleConfig),
	UnknownConfigKind:  newWarnMessage("unknown %s %q", ModuleConfig),
}
