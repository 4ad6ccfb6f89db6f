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

// common error codes
const (
	InternalError   = 9001
	InvalidDataType = 9002
	RecoverPanic    = 9003

	// BuiltInError errors returned by built-in functions
	BuiltInError = 9007

	// ThirdPartyError errors returned by third-party packages
	ThirdPartyError = 9008
)

// heuristic optimizer error codes
const (
	PlanCycleDetected         = 2001
	RuleResultRowTypeMismatch = 2002
	VertexSelfCost            = 2003
	OperandArityMismatch      = 2004
	DuplicateRuleDescription  = 2005
	InvalidHeuProgram         = 2006
	UnknownHeuInstruction     = 2007
	UnknownMatchOrder         = 2008
	VertexNotInGraph          = 2009
	PlannerRootNotSet         = 2010
	PlannerAborted            = 2011
)

// logical plan error codes
const (
	MalformedPlanNode      = 2101
	InvalidPlanDescription = 2102
	UnknownPlanNodeKind    = 2103
	InvalidPlanExpr        = 2104
)

// configuration error codes
const (
	InvalidConfigValue = 2201
	UnknownConfigKind  = 2202
)
