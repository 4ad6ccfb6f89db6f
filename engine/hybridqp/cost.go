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

package hybridqp

import (
	"fmt"
	"math"
)

// Cost is a (rows, cpu, io) estimate ordered lexicographically.
type Cost struct {
	Rows float64
	Cpu  float64
	Io   float64
}

var (
	ZeroCost     = Cost{}
	InfiniteCost = Cost{Rows: math.Inf(1), Cpu: math.Inf(1), Io: math.Inf(1)}
)

func NewCost(rows, cpu, io float64) Cost {
	return Cost{Rows: rows, Cpu: cpu, Io: io}
}

func (c Cost) IsLt(other Cost) bool {
	if c.Rows != other.Rows {
		return c.Rows < other.Rows
	}
	if c.Cpu != other.Cpu {
		return c.Cpu < other.Cpu
	}
	return c.Io < other.Io
}

func (c Cost) IsLe(other Cost) bool {
	return c == other || c.IsLt(other)
}

func (c Cost) IsInfinite() bool {
	return math.IsInf(c.Rows, 1) || math.IsInf(c.Cpu, 1) || math.IsInf(c.Io, 1)
}

func (c Cost) Plus(other Cost) Cost {
	return Cost{Rows: c.Rows + other.Rows, Cpu: c.Cpu + other.Cpu, Io: c.Io + other.Io}
}

func (c Cost) String() string {
	return fmt.Sprintf("{%g rows, %g cpu, %g io}", c.Rows, c.Cpu, c.Io)
}

// CostEstimator returns the cost of a node alone, not including its inputs.
type CostEstimator interface {
	SelfCost(QueryNode) Cost
}

// RowTypeChecker decides whether a rule result may replace the matched node.
type RowTypeChecker interface {
	Equivalent(lhs, rhs RowDataType) bool
}

type TypeEquivalenceChecker struct{}

func (TypeEquivalenceChecker) Equivalent(lhs, rhs RowDataType) bool {
	return TypeEquivalent(lhs, rhs)
}
