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

// DefaultRowCount is assumed for leaves that do not know their cardinality.
const DefaultRowCount = 100.0

type SelfCostComputer interface {
	ComputeSelfCost() hybridqp.Cost
}

// DefaultCostEstimator charges every node the rows flowing out of it, both as
// rows and as cpu. There is no io cost.
type DefaultCostEstimator struct{}

func (e DefaultCostEstimator) SelfCost(node hybridqp.QueryNode) hybridqp.Cost {
	if vertex, ok := node.(*HeuVertex); ok {
		node = vertex.Node()
	}
	if c, ok := node.(SelfCostComputer); ok {
		return c.ComputeSelfCost()
	}
	rows := e.RowCount(node)
	return hybridqp.NewCost(rows, rows, 0)
}

// RowCount is the row count a node reports, or the row count of its first input.
func (e DefaultCostEstimator) RowCount(node hybridqp.QueryNode) float64 {
	if vertex, ok := node.(*HeuVertex); ok {
		node = vertex.Node()
	}
	if provider, ok := node.(hybridqp.RowCountProvider); ok {
		return provider.RowCount()
	}
	if children := node.Children(); len(children) > 0 {
		return e.RowCount(children[0])
	}
	return DefaultRowCount
}
