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
	"fmt"
	"strings"

	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/engine/optimizer"
	"github.com/xlab/treeprint"
)

type itemWriter struct {
	items []string
}

func (w *itemWriter) Item(term string, value interface{}) {
	w.items = append(w.items, fmt.Sprintf("%s=%v", term, value))
}

// Label renders a node as Name(term=value, ...)[traits].
func Label(node hybridqp.QueryNode) string {
	if vertex, ok := node.(*optimizer.HeuVertex); ok {
		node = vertex.Node()
	}
	writer := &itemWriter{}
	if plan, ok := node.(LogicalPlan); ok {
		plan.ExplainIterms(writer)
	}
	return node.String() + "(" + strings.Join(writer.items, ", ") + ")" + node.Traits().String()
}

// Explain renders the plan as a tree, one node per line. A node shared by
// several parents is printed under each of them.
func Explain(root hybridqp.QueryNode) string {
	tree := treeprint.New()
	if root != nil {
		addExplainBranch(tree, root)
	}
	return tree.String()
}

func addExplainBranch(tree treeprint.Tree, node hybridqp.QueryNode) {
	branch := tree.AddBranch(Label(node))
	if vertex, ok := node.(*optimizer.HeuVertex); ok {
		node = vertex.Node()
	}
	for _, child := range node.Children() {
		addExplainBranch(branch, child)
	}
}
