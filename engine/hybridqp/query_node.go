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
	"reflect"
	"strings"
	"sync/atomic"
)

var (
	gNodeId uint64 = 0
)

func GenerateNodeId() uint64 {
	id := atomic.AddUint64(&gNodeId, 1)
	return id
}

// QueryNode is a relational expression. Children are either plain nodes or,
// once the node is registered in a plan graph, the vertices standing for them.
type QueryNode interface {
	ID() uint64
	// Digest is a pure function of the node content: type, parameters,
	// traits and the digests of its children.
	Digest() string
	Children() []QueryNode
	String() string
	Type() string
	ReplaceChild(int, QueryNode)
	ReplaceChildren([]QueryNode)
	// Clone is shallow: the clone shares the children of the receiver and has a new ID.
	Clone() QueryNode
	RowDataType() RowDataType
	Traits() TraitSet
}

// Converter is implemented by nodes which change only the traits of their input,
// never its logical content.
type Converter interface {
	QueryNode
	ConvertedTraitDef() TraitDef
}

// RowCountProvider is implemented by nodes which know their output cardinality.
type RowCountProvider interface {
	RowCount() float64
}

type Planner interface {
	SetRoot(QueryNode)
	FindBestExp() (QueryNode, error)
	Transformations() int
}

type QueryNodeVisitor interface {
	Visit(QueryNode) QueryNodeVisitor
}

func WalkQueryNodeInPreOrder(v QueryNodeVisitor, node QueryNode) {
	if node == nil {
		return
	}

	if v = v.Visit(node); v == nil {
		return
	}

	for _, child := range node.Children() {
		WalkQueryNodeInPreOrder(v, child)
	}
}

func WalkQueryNodeInPostOrder(v QueryNodeVisitor, node QueryNode) {
	if node == nil {
		return
	}

	for _, child := range node.Children() {
		WalkQueryNodeInPostOrder(v, child)
	}

	v.Visit(node)
}

type FlattenQueryNodeVisitor struct {
	nodes []QueryNode
}

func (visitor *FlattenQueryNodeVisitor) Visit(node QueryNode) QueryNodeVisitor {
	visitor.nodes = append(visitor.nodes, node)
	return visitor
}

func (visitor *FlattenQueryNodeVisitor) Nodes() []QueryNode {
	return visitor.nodes
}

// EqualNodes reports whether both slices hold the very same node objects.
func EqualNodes(lhs []QueryNode, rhs []QueryNode) bool {
	if len(lhs) != len(rhs) {
		return false
	}

	for i, l := range lhs {
		if l != rhs[i] {
			return false
		}
	}

	return true
}

func GetTypeName(i interface{}) string {
	subs := strings.Split(reflect.TypeOf(i).String(), ".")
	return subs[len(subs)-1]
}

func GetType(i interface{}) string {
	return reflect.TypeOf(i).String()
}
