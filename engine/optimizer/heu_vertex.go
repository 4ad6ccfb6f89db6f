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
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/lib/errno"
)

// HeuEdge points from a parent vertex to one of its inputs.
type HeuEdge struct {
	from *HeuVertex
	to   *HeuVertex
}

func NewHeuEdge(from *HeuVertex, to *HeuVertex) HeuEdge {
	return HeuEdge{
		from: from,
		to:   to,
	}
}

func (e HeuEdge) From() *HeuVertex {
	return e.from
}

func (e HeuEdge) To() *HeuVertex {
	return e.to
}

type HeuVertexInfo struct {
	children mapset.Set[*HeuVertex]
	parents  mapset.Set[*HeuVertex]
}

func NewHeuVertexInfo() *HeuVertexInfo {
	return &HeuVertexInfo{
		children: mapset.NewThreadUnsafeSet[*HeuVertex](),
		parents:  mapset.NewThreadUnsafeSet[*HeuVertex](),
	}
}

// HeuVertex is the stable identity of an expression in the plan graph. The
// expression currently implementing it may be replaced at any time, every
// parent addresses the vertex and never the expression.
type HeuVertex struct {
	id     uint64
	node   hybridqp.QueryNode
	traits hybridqp.TraitSet
	// digest the vertex was registered under, it follows the current node
	digest string
	info   *HeuVertexInfo
}

func NewHeuVertex(node hybridqp.QueryNode) *HeuVertex {
	return &HeuVertex{
		id:     hybridqp.GenerateNodeId(),
		node:   node,
		traits: node.Traits(),
		info:   NewHeuVertexInfo(),
	}
}

func (v *HeuVertex) Node() hybridqp.QueryNode {
	return v.node
}

func (v *HeuVertex) ReplaceNode(node hybridqp.QueryNode) {
	v.node = node
	v.traits = node.Traits()
}

// NodeDigest is the digest of the current node as last registered in the graph.
func (v *HeuVertex) NodeDigest() string {
	return v.digest
}

func (v *HeuVertex) ID() uint64 {
	return v.id
}

// Digest identifies the vertex, not its content. Parents referencing the vertex
// keep their digest when the vertex gets a new implementation.
func (v *HeuVertex) Digest() string {
	return fmt.Sprintf("HeuVertex#%d", v.id)
}

// Children is nil, a vertex is a leaf for whoever holds it as input.
func (v *HeuVertex) Children() []hybridqp.QueryNode {
	return nil
}

func (v *HeuVertex) String() string {
	return fmt.Sprintf("%s#%d(%s)", hybridqp.GetTypeName(v), v.id, v.node.String())
}

func (v *HeuVertex) Type() string {
	return hybridqp.GetType(v)
}

func (v *HeuVertex) ReplaceChild(ordinal int, _ hybridqp.QueryNode) {
	panic(errno.NewError(errno.InternalError, fmt.Sprintf("replace child %d of %s", ordinal, v.Digest())))
}

func (v *HeuVertex) ReplaceChildren(children []hybridqp.QueryNode) {
	if len(children) > 0 {
		v.ReplaceChild(0, children[0])
	}
}

// Clone returns the vertex itself, a vertex is never duplicated.
func (v *HeuVertex) Clone() hybridqp.QueryNode {
	return v
}

func (v *HeuVertex) RowDataType() hybridqp.RowDataType {
	return v.node.RowDataType()
}

func (v *HeuVertex) Traits() hybridqp.TraitSet {
	return v.traits
}

// ComputeSelfCost must never be reached, cost estimators look through vertices.
func (v *HeuVertex) ComputeSelfCost() hybridqp.Cost {
	panic(errno.NewError(errno.VertexSelfCost, v.id))
}

type HeuVertexs []*HeuVertex

func (hvs HeuVertexs) IndexOf(vertex *HeuVertex) int {
	for i, v := range hvs {
		if v == vertex {
			return i
		}
	}

	return -1
}

func (hvs HeuVertexs) Len() int           { return len(hvs) }
func (hvs HeuVertexs) Less(i, j int) bool { return hvs[i].id < hvs[j].id }
func (hvs HeuVertexs) Swap(i, j int)      { hvs[i], hvs[j] = hvs[j], hvs[i] }
