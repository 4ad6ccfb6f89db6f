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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/lib/errno"
)

// HeuDag is the plan graph of a heuristic planner. Edges point from a parent
// to its inputs, the digest index maps the content of every current node to
// the vertex implementing it.
type HeuDag struct {
	vertexSet         mapset.Set[*HeuVertex]
	edgeSet           mapset.Set[HeuEdge]
	mapDigestToVertex map[string]*HeuVertex
	root              *HeuVertex
	listener          HeuListener
	// set by every mutation, cleared by garbage collection
	dirty bool
}

func NewHeuDag() *HeuDag {
	return &HeuDag{
		vertexSet:         mapset.NewThreadUnsafeSet[*HeuVertex](),
		edgeSet:           mapset.NewThreadUnsafeSet[HeuEdge](),
		mapDigestToVertex: make(map[string]*HeuVertex),
		listener:          NopListener{},
	}
}

func (dag *HeuDag) SetListener(listener HeuListener) {
	if listener == nil {
		listener = NopListener{}
	}
	dag.listener = listener
}

func (dag *HeuDag) Root() *HeuVertex {
	return dag.root
}

func (dag *HeuDag) SetRoot(root *HeuVertex) {
	if !dag.Contains(root) {
		panic(errno.NewError(errno.VertexNotInGraph, root.ID()))
	}
	if dag.root != root {
		dag.root = root
		dag.dirty = true
	}
}

func (dag *HeuDag) VertexSize() int {
	return dag.vertexSet.Cardinality()
}

func (dag *HeuDag) EdgeSize() int {
	return dag.edgeSet.Cardinality()
}

func (dag *HeuDag) DigestSize() int {
	return len(dag.mapDigestToVertex)
}

func (dag *HeuDag) Contains(vertex *HeuVertex) bool {
	return vertex != nil && dag.vertexSet.Contains(vertex)
}

func (dag *HeuDag) ContainsEdge(from *HeuVertex, to *HeuVertex) bool {
	return dag.edgeSet.Contains(NewHeuEdge(from, to))
}

func (dag *HeuDag) GetVertexByDigest(digest string) (*HeuVertex, bool) {
	vertex, ok := dag.mapDigestToVertex[digest]
	return vertex, ok
}

// Vertices returns all vertices ordered by id.
func (dag *HeuDag) Vertices() []*HeuVertex {
	vertexs := dag.vertexSet.ToSlice()
	sort.Sort(HeuVertexs(vertexs))
	return vertexs
}

func (dag *HeuDag) AddVertex(vertex *HeuVertex) bool {
	if dag.vertexSet.Contains(vertex) {
		return false
	}
	dag.vertexSet.Add(vertex)
	dag.dirty = true
	return true
}

// RemoveVertex drops the vertex with all its edges and its digest entry.
func (dag *HeuDag) RemoveVertex(vertex *HeuVertex) {
	if !dag.vertexSet.Contains(vertex) {
		return
	}

	for _, child := range vertex.info.children.ToSlice() {
		dag.RemoveEdge(vertex, child)
	}
	for _, parent := range vertex.info.parents.ToSlice() {
		dag.RemoveEdge(parent, vertex)
	}

	if dag.mapDigestToVertex[vertex.digest] == vertex {
		delete(dag.mapDigestToVertex, vertex.digest)
	}
	dag.vertexSet.Remove(vertex)
	dag.dirty = true
}

func (dag *HeuDag) AddEdge(from *HeuVertex, to *HeuVertex) bool {
	if !dag.edgeSet.Add(NewHeuEdge(from, to)) {
		return false
	}
	from.info.children.Add(to)
	to.info.parents.Add(from)
	dag.dirty = true
	return true
}

func (dag *HeuDag) RemoveEdge(from *HeuVertex, to *HeuVertex) bool {
	edge := NewHeuEdge(from, to)
	if !dag.edgeSet.Contains(edge) {
		return false
	}
	dag.edgeSet.Remove(edge)
	from.info.children.Remove(to)
	to.info.parents.Remove(from)
	dag.dirty = true
	return true
}

// Parents returns the vertices having the vertex as input, ordered by id.
func (dag *HeuDag) Parents(vertex *HeuVertex) []*HeuVertex {
	if !dag.Contains(vertex) {
		return nil
	}
	vertexs := vertex.info.parents.ToSlice()
	sort.Sort(HeuVertexs(vertexs))
	return vertexs
}

// Children returns the distinct inputs of the vertex, ordered by id.
func (dag *HeuDag) Children(vertex *HeuVertex) []*HeuVertex {
	if !dag.Contains(vertex) {
		return nil
	}
	vertexs := vertex.info.children.ToSlice()
	sort.Sort(HeuVertexs(vertexs))
	return vertexs
}

func (dag *HeuDag) cloneNodeWithChildren(node hybridqp.QueryNode, children []hybridqp.QueryNode) hybridqp.QueryNode {
	clone := node.Clone()
	clone.ReplaceChildren(children)
	return clone
}

// Insert adds the node and, first, all of its inputs. Inputs which are
// already vertices of this graph are used as they are. A node equal by
// digest to one already in the graph is not added again, the existing
// vertex is returned and created is false.
func (dag *HeuDag) Insert(node hybridqp.QueryNode) (vertex *HeuVertex, created bool) {
	if v, ok := node.(*HeuVertex); ok {
		if dag.Contains(v) {
			return v, false
		}
		// a vertex of another graph or one swept by the garbage collector
		node = v.Node()
	}

	children := node.Children()
	inputs := make([]hybridqp.QueryNode, 0, len(children))
	for _, child := range children {
		input, _ := dag.Insert(child)
		inputs = append(inputs, input)
	}

	// nodes published in the graph are mutated by contraction, never share them with the caller
	if len(children) > 0 {
		node = dag.cloneNodeWithChildren(node, inputs)
	}

	if equivVertex, ok := dag.mapDigestToVertex[node.Digest()]; ok {
		return equivVertex, false
	}

	vertex = NewHeuVertex(node)
	dag.AddVertex(vertex)
	dag.register(vertex, node.Digest())

	for _, input := range inputs {
		dag.AddEdge(vertex, input.(*HeuVertex))
	}

	dag.listener.NodeEquivalenceFound(nil, vertex, node)
	return vertex, true
}

func (dag *HeuDag) register(vertex *HeuVertex, digest string) {
	vertex.digest = digest
	if owner, ok := dag.mapDigestToVertex[digest]; !ok || !dag.Contains(owner) {
		dag.mapDigestToVertex[digest] = vertex
	}
}

// UpdateVertex installs node as the implementation of vertex. Nothing happens
// when the digest does not change. When another vertex already owns the new
// digest both vertices carry equal content until contraction or garbage
// collection removes one of them.
func (dag *HeuDag) UpdateVertex(vertex *HeuVertex, node hybridqp.QueryNode) {
	digest := node.Digest()
	if digest == vertex.digest {
		return
	}

	if dag.mapDigestToVertex[vertex.digest] == vertex {
		delete(dag.mapDigestToVertex, vertex.digest)
	}

	old := vertex.Node()
	vertex.ReplaceNode(node)
	dag.register(vertex, digest)
	dag.dirty = true

	if old != node {
		dag.listener.NodeDiscarded(old)
	}
}

// Contract redirects the given parents of discarded to preserved. The
// discarded vertex stays in the graph, parents not listed may still use it.
func (dag *HeuDag) Contract(preserved *HeuVertex, discarded *HeuVertex, parents []*HeuVertex) {
	for _, parent := range parents {
		node := parent.Node()
		for i, child := range node.Children() {
			if child != discarded {
				continue
			}
			node.ReplaceChild(i, preserved)
		}
		dag.RemoveEdge(parent, discarded)
		dag.AddEdge(parent, preserved)
		dag.UpdateVertex(parent, node)
	}

	if dag.root == discarded {
		dag.root = preserved
	}
	dag.dirty = true
}

// CollectGarbage removes every vertex not reachable from root. It returns the
// number of swept vertices and false if the graph was not modified since the
// previous collection.
func (dag *HeuDag) CollectGarbage(root *HeuVertex) (int, bool) {
	if !dag.dirty {
		return 0, false
	}

	marked := mapset.NewThreadUnsafeSet[*HeuVertex]()
	stack := []*HeuVertex{root}
	for len(stack) > 0 {
		vertex := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !dag.Contains(vertex) || !marked.Add(vertex) {
			continue
		}
		stack = append(stack, vertex.info.children.ToSlice()...)
	}

	swept := dag.vertexSet.Difference(marked).ToSlice()
	sort.Sort(HeuVertexs(swept))
	for _, vertex := range swept {
		dag.RemoveVertex(vertex)
		dag.listener.NodeDiscarded(vertex.Node())
	}

	// a survivor sharing the digest of a swept owner takes over its entry
	survivors := marked.ToSlice()
	sort.Sort(HeuVertexs(survivors))
	for _, vertex := range survivors {
		if _, ok := dag.mapDigestToVertex[vertex.digest]; !ok {
			dag.mapDigestToVertex[vertex.digest] = vertex
		}
	}

	dag.dirty = false
	return len(swept), true
}

const (
	white = iota
	grey
	black
)

// AssertNoCycle panics with PlanCycleDetected when a vertex reaches itself.
func (dag *HeuDag) AssertNoCycle() {
	colors := make(map[*HeuVertex]int, dag.VertexSize())

	var visit func(vertex *HeuVertex)
	visit = func(vertex *HeuVertex) {
		colors[vertex] = grey
		for _, child := range dag.Children(vertex) {
			switch colors[child] {
			case grey:
				panic(errno.NewError(errno.PlanCycleDetected, child.ID(), child.Node().String()))
			case white:
				visit(child)
			}
		}
		colors[vertex] = black
	}

	for _, vertex := range dag.Vertices() {
		if colors[vertex] == white {
			visit(vertex)
		}
	}
}

func (dag *HeuDag) GetGraphIterator(vertex *HeuVertex, matchOrder HeuMatchOrder) *GraphIterator {
	switch matchOrder {
	case ARBITRARY, DEPTH_FIRST:
		return dag.depthFirstIterator(vertex)
	case TOP_DOWN:
		return dag.topologicalIterator(false)
	case BOTTOM_UP:
		return dag.topologicalIterator(true)
	default:
		panic(errno.NewError(errno.UnknownMatchOrder, matchOrder))
	}
}

func (dag *HeuDag) depthFirstIterator(vertex *HeuVertex) *GraphIterator {
	iter := NewGraphIterator(dag.VertexSize())
	dag.WalkHeuDag(iter, vertex)
	return iter
}

// topologicalIterator orders parents before their inputs, or inputs before
// their parents when reverse is set.
func (dag *HeuDag) topologicalIterator(reverse bool) *GraphIterator {
	iter := NewGraphIterator(dag.VertexSize())

	inDegree := make(map[*HeuVertex]int, dag.VertexSize())
	queue := make([]*HeuVertex, 0, dag.VertexSize())
	for _, vertex := range dag.Vertices() {
		inDegree[vertex] = vertex.info.parents.Cardinality()
		if inDegree[vertex] == 0 {
			queue = append(queue, vertex)
		}
	}

	for len(queue) > 0 {
		vertex := queue[0]
		queue = queue[1:]
		iter.Visit(vertex)
		for _, child := range dag.inputsOf(vertex) {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if reverse {
		for i, j := 0, len(iter.vertexs)-1; i < j; i, j = i+1, j-1 {
			iter.vertexs[i], iter.vertexs[j] = iter.vertexs[j], iter.vertexs[i]
		}
	}
	return iter
}

// inputsOf returns the distinct input vertices in declared order.
func (dag *HeuDag) inputsOf(vertex *HeuVertex) []*HeuVertex {
	children := vertex.Node().Children()
	inputs := make([]*HeuVertex, 0, len(children))
	for _, child := range children {
		v, ok := child.(*HeuVertex)
		if !ok || !dag.Contains(v) || HeuVertexs(inputs).IndexOf(v) != -1 {
			continue
		}
		inputs = append(inputs, v)
	}
	return inputs
}

type HeuDagVisitor interface {
	Visit(vertex *HeuVertex) HeuDagVisitor
}

// WalkHeuDag visits vertices depth first in pre-order, each vertex once.
func (dag *HeuDag) WalkHeuDag(visitor HeuDagVisitor, vertex *HeuVertex) {
	visited := mapset.NewThreadUnsafeSet[*HeuVertex]()
	dag.walkHeuDag(visitor, vertex, visited)
}

func (dag *HeuDag) walkHeuDag(visitor HeuDagVisitor, vertex *HeuVertex, visited mapset.Set[*HeuVertex]) {
	if !dag.Contains(vertex) || !visited.Add(vertex) {
		return
	}

	if visitor = visitor.Visit(vertex); visitor == nil {
		return
	}

	for _, input := range dag.inputsOf(vertex) {
		dag.walkHeuDag(visitor, input, visited)
	}
}

type GraphIterator struct {
	vertexs []*HeuVertex
	index   int
}

func NewGraphIterator(capacity int) *GraphIterator {
	return &GraphIterator{
		vertexs: make([]*HeuVertex, 0, capacity),
		index:   0,
	}
}

func (iter *GraphIterator) Visit(vertex *HeuVertex) HeuDagVisitor {
	iter.vertexs = append(iter.vertexs, vertex)
	return iter
}

func (iter *GraphIterator) HasNext() bool {
	return iter.index < len(iter.vertexs)
}

func (iter *GraphIterator) Next() *HeuVertex {
	if iter.HasNext() {
		node := iter.vertexs[iter.index]
		iter.index++
		return node
	}
	return nil
}

func (iter *GraphIterator) Reset() {
	iter.index = 0
}

func (iter *GraphIterator) Size() int {
	return len(iter.vertexs)
}
