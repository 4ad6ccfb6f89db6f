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
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/influxdata/influxql"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/engine/optimizer"
	"github.com/openGemini/heuopt/lib/errno"
)

type LogicalPlanWriter interface {
	Item(term string, value interface{})
}

type LogicalPlan interface {
	hybridqp.QueryNode
	ExplainIterms(LogicalPlanWriter)
}

// LogicalPlanBase carries what every logical node has. The digest is computed
// when the node is built and whenever its inputs are replaced, it is never
// computed lazily so that nodes may be shared by planners on different goroutines.
type LogicalPlanBase struct {
	id     uint64
	rt     hybridqp.RowDataType
	traits hybridqp.TraitSet
	digest string
}

func newLogicalPlanBase(rt hybridqp.RowDataType) LogicalPlanBase {
	return LogicalPlanBase{
		id:     hybridqp.GenerateNodeId(),
		rt:     rt,
		traits: hybridqp.NewTraitSet(hybridqp.LOGICAL),
	}
}

func (p *LogicalPlanBase) ID() uint64 {
	return p.id
}

func (p *LogicalPlanBase) RowDataType() hybridqp.RowDataType {
	return p.rt
}

func (p *LogicalPlanBase) Traits() hybridqp.TraitSet {
	return p.traits
}

func (p *LogicalPlanBase) Convention() *hybridqp.Convention {
	return p.traits.Convention()
}

func (p *LogicalPlanBase) Digest() string {
	return p.digest
}

// renew gives a clone its own id.
func (p *LogicalPlanBase) renew() {
	p.id = hybridqp.GenerateNodeId()
}

// updateDigest renders name(params)traits[fingerprints of inputs].
func (p *LogicalPlanBase) updateDigest(name string, params string, inputs []hybridqp.QueryNode) {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('(')
	sb.WriteString(params)
	sb.WriteByte(')')
	sb.WriteString(p.traits.String())
	sb.WriteByte('[')
	for i, input := range inputs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(xxhash.Sum64String(input.Digest()), 16))
	}
	sb.WriteByte(']')
	p.digest = sb.String()
}

func malformed(node string, format string, args ...interface{}) *errno.Error {
	return errno.NewError(errno.MalformedPlanNode, node, fmt.Sprintf(format, args...))
}

func checkInput(node string, input hybridqp.QueryNode) {
	if input == nil {
		panic(malformed(node, "input is nil"))
	}
}

// checkColumns panics unless every column referenced by expr is a field of rt.
func checkColumns(node string, expr influxql.Expr, rt hybridqp.RowDataType) {
	for _, name := range ReferencedColumns(expr).ToSlice() {
		if rt.FieldIndex(name) < 0 {
			panic(malformed(node, "unknown column %q in %s", name, expr))
		}
	}
}

type LogicalScan struct {
	table    string
	rowCount float64
	LogicalPlanBase
}

// NewLogicalScan reads table, producing the given columns. A row count of
// zero or less means unknown.
func NewLogicalScan(table string, columns []influxql.VarRef, rowCount float64) *LogicalScan {
	if table == "" {
		panic(malformed("LogicalScan", "table is empty"))
	}
	for _, c := range columns {
		if c.Val == "" {
			panic(malformed("LogicalScan", "column without name in %s", table))
		}
	}

	scan := &LogicalScan{
		table:           table,
		rowCount:        rowCount,
		LogicalPlanBase: newLogicalPlanBase(hybridqp.NewRowDataTypeImpl(columns...)),
	}
	scan.init()
	return scan
}

func (p *LogicalScan) init() {
	p.updateDigest(p.String(), fmt.Sprintf("%s, %s, %g", p.table, p.rt, p.rowCount), nil)
}

func (p *LogicalScan) WithConvention(c *hybridqp.Convention) *LogicalScan {
	p.traits = p.traits.Replace(c)
	p.init()
	return p
}

func (p *LogicalScan) Table() string {
	return p.table
}

func (p *LogicalScan) RowCount() float64 {
	if p.rowCount <= 0 {
		return optimizer.DefaultRowCount
	}
	return p.rowCount
}

func (p *LogicalScan) Clone() hybridqp.QueryNode {
	clone := &LogicalScan{}
	*clone = *p
	clone.renew()
	return clone
}

func (p *LogicalScan) Children() []hybridqp.QueryNode {
	return nil
}

func (p *LogicalScan) ReplaceChildren(children []hybridqp.QueryNode) {
	if len(children) > 0 {
		panic(malformed(p.String(), "scan has no input"))
	}
}

func (p *LogicalScan) ReplaceChild(ordinal int, _ hybridqp.QueryNode) {
	panic(malformed(p.String(), "index %d out of range %d", ordinal, 0))
}

func (p *LogicalScan) ExplainIterms(writer LogicalPlanWriter) {
	writer.Item("table", p.table)
	writer.Item("columns", p.rt)
	if p.rowCount > 0 {
		writer.Item("rows", p.rowCount)
	}
}

func (p *LogicalScan) String() string {
	return hybridqp.GetTypeName(p)
}

func (p *LogicalScan) Type() string {
	return hybridqp.GetType(p)
}

type LogicalFilter struct {
	input     hybridqp.QueryNode
	condition influxql.Expr
	LogicalPlanBase
}

func NewLogicalFilter(input hybridqp.QueryNode, condition influxql.Expr) *LogicalFilter {
	checkInput("LogicalFilter", input)
	if condition == nil {
		panic(malformed("LogicalFilter", "condition is nil"))
	}
	checkColumns("LogicalFilter", condition, input.RowDataType())

	filter := &LogicalFilter{
		input:           input,
		condition:       condition,
		LogicalPlanBase: newLogicalPlanBase(input.RowDataType()),
	}
	filter.init()
	return filter
}

func (p *LogicalFilter) init() {
	p.updateDigest(p.String(), p.condition.String(), p.Children())
}

func (p *LogicalFilter) WithConvention(c *hybridqp.Convention) *LogicalFilter {
	p.traits = p.traits.Replace(c)
	p.init()
	return p
}

func (p *LogicalFilter) Condition() influxql.Expr {
	return p.condition
}

func (p *LogicalFilter) Clone() hybridqp.QueryNode {
	clone := &LogicalFilter{}
	*clone = *p
	clone.renew()
	return clone
}

func (p *LogicalFilter) Children() []hybridqp.QueryNode {
	return []hybridqp.QueryNode{p.input}
}

func (p *LogicalFilter) ReplaceChildren(children []hybridqp.QueryNode) {
	if len(children) != 1 {
		panic(malformed(p.String(), "only one child in logical filter"))
	}
	p.input = children[0]
	p.init()
}

func (p *LogicalFilter) ReplaceChild(ordinal int, child hybridqp.QueryNode) {
	if ordinal > 0 {
		panic(malformed(p.String(), "index %d out of range %d", ordinal, 1))
	}
	p.input = child
	p.init()
}

func (p *LogicalFilter) ExplainIterms(writer LogicalPlanWriter) {
	writer.Item("condition", p.condition)
}

func (p *LogicalFilter) String() string {
	return hybridqp.GetTypeName(p)
}

func (p *LogicalFilter) Type() string {
	return hybridqp.GetType(p)
}

type LogicalProject struct {
	input  hybridqp.QueryNode
	fields influxql.Fields
	LogicalPlanBase
}

// NewLogicalProject computes fields over the rows of input. A field is named
// by its alias, or by the expression as influxql names it.
func NewLogicalProject(input hybridqp.QueryNode, fields influxql.Fields) *LogicalProject {
	checkInput("LogicalProject", input)
	if len(fields) == 0 {
		panic(malformed("LogicalProject", "no fields"))
	}

	inputType := input.RowDataType()
	refs := make([]influxql.VarRef, 0, len(fields))
	for _, f := range fields {
		checkColumns("LogicalProject", f.Expr, inputType)
		name := f.Name()
		if name == "" {
			panic(malformed("LogicalProject", "field %s has no name", f))
		}
		refs = append(refs, influxql.VarRef{Val: name, Type: ExprType(f.Expr, inputType)})
	}

	project := &LogicalProject{
		input:           input,
		fields:          fields,
		LogicalPlanBase: newLogicalPlanBase(hybridqp.NewRowDataTypeImpl(refs...)),
	}
	project.init()
	return project
}

func (p *LogicalProject) init() {
	p.updateDigest(p.String(), p.fields.String(), p.Children())
}

func (p *LogicalProject) WithConvention(c *hybridqp.Convention) *LogicalProject {
	p.traits = p.traits.Replace(c)
	p.init()
	return p
}

func (p *LogicalProject) Fields() influxql.Fields {
	return p.fields
}

// IsColumnsOnly reports whether every field is a plain column reference.
func (p *LogicalProject) IsColumnsOnly() bool {
	for _, f := range p.fields {
		if _, ok := f.Expr.(*influxql.VarRef); !ok {
			return false
		}
	}
	return true
}

func (p *LogicalProject) Clone() hybridqp.QueryNode {
	clone := &LogicalProject{}
	*clone = *p
	clone.renew()
	return clone
}

func (p *LogicalProject) Children() []hybridqp.QueryNode {
	return []hybridqp.QueryNode{p.input}
}

func (p *LogicalProject) ReplaceChildren(children []hybridqp.QueryNode) {
	if len(children) != 1 {
		panic(malformed(p.String(), "only one child in logical project"))
	}
	p.input = children[0]
	p.init()
}

func (p *LogicalProject) ReplaceChild(ordinal int, child hybridqp.QueryNode) {
	if ordinal > 0 {
		panic(malformed(p.String(), "index %d out of range %d", ordinal, 1))
	}
	p.input = child
	p.init()
}

func (p *LogicalProject) ExplainIterms(writer LogicalPlanWriter) {
	writer.Item("fields", p.fields)
}

func (p *LogicalProject) String() string {
	return hybridqp.GetTypeName(p)
}

func (p *LogicalProject) Type() string {
	return hybridqp.GetType(p)
}
