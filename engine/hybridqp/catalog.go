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
	"github.com/influxdata/influxql"
)

type RowDataType interface {
	Equal(RowDataType) bool
	Fields() influxql.Fields
	MakeRefs() []influxql.VarRef
	Field(int) *influxql.Field
	FieldIndex(string) int
	NumColumn() int
	String() string
}

type RowDataTypeImpl struct {
	fields      influxql.Fields
	indexByName map[string]int
}

func NewRowDataTypeImpl(refs ...influxql.VarRef) *RowDataTypeImpl {
	rowDataType := &RowDataTypeImpl{
		fields:      make(influxql.Fields, 0, len(refs)),
		indexByName: make(map[string]int),
	}

	for _, ref := range refs {
		r := ref
		rowDataType.fields = append(rowDataType.fields, &influxql.Field{Expr: &r})
	}

	for i, f := range rowDataType.fields {
		rowDataType.indexByName[f.Name()] = i
	}

	return rowDataType
}

func (s *RowDataTypeImpl) DeepEqual(to *RowDataTypeImpl) bool {
	if to == nil || len(s.fields) != len(to.fields) {
		return false
	}

	for i := range s.fields {
		if s.fields[i].String() != to.fields[i].String() {
			return false
		}
	}

	return true
}

func (s *RowDataTypeImpl) Equal(to RowDataType) bool {
	if t, ok := to.(*RowDataTypeImpl); !ok {
		return false
	} else {
		return s.DeepEqual(t)
	}
}

func (s *RowDataTypeImpl) Fields() influxql.Fields {
	return s.fields
}

func (s *RowDataTypeImpl) MakeRefs() []influxql.VarRef {
	refs := make([]influxql.VarRef, 0, len(s.fields))
	for _, f := range s.fields {
		refs = append(refs, *(f.Expr.(*influxql.VarRef)))
	}
	return refs
}

func (s *RowDataTypeImpl) Field(i int) *influxql.Field {
	return s.fields[i]
}

func (s *RowDataTypeImpl) FieldIndex(name string) int {
	if index, ok := s.indexByName[name]; ok {
		return index
	}
	return -1
}

func (s *RowDataTypeImpl) NumColumn() int {
	return len(s.fields)
}

func (s *RowDataTypeImpl) String() string {
	return "(" + s.fields.String() + ")"
}

// FieldType is the declared type of a row field, Unknown when the field is not a plain reference.
func FieldType(f *influxql.Field) influxql.DataType {
	if ref, ok := f.Expr.(*influxql.VarRef); ok {
		return ref.Type
	}
	return influxql.Unknown
}

// TypeEquivalent reports whether both row types have the same number of fields
// with pairwise equal types. Field names are ignored.
func TypeEquivalent(lhs, rhs RowDataType) bool {
	if lhs == nil || rhs == nil {
		return lhs == nil && rhs == nil
	}
	if lhs.NumColumn() != rhs.NumColumn() {
		return false
	}
	for i := 0; i < lhs.NumColumn(); i++ {
		if FieldType(lhs.Field(i)) != FieldType(rhs.Field(i)) {
			return false
		}
	}
	return true
}

// ConcatRowDataType returns the fields of all inputs in order, as produced by a join.
func ConcatRowDataType(types ...RowDataType) *RowDataTypeImpl {
	var refs []influxql.VarRef
	for _, t := range types {
		refs = append(refs, t.MakeRefs()...)
	}
	return NewRowDataTypeImpl(refs...)
}
