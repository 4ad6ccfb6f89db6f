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
	"sort"
	"strings"
	"sync"
)

// TraitDef names one dimension of physical properties, e.g. the calling convention.
type TraitDef interface {
	Name() string
}

type Trait interface {
	TraitDef() TraitDef
	Satisfies(Trait) bool
	String() string
}

func TraitEqual(lhs, rhs Trait) bool {
	if lhs == nil || rhs == nil {
		return lhs == rhs
	}
	if lhs == rhs {
		return true
	}
	return lhs.TraitDef().Name() == rhs.TraitDef().Name() && lhs.String() == rhs.String()
}

type conventionTraitDef struct{}

func (conventionTraitDef) Name() string {
	return "convention"
}

var ConventionTraitDef TraitDef = conventionTraitDef{}

// Convention is the calling convention of a node. Conventions are interned,
// two conventions with the same name are the same object.
type Convention struct {
	name string
}

var conventions sync.Map

func NewConvention(name string) *Convention {
	c, _ := conventions.LoadOrStore(name, &Convention{name: name})
	return c.(*Convention)
}

var (
	NONE    = NewConvention("NONE")
	LOGICAL = NewConvention("LOGICAL")
)

func (c *Convention) TraitDef() TraitDef {
	return ConventionTraitDef
}

func (c *Convention) Satisfies(trait Trait) bool {
	return TraitEqual(c, trait)
}

func (c *Convention) Name() string {
	return c.name
}

func (c *Convention) String() string {
	return c.name
}

// TraitSet holds at most one trait per trait def, ordered by def name.
// It is a value, every modification returns a new set.
type TraitSet struct {
	traits []Trait
}

func NewTraitSet(traits ...Trait) TraitSet {
	ts := TraitSet{}
	for _, t := range traits {
		ts = ts.Replace(t)
	}
	return ts
}

func (ts TraitSet) Size() int {
	return len(ts.traits)
}

func (ts TraitSet) Traits() []Trait {
	return ts.traits
}

func (ts TraitSet) Get(def TraitDef) Trait {
	for _, t := range ts.traits {
		if t.TraitDef().Name() == def.Name() {
			return t
		}
	}
	return nil
}

func (ts TraitSet) Convention() *Convention {
	if c, ok := ts.Get(ConventionTraitDef).(*Convention); ok {
		return c
	}
	return NONE
}

func (ts TraitSet) Replace(trait Trait) TraitSet {
	if trait == nil {
		return ts
	}
	traits := make([]Trait, 0, len(ts.traits)+1)
	for _, t := range ts.traits {
		if t.TraitDef().Name() != trait.TraitDef().Name() {
			traits = append(traits, t)
		}
	}
	traits = append(traits, trait)
	sort.SliceStable(traits, func(i, j int) bool {
		return traits[i].TraitDef().Name() < traits[j].TraitDef().Name()
	})
	return TraitSet{traits: traits}
}

func (ts TraitSet) Contains(trait Trait) bool {
	if trait == nil {
		return false
	}
	return TraitEqual(ts.Get(trait.TraitDef()), trait)
}

// Satisfies reports whether every trait of required is satisfied by the trait of the same def.
func (ts TraitSet) Satisfies(required TraitSet) bool {
	for _, r := range required.traits {
		t := ts.Get(r.TraitDef())
		if t == nil || !t.Satisfies(r) {
			return false
		}
	}
	return true
}

func (ts TraitSet) Equals(other TraitSet) bool {
	if len(ts.traits) != len(other.traits) {
		return false
	}
	for i, t := range ts.traits {
		if !TraitEqual(t, other.traits[i]) {
			return false
		}
	}
	return true
}

func (ts TraitSet) String() string {
	names := make([]string, 0, len(ts.traits))
	for _, t := range ts.traits {
		names = append(names, t.String())
	}
	return "[" + strings.Join(names, ",") + "]"
}
