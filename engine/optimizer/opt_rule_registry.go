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
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/lib/errno"
)

const ruleCacheSize = 128

// RuleRegistry holds the rules known to planners. It may be shared by
// planners running concurrently, it must not be modified while they run.
type RuleRegistry struct {
	mu            sync.RWMutex
	rules         []OptRule
	mapDescToRule map[string]OptRule
	version       uint64
	cache         *lru.Cache[string, []OptRule]
}

func NewRuleRegistry() *RuleRegistry {
	cache, err := lru.New[string, []OptRule](ruleCacheSize)
	if err != nil {
		panic(errno.NewThirdParty(err, errno.ModuleOptimizer))
	}
	return &RuleRegistry{
		mapDescToRule: make(map[string]OptRule),
		cache:         cache,
	}
}

// AddRule returns false if an equal rule is registered already. Two
// different rules with the same description is a programming error.
func (r *RuleRegistry) AddRule(rule OptRule) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	description := rule.Description()
	if existingRule, ok := r.mapDescToRule[description]; ok {
		if existingRule.Equals(rule) {
			return false
		}
		panic(errno.NewError(errno.DuplicateRuleDescription, existingRule.ToString(), rule.ToString()))
	}

	r.mapDescToRule[description] = rule
	r.rules = append(r.rules, rule)
	r.version++
	return true
}

func (r *RuleRegistry) AddRules(rules ...OptRule) {
	for _, rule := range rules {
		r.AddRule(rule)
	}
}

func (r *RuleRegistry) RemoveRule(rule OptRule) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	description := rule.Description()
	if _, ok := r.mapDescToRule[description]; !ok {
		return false
	}

	delete(r.mapDescToRule, description)
	for i, existing := range r.rules {
		if existing.Description() == description {
			r.rules = append(r.rules[:i:i], r.rules[i+1:]...)
			break
		}
	}
	r.version++
	return true
}

func (r *RuleRegistry) Rule(description string) (OptRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.mapDescToRule[description]
	return rule, ok
}

// Rules returns the registered rules in registration order.
func (r *RuleRegistry) Rules() []OptRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := make([]OptRule, len(r.rules))
	copy(rules, r.rules)
	return rules
}

func (r *RuleRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Version changes with every added or removed rule.
func (r *RuleRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *RuleRegistry) RulesOfCategory(category OptRuleCategory) []OptRule {
	return r.lookup(fmt.Sprintf("category/%d", category), func(rule OptRule) bool {
		return rule.Category() == category
	})
}

// Converters returns the converter rules, only the guaranteed ones if guaranteedOnly is set.
func (r *RuleRegistry) Converters(guaranteedOnly bool) []OptRule {
	return r.lookup(fmt.Sprintf("converters/%t", guaranteedOnly), func(rule OptRule) bool {
		converter, ok := rule.(ConverterRule)
		return ok && (!guaranteedOnly || converter.Guaranteed())
	})
}

// ConvertersTo returns the converter rules producing trait.
func (r *RuleRegistry) ConvertersTo(trait hybridqp.Trait) []OptRule {
	key := fmt.Sprintf("converters-to/%s/%s", trait.TraitDef().Name(), trait.String())
	return r.lookup(key, func(rule OptRule) bool {
		converter, ok := rule.(ConverterRule)
		return ok && hybridqp.TraitEqual(converter.OutTrait(), trait)
	})
}

func (r *RuleRegistry) lookup(key string, filter func(OptRule) bool) []OptRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key = fmt.Sprintf("%d/%s", r.version, key)
	if rules, ok := r.cache.Get(key); ok {
		return rules
	}

	var rules []OptRule
	for _, rule := range r.rules {
		if filter(rule) {
			rules = append(rules, rule)
		}
	}
	r.cache.Add(key, rules)
	return rules
}
