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
	"github.com/openGemini/heuopt/lib/errno"
	"github.com/openGemini/heuopt/lib/logger"
	"go.uber.org/zap"
)

// HeuListener observes a planning run. Listeners never change the outcome.
type HeuListener interface {
	// NodeDiscarded is called when a node stops implementing a vertex.
	NodeDiscarded(node hybridqp.QueryNode)
	// NodeEquivalenceFound is called when node becomes the implementation of
	// vertex, rule is nil when the node was inserted rather than produced.
	NodeEquivalenceFound(rule OptRule, vertex *HeuVertex, node hybridqp.QueryNode)
	// NodeChosen is called for every node of the final plan.
	NodeChosen(node hybridqp.QueryNode)
}

type NopListener struct{}

func (NopListener) NodeDiscarded(hybridqp.QueryNode) {}

func (NopListener) NodeEquivalenceFound(OptRule, *HeuVertex, hybridqp.QueryNode) {}

func (NopListener) NodeChosen(hybridqp.QueryNode) {}

// LoggingListener traces planner events at debug level.
type LoggingListener struct {
	logger *logger.Logger
}

func NewLoggingListener(lg *logger.Logger) *LoggingListener {
	if lg == nil {
		lg = logger.NewLogger(errno.ModuleOptimizer)
	}
	return &LoggingListener{logger: lg.With(zap.String("listener", "heu"))}
}

func (l *LoggingListener) NodeDiscarded(node hybridqp.QueryNode) {
	l.logger.Debug("node discarded", zap.Uint64("node", node.ID()), zap.String("digest", node.Digest()))
}

func (l *LoggingListener) NodeEquivalenceFound(rule OptRule, vertex *HeuVertex, node hybridqp.QueryNode) {
	ruleName := ""
	if rule != nil {
		ruleName = rule.Description()
	}
	l.logger.Debug("node equivalence found",
		zap.String("rule", ruleName),
		zap.Uint64("vertex", vertex.ID()),
		zap.String("digest", node.Digest()))
}

func (l *LoggingListener) NodeChosen(node hybridqp.QueryNode) {
	l.logger.Debug("node chosen", zap.Uint64("node", node.ID()), zap.String("node_type", node.Type()))
}

// MultiListener forwards every event to all listeners in order.
type MultiListener []HeuListener

func (m MultiListener) NodeDiscarded(node hybridqp.QueryNode) {
	for _, l := range m {
		l.NodeDiscarded(node)
	}
}

func (m MultiListener) NodeEquivalenceFound(rule OptRule, vertex *HeuVertex, node hybridqp.QueryNode) {
	for _, l := range m {
		l.NodeEquivalenceFound(rule, vertex, node)
	}
}

func (m MultiListener) NodeChosen(node hybridqp.QueryNode) {
	for _, l := range m {
		l.NodeChosen(node)
	}
}
