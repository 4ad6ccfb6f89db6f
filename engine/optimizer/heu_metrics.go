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
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "heuopt"
	metricsSubsystem = "planner"
)

var (
	transformationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "transformations_total",
		Help:      "Number of rule results adopted into plan graphs.",
	}, []string{"rule"})

	gcRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "gc_runs_total",
		Help:      "Number of plan graph garbage collections.",
	})

	gcSweptVerticesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "gc_swept_vertices_total",
		Help:      "Number of vertices removed by plan graph garbage collection.",
	})

	planningRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "runs_total",
		Help:      "Number of planning runs started.",
	})

	plannerAbortedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "aborted_total",
		Help:      "Number of planning runs aborted by an internal error.",
	})

	planningDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "duration_seconds",
		Help:      "Duration of planning runs.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		transformationsTotal,
		gcRunsTotal,
		gcSweptVerticesTotal,
		planningRunsTotal,
		plannerAbortedTotal,
		planningDuration,
	}
}

// RegisterMetrics registers the planner collectors, registering twice is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
