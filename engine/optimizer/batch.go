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
	"context"

	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/lib/errno"
	"github.com/panjf2000/ants/v2"
)

// PlannerFactory creates the planner of the i-th root. Planners, and the
// programs they run, are never shared between roots.
type PlannerFactory func(i int) (hybridqp.Planner, error)

// FindBestExps plans independent roots on a pool of concurrency workers and
// returns the plans in the order of roots. Roots not started when ctx is done
// fail with the context error, the first error is returned.
func FindBestExps(ctx context.Context, roots []hybridqp.QueryNode, newPlanner PlannerFactory, concurrency int) ([]hybridqp.QueryNode, error) {
	if len(roots) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, errno.NewThirdParty(err, errno.ModuleOptimizer)
	}
	defer pool.Release()

	results := make([]hybridqp.QueryNode, len(roots))
	errs := errno.NewErrs()
	errs.Init(len(roots), nil)

	for i := range roots {
		task := func() {
			defer func() {
				if r := recover(); r != nil {
					errs.Dispatch(errno.FromPanic(r))
				}
			}()
			if err := ctx.Err(); err != nil {
				errs.Dispatch(err)
				return
			}
			planner, err := newPlanner(i)
			if err != nil {
				errs.Dispatch(err)
				return
			}
			planner.SetRoot(roots[i])
			best, err := planner.FindBestExp()
			results[i] = best
			errs.Dispatch(err)
		}
		if err := pool.Submit(task); err != nil {
			errs.Dispatch(errno.NewThirdParty(err, errno.ModuleOptimizer))
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
