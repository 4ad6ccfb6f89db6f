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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/openGemini/heuopt/engine/hybridqp"
	"github.com/openGemini/heuopt/engine/logicplan"
	"github.com/openGemini/heuopt/engine/optimizer"
	"github.com/openGemini/heuopt/lib/config"
	"github.com/openGemini/heuopt/lib/errno"
	"github.com/openGemini/heuopt/lib/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ExplainOptions struct {
	ConfigPath string
	Stats      bool
	Verbose    bool
	// LogOutput receives the verbose log when no config file is given, stderr if nil.
	LogOutput io.Writer
}

var explainOptions = ExplainOptions{}

var explainCmd = &cobra.Command{
	Use:   "explain [flags] plan.toml...",
	Short: "Optimize plan descriptions and print the resulting plans",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunExplain(cmd.Context(), cmd.OutOrStdout(), explainOptions, args)
	},
}

func init() {
	explainCmd.Flags().StringVarP(&explainOptions.ConfigPath, "config", "c", "", "heuopt config file, the standard program is used without one.")
	explainCmd.Flags().BoolVar(&explainOptions.Stats, "stats", false, "print planner metrics after the plans.")
	explainCmd.Flags().BoolVarP(&explainOptions.Verbose, "verbose", "v", false, "log every rule firing at debug level.")
}

// RunExplain plans every described plan with the configured program, plans
// are printed in the order of paths.
func RunExplain(ctx context.Context, w io.Writer, opts ExplainOptions, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	conf, err := config.Load(opts.ConfigPath, os.Getenv)
	if err != nil {
		return err
	}
	if opts.ConfigPath != "" {
		logger.InitLogger(conf.Logging)
		defer logger.CloseLogger()
	} else if opts.Verbose {
		out := opts.LogOutput
		if out == nil {
			out = os.Stderr
		}
		logger.InitConsoleLogger(zapcore.AddSync(out))
		defer logger.CloseLogger()
	}
	if opts.Verbose {
		if err := logger.SetLevel("debug"); err != nil {
			return errno.NewBuiltIn(err, errno.ModuleCLI)
		}
	}

	specs := make([]*logicplan.PlanSpec, 0, len(paths))
	roots := make([]hybridqp.QueryNode, 0, len(paths))
	for _, p := range paths {
		spec, err := logicplan.LoadPlanSpec(p)
		if err != nil {
			return errors.Wrapf(err, "load %s", p)
		}
		root, err := spec.Build()
		if err != nil {
			return errors.Wrapf(err, "build %s", p)
		}
		specs = append(specs, spec)
		roots = append(roots, root)
	}

	lg := logger.NewLogger(errno.ModuleCLI)
	newPlanner := func(i int) (hybridqp.Planner, error) {
		program, err := newProgram(conf.Program)
		if err != nil {
			return nil, err
		}
		converters, err := specs[i].ConverterRules()
		if err != nil {
			return nil, err
		}
		planner, err := optimizer.NewHeuPlannerFromConfig(conf.Planner, program, logicplan.NewStandardRegistry(converters...))
		if err != nil {
			return nil, err
		}
		planner.SetRequestedRootTraits(specs[i].RequestedRootTraits())
		if opts.Verbose {
			planner.SetListener(optimizer.NewLoggingListener(lg.With(zap.String("plan", paths[i]))))
		}
		return planner, nil
	}

	reg := prometheus.NewRegistry()
	if err := optimizer.RegisterMetrics(reg); err != nil {
		return err
	}

	plans, err := optimizer.FindBestExps(ctx, roots, newPlanner, conf.Planner.BatchConcurrency)
	if err != nil {
		return err
	}

	for i, plan := range plans {
		if _, err := fmt.Fprintf(w, "%s\n%s\n", paths[i], logicplan.Explain(plan)); err != nil {
			return errno.NewBuiltIn(err, errno.ModuleCLI)
		}
	}
	if opts.Stats {
		return writeStats(w, reg)
	}
	return nil
}

// newProgram builds the configured program, the standard one if none is configured.
func newProgram(conf config.Program) (*optimizer.HeuProgram, error) {
	if len(conf.Instructions) == 0 {
		return logicplan.StandardProgram(), nil
	}
	return optimizer.NewHeuProgramFromConfig(conf)
}

func writeStats(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errno.NewBuiltIn(err, errno.ModuleCLI)
		}
	}
	return nil
}
