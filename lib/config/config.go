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

package config

import (
	"os"
	"path"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	itoml "github.com/influxdata/influxdb/toml"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// EnvPrefix is the prefix of environment variables overriding configuration items,
// e.g. HEU_PLANNER_MATCH_LIMIT.
const EnvPrefix = "HEU"

type Validator interface {
	Validate() error
}

type Config interface {
	ApplyEnvOverrides(func(string) string) error
	Validate() error
	GetLogging() *Logger
}

type App string

const (
	AppHeu App = "heu"
)

func Parse(conf Config, path string) error {
	if path == "" {
		return nil
	}

	return fromTomlFile(conf, path)
}

func fromTomlFile(c Config, p string) error {
	content, err := os.ReadFile(path.Clean(p))
	if err != nil {
		return errors.Wrapf(err, "read config %s", p)
	}

	dec := unicode.BOMOverride(transform.Nop)
	content, _, err = transform.Bytes(dec, content)
	if err != nil {
		return err
	}
	return fromToml(c, string(content))
}

func fromToml(c Config, input string) error {
	_, err := toml.Decode(input, c)
	return errors.Wrap(err, "decode toml")
}

// HeuOpt is the configuration of the heuristic optimizer tools.
type HeuOpt struct {
	Logging Logger  `toml:"logging"`
	Planner Planner `toml:"planner"`
	Program Program `toml:"program"`
}

// NewHeuOpt returns an instance of HeuOpt with reasonable defaults.
func NewHeuOpt() *HeuOpt {
	return &HeuOpt{
		Logging: NewLogger(AppHeu),
		Planner: NewPlanner(),
		Program: NewProgram(),
	}
}

func (c *HeuOpt) ApplyEnvOverrides(getenv func(string) string) error {
	return itoml.ApplyEnvOverrides(getenv, EnvPrefix, c)
}

func (c *HeuOpt) Validate() error {
	items := []Validator{
		c.Logging,
		c.Planner,
		c.Program,
	}

	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *HeuOpt) GetLogging() *Logger {
	return &c.Logging
}

// Load parses the file at path on top of the defaults, then applies env overrides and validates.
func Load(p string, getenv func(string) string) (*HeuOpt, error) {
	conf := NewHeuOpt()
	if err := Parse(conf, p); err != nil {
		return nil, err
	}
	if err := conf.ApplyEnvOverrides(getenv); err != nil {
		return nil, errors.Wrap(err, "apply env overrides")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
