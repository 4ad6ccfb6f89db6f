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

package app

import (
	"fmt"
	"runtime"
)

const MainUsage = `Rewrites query plans with heuristic rules.

Usage: ts-heu [command] [arguments]

The commands are:

    explain              optimize plan descriptions and print the result
    version              displays the version

Use "ts-heu [command] --help" for more information about a command.
`

// Version information, the value is set by the build script
var (
	Version   = "v0.1.0"
	GitCommit string
	GitBranch string
	BuildTime string
)

// FullVersion returns the full version string.
func FullVersion(app string) string {
	const format = `heuopt version info:
%s: %s
git: %s %s
build: %s
os: %s
arch: %s`

	return fmt.Sprintf(format, app, Version, GitBranch, GitCommit, BuildTime, runtime.GOOS, runtime.GOARCH)
}
