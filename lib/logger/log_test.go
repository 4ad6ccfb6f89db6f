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

package logger_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openGemini/heuopt/lib/config"
	"github.com/openGemini/heuopt/lib/errno"
	"github.com/openGemini/heuopt/lib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type LogLine struct {
	Level  string
	Msg    string
	Time   string
	Caller string
	Errno  string
}

func initLogger(t *testing.T, level zapcore.Level) (string, string) {
	dir := t.TempDir()

	conf := config.NewLogger(config.AppHeu)
	conf.Path = dir
	conf.Level = level

	logger.InitLogger(conf)

	return filepath.Join(dir, "heu.log"), filepath.Join(dir, "heu.error.log")
}

func TestLogger(t *testing.T) {
	filename, errFile := initLogger(t, zapcore.DebugLevel)

	errMessage := fmt.Sprintf("test error. %d", time.Now().UnixNano())
	infoMessage := fmt.Sprintf("test info. %d", time.Now().UnixNano())

	lg := logger.GetLogger()
	lg.Info(infoMessage)
	lg.Error(errMessage)
	logger.CloseLogger()

	assertFileContents(t, filename, []string{"info", "error"}, []string{infoMessage, errMessage})
	assertFileContents(t, errFile, []string{"error"}, []string{errMessage})
}

func TestLoggerLevel(t *testing.T) {
	filename, _ := initLogger(t, zapcore.DebugLevel-1)

	lg := logger.NewLogger(errno.ModuleOptimizer)
	lg.Debug("some debug")
	lg.Info("some info")
	lg.Warn("some warn")
	logger.CloseLogger()

	assertFileContents(t, filename, []string{"info", "warn"}, []string{"some info", "some warn"})

	require.NoError(t, logger.SetLevel("error"))
	assert.Equal(t, zapcore.ErrorLevel, logger.Alevel.Level())
	assert.Error(t, logger.SetLevel("loud"))
}

func TestNewLogger_Errno(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	errno.SetNode(errno.NodeLocal)
	lg := logger.NewLogger(errno.ModuleOptimizer).SetZapLogger(zap.New(core))

	err := errno.NewError(errno.InternalError, "something broke")
	lg.Error("with errno", zap.Error(err))
	lg.Error("without errno", zap.Error(errors.New("plain")))
	lg.With(zap.String("rule", "r1")).Debug("fired")

	entries := logs.All()
	require.Len(t, entries, 3)

	exp := fmt.Sprintf("%d%02d%d%04d", errno.NodeLocal, errno.ModuleOptimizer, errno.LevelWarn, errno.InternalError)
	assert.Equal(t, exp, entries[0].ContextMap()["errno"])
	_, ok := entries[1].ContextMap()["errno"]
	assert.False(t, ok)
	assert.Equal(t, "r1", entries[2].ContextMap()["rule"])
	assert.True(t, lg.IsDebugLevel())
}

func TestZapLogger(t *testing.T) {
	nop := zap.NewNop()
	logger.SetLogger(nop)
	lg := logger.NewLogger(errno.ModuleUnknown)
	assert.Same(t, nop, lg.GetZapLogger())
}

func readLog(file string) ([]*LogLine, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []*LogLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := &LogLine{}
		if err := json.Unmarshal(scanner.Bytes(), line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func assertFileContents(t *testing.T, file string, levels []string, messages []string) {
	logs, err := readLog(file)
	require.NoError(t, err)
	require.Len(t, logs, len(levels))

	for i, line := range logs {
		assert.Equal(t, levels[i], line.Level, "level of line %d", i+1)
		assert.Equal(t, messages[i], line.Msg, "msg of line %d", i+1)
	}
}

func TestInitConsoleLogger(t *testing.T) {
	defer logger.SetLogger(zap.NewNop())

	var buf bytes.Buffer
	logger.InitConsoleLogger(zapcore.AddSync(&buf))
	require.NoError(t, logger.SetLevel("warn"))

	lg := logger.NewLogger(errno.ModuleUnknown)
	lg.Info("hidden")
	lg.Warn("shown", zap.String("plan", "join.toml"))
	assert.False(t, lg.IsDebugLevel())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), `{"plan": "join.toml"}`)
}
