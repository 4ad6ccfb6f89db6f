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

package logger

import (
	"fmt"
	"sync"

	"github.com/openGemini/heuopt/lib/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
	hooks  []*lumberjack.Logger
)

var Alevel = zap.NewAtomicLevel()

func SetLevel(lev string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(lev)); err != nil {
		return err
	}
	Alevel.SetLevel(l)

	return nil
}

// InitLogger replaces the global logger with one writing json lines to
// <path>/<app>.log, errors are also written to <path>/<app>.error.log.
func InitLogger(conf config.Logger) {
	lg := getLogger(conf)

	mu.Lock()
	defer mu.Unlock()
	logger = lg
}

// InitConsoleLogger replaces the global logger with one writing console lines
// to w, filtered by Alevel.
func InitConsoleLogger(w zapcore.WriteSyncer) {
	lg := zap.New(zapcore.NewCore(newEncoder("console"), zapcore.Lock(w), Alevel))

	mu.Lock()
	defer mu.Unlock()
	logger = lg
}

func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func SetLogger(zapLogger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = zapLogger
}

func CloseLogger() {
	_ = GetLogger().Sync()
	closeHooks()
}

func getLogger(conf config.Logger) *zap.Logger {
	hookNormal := conf.NewLumberjackLogger(conf.GetApp())
	hookError := conf.NewLumberjackLogger(makeErrFileName(conf.GetApp()))

	mu.Lock()
	hooks = append(hooks, hookNormal, hookError)
	mu.Unlock()

	encoder := newEncoder(conf.Format)

	levelError := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	Alevel.SetLevel(rewriteLevel(conf.Level))

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(hookNormal), Alevel),
		zapcore.NewCore(encoder, zapcore.AddSync(hookError), levelError),
	)

	return zap.New(core, zap.AddCaller())
}

func rewriteLevel(level zapcore.Level) zapcore.Level {
	if level < zap.DebugLevel || level > zap.FatalLevel {
		level = zap.InfoLevel
	}

	return level
}

func makeErrFileName(fileName string) string {
	return fmt.Sprintf("%s.error", fileName)
}

func closeHooks() {
	mu.Lock()
	defer mu.Unlock()
	for _, h := range hooks {
		_ = h.Close()
	}
	hooks = nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}
