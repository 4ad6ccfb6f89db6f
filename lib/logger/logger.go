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

	"github.com/openGemini/heuopt/lib/errno"
	"go.uber.org/zap"
)

// Logger is a module scoped logger. Until SetZapLogger is called it writes to
// the global logger, so it picks up InitLogger even when created earlier.
type Logger struct {
	logger *zap.Logger
	node   errno.Node
	module errno.Module
}

func NewLogger(module errno.Module) *Logger {
	return &Logger{
		node:   errno.GetNode(),
		module: module,
	}
}

func (l *Logger) zapLogger() *zap.Logger {
	if l.logger != nil {
		return l.logger
	}
	return GetLogger()
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		logger: l.zapLogger().With(fields...),
		node:   l.node,
		module: l.module,
	}
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zapLogger().Error(msg, l.rewriteFields(fields)...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zapLogger().Warn(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zapLogger().Info(msg, fields...)
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zapLogger().Debug(msg, fields...)
}

func (l *Logger) IsDebugLevel() bool {
	return l.zapLogger().Core().Enabled(zap.DebugLevel)
}

func (l *Logger) GetZapLogger() *zap.Logger {
	return l.zapLogger()
}

func (l *Logger) SetZapLogger(lg *zap.Logger) *Logger {
	l.logger = lg
	return l
}

// rewriteFields appends the full error code, and the stack of fatal errors,
// when an *errno.Error is logged with zap.Error.
func (l *Logger) rewriteFields(fields []zap.Field) []zap.Field {
	for i := range fields {
		if fields[i].Key != "error" {
			continue
		}

		tmp, ok := fields[i].Interface.(*errno.Error)
		if !ok || tmp == nil {
			continue
		}

		fields = append(fields, zap.String("errno", l.makeErrno(tmp)))
		if tmp.Level().LogStack() && len(tmp.Stack()) > 0 {
			fields = append(fields, zap.String("stack", string(tmp.Stack())))
		}
		return fields
	}

	return fields
}

func (l *Logger) makeErrno(err *errno.Error) string {
	level := err.Level() % (errno.LevelFatal + 1)
	module := err.Module()
	if module == errno.ModuleUnknown {
		module = l.module
	}

	return fmt.Sprintf("%d%02d%d%04d", l.node, module, level, err.Errno())
}
