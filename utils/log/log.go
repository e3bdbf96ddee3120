// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a global, swappable structured logger built on
// zap. Every component in this module logs through it instead of fmt
// or the standard log package.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	global = l.Sugar()
}

// Default returns the current global logger.
func Default() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// SetGlobalLogger replaces the global logger, e.g. in tests that want to
// capture output or in a CLI's startup that wants a different encoder.
func SetGlobalLogger(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

// ConfigureLogger builds a zap logger from cfg and installs it as the
// global logger, returning the unsugared *zap.Logger so a CLI's startup
// can defer its Sync(). An empty cfg (no Encoding set) falls back to
// zap's production defaults.
func ConfigureLogger(cfg zap.Config) *zap.Logger {
	if cfg.Encoding == "" {
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	SetGlobalLogger(l.Sugar())
	return l
}

// With returns a sugared logger with keysAndValues appended to every
// subsequent log entry's context, matching zap's chaining idiom.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return Default().With(keysAndValues...)
}

func Debugf(template string, args ...interface{}) { Default().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { Default().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { Default().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { Default().Errorf(template, args...) }
func Fatalf(template string, args ...interface{}) { Default().Fatalf(template, args...) }

func Debug(args ...interface{}) { Default().Debug(args...) }
func Info(args ...interface{})  { Default().Info(args...) }
func Warn(args ...interface{})  { Default().Warn(args...) }
func Error(args ...interface{}) { Default().Error(args...) }
func Fatal(args ...interface{}) { Default().Fatal(args...) }
