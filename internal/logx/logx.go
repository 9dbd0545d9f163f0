// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package logx constructs the structured logger shared by every component
// in this service. Field names are stable across packages so an operator
// can grep a single stream_id or basin across thousands of interleaved
// per-stream goroutines.
package logx

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger, or a human-readable console
// logger when dev is true. Level is parsed leniently; an unrecognized
// level falls back to info.
func New(dev bool, level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	_ = lvl.UnmarshalText([]byte(level))

	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// Nop returns a logger that discards everything, used by tests that don't
// care about log output.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// NewOrDie is used only by the command entry point, where a logger failing
// to build is itself fatal before anything else can run.
func NewOrDie(dev bool, level string) *zap.Logger {
	logger, err := New(dev, level)
	if err != nil {
		// No logger exists yet to report this through, so this is the one
		// place in the repository that writes directly to stderr.
		os.Stderr.WriteString("logx: failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	return logger
}
