// Copyright 2026 The Reins Authors
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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/reins-ai/reins/pkg/logger"
)

// Environment variables consulted when the corresponding CLI flag is
// not set.
const (
	logLevelEnvVar  = "LOG_LEVEL"
	logFileEnvVar   = "LOG_FILE"
	logFormatEnvVar = "LOG_FORMAT"

	defaultLogFormat = "simple"
)

// initLoggerFromCLI configures the global logger. Priority: CLI flags,
// then environment variables, then defaults. The returned cleanup
// closes the log file, if one was opened.
func initLoggerFromCLI(cliLevel, cliFile, cliFormat string) (func(), error) {
	levelStr := cliLevel
	if levelStr == "" {
		levelStr = os.Getenv(logLevelEnvVar)
	}
	level := slog.LevelInfo
	if levelStr != "" {
		parsed, err := logger.ParseLevel(levelStr)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	format := cliFormat
	if format == "" {
		format = os.Getenv(logFormatEnvVar)
	}
	if format == "" {
		format = defaultLogFormat
	}

	logFile := cliFile
	if logFile == "" {
		logFile = os.Getenv(logFileEnvVar)
	}

	output := os.Stderr
	cleanup := func() {}
	if logFile != "" {
		f, closeFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		cleanup = closeFn
	}

	logger.Init(level, output, format)
	return cleanup, nil
}
