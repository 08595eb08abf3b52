/*
 * Copyright 2025 Syncplane Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger zerolog.Logger

const logFolder = "LOG_FOLDER"

func init() {
	// console-only until Init wires the file sink
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger = zerolog.New(console).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// Init attaches a rotating file sink next to the console writer. The log
// folder is taken from viper so the command surface controls placement.
func Init() {
	folder := viper.GetString(logFolder)
	if folder == "" {
		folder = os.TempDir()
	}

	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(folder, "syncplane.log"),
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	multi := zerolog.MultiLevelWriter(console, fileSink)

	level := zerolog.InfoLevel
	if viper.GetBool("DEBUG_LOGS") {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(multi).Level(level).With().Timestamp().Logger()
}

func Debugf(format string, args ...any) {
	logger.Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	logger.Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	logger.Warn().Msgf(format, args...)
}

func Errorf(format string, args ...any) {
	logger.Error().Msgf(format, args...)
}

func Fatal(args ...any) {
	logger.Fatal().Msg(fmt.Sprint(args...))
}
