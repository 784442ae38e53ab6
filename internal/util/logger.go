/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	nested "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var validLogLevels = map[string]log.Level{
	"trace": log.TraceLevel,
	"debug": log.DebugLevel,
	"info":  log.InfoLevel,
	"warn":  log.WarnLevel,
	"error": log.ErrorLevel,
}

func CheckLogLevel(level string) error {
	if _, ok := validLogLevels[strings.ToLower(level)]; !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

// InitLogger configures the standard logrus logger. When logCfg.File is set,
// entries are also appended to a size-rotated file.
func InitLogger(level string, logCfg LogConfig) error {
	if level == "" {
		level = logCfg.Level
	}
	if level == "" {
		level = "info"
	}
	if err := CheckLogLevel(level); err != nil {
		return err
	}

	log.SetLevel(validLogLevels[strings.ToLower(level)])
	log.SetReportCaller(log.GetLevel() >= log.TraceLevel)
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		NoColors:        !IsTerminal(os.Stderr),
		TimestampFormat: "2006-01-02 15:04:05",
	})

	var out io.Writer = os.Stderr
	if logCfg.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logCfg.File,
			MaxSize:    logCfg.MaxSizeMB,
			MaxBackups: logCfg.MaxBackups,
			Compress:   false,
		})
	}
	log.SetOutput(out)

	return nil
}
