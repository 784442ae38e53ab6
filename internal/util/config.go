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
	"errors"
	"fmt"
	"os"
	"strings"

	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var DefaultConfigPath = "/etc/halopipe/config.yaml"

var configLog = logrus.WithField("component", "Config")

type Config struct {
	HaloFinder HaloFinderConfig `mapstructure:"HaloFinder" yaml:"HaloFinder"`
	TreeMaker  TreeMakerConfig  `mapstructure:"TreeMaker" yaml:"TreeMaker"`
	Queue      QueueConfig      `mapstructure:"Queue" yaml:"Queue"`
	Log        LogConfig        `mapstructure:"Log" yaml:"Log"`
}

type HaloFinderConfig struct {
	Executable         string         `mapstructure:"Executable" yaml:"Executable"`
	BrickExecutable    string         `mapstructure:"BrickExecutable" yaml:"BrickExecutable"`
	UseBrickExecutable bool           `mapstructure:"UseBrickExecutable" yaml:"UseBrickExecutable"`
	Parameters         map[string]any `mapstructure:"Parameters" yaml:"Parameters"`
}

// Binary returns the executable the job script should run.
func (c HaloFinderConfig) Binary() string {
	if c.UseBrickExecutable && c.BrickExecutable != "" {
		return c.BrickExecutable
	}
	return c.Executable
}

type TreeMakerConfig struct {
	Executable string `mapstructure:"Executable" yaml:"Executable"`
}

type QueueConfig struct {
	System        string   `mapstructure:"System" yaml:"System"`
	SubmitCommand string   `mapstructure:"SubmitCommand" yaml:"SubmitCommand"`
	Nodes         int      `mapstructure:"Nodes" yaml:"Nodes"`
	Ppn           int      `mapstructure:"Ppn" yaml:"Ppn"`
	Walltime      string   `mapstructure:"Walltime" yaml:"Walltime"`
	Partition     string   `mapstructure:"Partition" yaml:"Partition"`
	Account       string   `mapstructure:"Account" yaml:"Account"`
	ModuleCommand string   `mapstructure:"ModuleCommand" yaml:"ModuleCommand"`
	Modules       []string `mapstructure:"Modules" yaml:"Modules"`
}

type LogConfig struct {
	Level      string `mapstructure:"Level" yaml:"Level"`
	File       string `mapstructure:"File" yaml:"File"`
	MaxSizeMB  int    `mapstructure:"MaxSizeMB" yaml:"MaxSizeMB"`
	MaxBackups int    `mapstructure:"MaxBackups" yaml:"MaxBackups"`
}

// ParseConfig loads the configuration at path on top of the built-in
// defaults. A missing file is only an error when the path was given
// explicitly by the user.
func ParseConfig(path string, explicit bool) (*Config, error) {
	v := viper.New()
	setDefaultConfig(v)

	v.SetEnvPrefix("HALOPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			configLog.Debugf("Loaded configuration from %s", path)
		case errors.Is(err, os.ErrNotExist) && !explicit:
			configLog.Debugf("No configuration at %s, using defaults", path)
		default:
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("HaloFinder.Executable", "/opt/HaloMaker/f90/HaloFinder")
	v.SetDefault("HaloFinder.BrickExecutable", "/opt/HaloMaker/f90/HaloFinder_BR")
	v.SetDefault("HaloFinder.UseBrickExecutable", true)
	v.SetDefault("HaloFinder.Parameters", map[string]any{})

	v.SetDefault("TreeMaker.Executable", "/opt/TreeMaker/TreeMaker")

	v.SetDefault("Queue.System", "pbs")
	v.SetDefault("Queue.SubmitCommand", "")
	v.SetDefault("Queue.Nodes", 1)
	v.SetDefault("Queue.Ppn", 16)
	v.SetDefault("Queue.Walltime", "4:00:00")
	v.SetDefault("Queue.Partition", "")
	v.SetDefault("Queue.Account", "")
	v.SetDefault("Queue.ModuleCommand", "/usr/bin/modulecmd")
	v.SetDefault("Queue.Modules", []string{"intel/15.0-python-3.5.1"})

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.File", "")
	v.SetDefault("Log.MaxSizeMB", 10)
	v.SetDefault("Log.MaxBackups", 3)
}

var queueSystems = map[string]bool{"pbs": true, "slurm": true, "crane": true, "local": true}

func validateConfig(cfg *Config) error {
	cfg.Queue.System = strings.ToLower(strings.TrimSpace(cfg.Queue.System))
	if !queueSystems[cfg.Queue.System] {
		return fmt.Errorf("unsupported queue system: %q", cfg.Queue.System)
	}
	if cfg.Queue.Nodes < 1 {
		return fmt.Errorf("queue nodes must be at least 1, got %d", cfg.Queue.Nodes)
	}
	if cfg.Queue.Ppn < 0 {
		return fmt.Errorf("queue ppn must not be negative, got %d", cfg.Queue.Ppn)
	}
	if _, err := ParseWalltime(cfg.Queue.Walltime); err != nil {
		return err
	}

	if cfg.HaloFinder.Parameters == nil {
		cfg.HaloFinder.Parameters = map[string]any{}
	}
	if cfg.Log.Level != "" {
		if err := CheckLogLevel(cfg.Log.Level); err != nil {
			return err
		}
	}

	return nil
}
