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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type HaloCmdError = int

// general
const (
	ErrorSuccess HaloCmdError = 0
	ErrorGeneric HaloCmdError = 1
	ErrorCmdArg  HaloCmdError = 2
	ErrorConfig  HaloCmdError = 3
)

// pipeline stages
const (
	ErrorDiscovery HaloCmdError = 4
	ErrorDataset   HaloCmdError = 5
	ErrorWrite     HaloCmdError = 6
	ErrorSubmit    HaloCmdError = 7
	ErrorLink      HaloCmdError = 8
	ErrorStatus    HaloCmdError = 9
)

// HaloError carries the exit code the command should terminate with.
type HaloError struct {
	Code    HaloCmdError
	Message string
	Err     error
}

func (e *HaloError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("exit code %d", e.Code)
	}
}

func (e *HaloError) Unwrap() error {
	return e.Err
}

func NewHaloErr(code HaloCmdError, msg string) *HaloError {
	return &HaloError{Code: code, Message: msg}
}

func WrapHaloErr(code HaloCmdError, msg string, err error) *HaloError {
	return &HaloError{Code: code, Message: msg, Err: err}
}

// ExitCode maps any error returned by a command to a process exit code.
func ExitCode(err error) HaloCmdError {
	if err == nil {
		return ErrorSuccess
	}
	var haloErr *HaloError
	if errors.As(err, &haloErr) {
		return haloErr.Code
	}
	return ErrorGeneric
}

// RunEWrapperForLeafCommand silences cobra's own error and usage printing on
// every leaf command so that RunAndHandleExit is the only place reporting.
func RunEWrapperForLeafCommand(cmd *cobra.Command) {
	if !cmd.HasSubCommands() {
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		return
	}
	cmd.SilenceErrors = true
	for _, sub := range cmd.Commands() {
		RunEWrapperForLeafCommand(sub)
	}
}

func RunAndHandleExit(cmd *cobra.Command) {
	err := cmd.Execute()
	if err == nil {
		os.Exit(ErrorSuccess)
	}

	var haloErr *HaloError
	if errors.As(err, &haloErr) {
		if haloErr.Message != "" || haloErr.Err != nil {
			log.Error(haloErr.Error())
		}
		os.Exit(haloErr.Code)
	}

	log.Error(err)
	os.Exit(ErrorGeneric)
}
