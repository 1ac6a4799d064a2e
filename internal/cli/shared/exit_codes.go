// Copyright 2025 Tom Barlow
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

package shared

import (
	"errors"
	"fmt"
	"os"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

// Exit codes for every CLI subcommand.
const (
	ExitSuccess           = 0
	ExitGeneral           = 1
	ExitInvalidArgs        = 2
	ExitConfigOrUninit    = 3
	ExitNotFound          = 4
	ExitPermission        = 5
	ExitResourceLocked    = 6
	ExitHealthFailed      = 7
)

// ExitError is an error that carries the exit code HandleExitError should
// use.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Cause }

func NewExitError(code int, msg string, cause error) *ExitError {
	return &ExitError{Code: code, Message: msg, Cause: cause}
}

// faultExitCodes maps the engine's fault taxonomy onto the CLI's exit
// code table.
var faultExitCodes = map[steroidserrors.FaultCode]int{
	steroidserrors.FaultTaskNotFound:      ExitNotFound,
	steroidserrors.FaultSectionNotFound:   ExitNotFound,
	steroidserrors.FaultSessionNotFound:   ExitNotFound,
	steroidserrors.FaultNotInitialized:    ExitConfigOrUninit,
	steroidserrors.FaultMigrationRequired: ExitConfigOrUninit,
	steroidserrors.FaultTaskLocked:        ExitResourceLocked,
	steroidserrors.FaultMergeLockFenceLost:     ExitResourceLocked,
	steroidserrors.FaultMergeLockEpochMismatch: ExitResourceLocked,
	steroidserrors.FaultMergeLockExpired:       ExitResourceLocked,
	steroidserrors.FaultMergeLockNotFound:      ExitResourceLocked,
	steroidserrors.FaultLeaseFenceFailed:       ExitResourceLocked,
}

// exitCodeForFault resolves a *steroidserrors.FaultError's code to an exit
// code, defaulting to ExitGeneral for faults with no specific mapping
// (validation/git/conflict faults are all "general failure" from the
// CLI's point of view).
func exitCodeForFault(f *steroidserrors.FaultError) int {
	if code, ok := faultExitCodes[f.Code]; ok {
		return code
	}
	return ExitGeneral
}

// HandleExitError prints err (as JSON or text depending on the --json
// flag) and calls os.Exit with the appropriate code. A nil err exits 0.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	code := ExitGeneral
	var exitErr *ExitError
	var fault *steroidserrors.FaultError
	switch {
	case errors.As(err, &exitErr):
		code = exitErr.Code
	case errors.As(err, &fault):
		code = exitCodeForFault(fault)
	}

	if GetJSON() {
		_ = EmitJSONError(err)
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
	}

	os.Exit(code)
}
