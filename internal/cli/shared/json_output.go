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
	"encoding/json"
	"errors"
	"os"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

// JSONError is the error object inside the {success:false, error:{...}}
// envelope.
type JSONError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// JSONResult is the success envelope: {success:true, data:...}.
type JSONResult struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// JSONFailure is the failure envelope: {success:false, error:{...}}.
type JSONFailure struct {
	Success bool      `json:"success"`
	Error   JSONError `json:"error"`
}

func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// EmitJSONResult writes {success:true, data:data} to stdout.
func EmitJSONResult(data any) error {
	return emitJSON(JSONResult{Success: true, Data: data})
}

// EmitJSONError writes {success:false, error:{code,message,details}} to
// stdout. A *steroidserrors.FaultError contributes its code and details;
// any other error is rendered with code "ERROR" and no details.
func EmitJSONError(err error) error {
	jsonErr := JSONError{Code: "ERROR", Message: err.Error()}

	var fault *steroidserrors.FaultError
	if errors.As(err, &fault) {
		jsonErr.Code = string(fault.Code)
		jsonErr.Message = fault.Message
		jsonErr.Details = fault.Details
	}

	return emitJSON(JSONFailure{Success: false, Error: jsonErr})
}
