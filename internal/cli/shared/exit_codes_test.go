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
	"testing"

	"github.com/stretchr/testify/assert"

	steroidserrors "github.com/steroids-run/steroids/internal/errors"
)

func TestExitCodeForFault_MapsKnownCodes(t *testing.T) {
	cases := []struct {
		code steroidserrors.FaultCode
		want int
	}{
		{steroidserrors.FaultTaskNotFound, ExitNotFound},
		{steroidserrors.FaultSectionNotFound, ExitNotFound},
		{steroidserrors.FaultNotInitialized, ExitConfigOrUninit},
		{steroidserrors.FaultMigrationRequired, ExitConfigOrUninit},
		{steroidserrors.FaultTaskLocked, ExitResourceLocked},
		{steroidserrors.FaultMergeLockFenceLost, ExitResourceLocked},
		{steroidserrors.FaultLeaseFenceFailed, ExitResourceLocked},
	}
	for _, tc := range cases {
		f := steroidserrors.NewFault(tc.code, "x")
		assert.Equal(t, tc.want, exitCodeForFault(f))
	}
}

func TestExitCodeForFault_UnmappedFaultDefaultsToGeneral(t *testing.T) {
	f := steroidserrors.NewFault(steroidserrors.FaultValidationFailed, "x")
	assert.Equal(t, ExitGeneral, exitCodeForFault(f))
}
