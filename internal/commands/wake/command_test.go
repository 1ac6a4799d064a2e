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

package wake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCommand_RegistersAliases(t *testing.T) {
	cmd := NewCommand()
	assert.Equal(t, "wakeup", cmd.Name())
	assert.ElementsMatch(t, []string{"purge", "cleanup"}, cmd.Aliases)
	assert.NotNil(t, cmd.Flags().Lookup("dry-run"))
}
