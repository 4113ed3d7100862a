// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_RegistersDynamicTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 1
types:
  - name: NavigationSettings
    instance_id: 2f1f3a1e-1111-4c3b-9a43-5f7b8c0d2e10
    display_name: Navigation
  - name: Unassigned
unknown_top_level: ignored
`), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Types, 2)

	c := New()
	require.NoError(t, c.RegisterFile(f))

	nav, ok := c.Lookup("NavigationSettings")
	require.True(t, ok)
	assert.Equal(t, uuid.MustParse("2f1f3a1e-1111-4c3b-9a43-5f7b8c0d2e10"), nav.InstanceID)
	assert.Equal(t, "Navigation", nav.DisplayName)

	un, ok := c.Lookup("Unassigned")
	require.True(t, ok)
	assert.Equal(t, uuid.Nil, un.InstanceID)
}

func TestParseFile_Errors(t *testing.T) {
	_, err := ParseFile([]byte("version: 9\n"))
	assert.ErrorContains(t, err, "unsupported settings types version 9")

	f, err := ParseFile([]byte("version: 1\ntypes:\n  - name: X\n    instance_id: nope\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, New().RegisterFile(f), "invalid instance_id")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
