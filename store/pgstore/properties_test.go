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

package pgstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/nodesettings/content"
)

func TestProperties_ReferencesSurvive(t *testing.T) {
	ptr := content.NodeRef{ID: 9, WorkID: 2}
	props := map[string]any{
		"TestSetting": content.NodeRef{ID: 12},
		"Pointer":     &ptr,
		"NilPointer":  (*content.NodeRef)(nil),
		"Links":       []content.NodeRef{{ID: 1}, {ID: 2, Provider: "ext"}},
		"Nested":      map[string]any{"inner": content.NodeRef{ID: 3}},
		"title":       "hello",
		"depth":       3,
		"lookalike":   map[string]any{refKey: "5", "extra": true},
	}

	raw, err := encodeProperties(props)
	require.NoError(t, err)
	got, err := decodeProperties(raw)
	require.NoError(t, err)

	assert.Equal(t, content.NodeRef{ID: 12}, got["TestSetting"])
	assert.Equal(t, ptr, got["Pointer"])
	assert.Nil(t, got["NilPointer"])
	assert.Equal(t, []any{content.NodeRef{ID: 1}, content.NodeRef{ID: 2, Provider: "ext"}}, got["Links"])
	assert.Equal(t, map[string]any{"inner": content.NodeRef{ID: 3}}, got["Nested"])
	assert.Equal(t, "hello", got["title"])
	assert.Equal(t, float64(3), got["depth"])
	assert.Equal(t, map[string]any{refKey: "5", "extra": true}, got["lookalike"])
}

func TestProperties_Empty(t *testing.T) {
	raw, err := encodeProperties(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(raw))

	got, err := decodeProperties(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = decodeProperties([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = decodeProperties([]byte("{"))
	assert.Error(t, err)
}
