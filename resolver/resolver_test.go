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

package resolver

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/nodesettings/catalog"
	"github.com/cardinalhq/nodesettings/content"
)

type fakeLoader struct {
	nodes map[int64]*content.Node
	fail  map[int64]bool
	gets  atomic.Int32
}

func (f *fakeLoader) Get(_ context.Context, ref content.NodeRef) (*content.Node, error) {
	f.gets.Add(1)
	if f.fail[ref.ID] {
		return nil, errors.New("store unavailable")
	}
	n, ok := f.nodes[ref.ID]
	if !ok {
		return nil, content.ErrNotFound
	}
	return n, nil
}

func (f *fakeLoader) GetByGUID(context.Context, uuid.UUID) (*content.Node, error) {
	return nil, content.ErrNotFound
}

func (f *fakeLoader) Children(context.Context, content.NodeRef) ([]*content.Node, error) {
	return nil, nil
}

func (f *fakeLoader) Descendants(context.Context, content.NodeRef) ([]content.NodeRef, error) {
	return nil, nil
}

type testSetting struct {
	catalog.Instance
}

func newType(t *testing.T) *catalog.Type {
	t.Helper()
	typ, err := catalog.Register[testSetting](catalog.New(), catalog.TypeInfo{
		Name:       "TestSetting",
		InstanceID: uuid.New(),
	})
	require.NoError(t, err)
	return typ
}

func TestPropertyName_TryResolve(t *testing.T) {
	typ := newType(t)
	instance := &content.Node{Ref: content.NodeRef{ID: 50}, Shape: "TestSetting"}
	wrongShape := &content.Node{Ref: content.NodeRef{ID: 51}, Shape: "Page"}
	loader := &fakeLoader{
		nodes: map[int64]*content.Node{50: instance, 51: wrongShape},
		fail:  map[int64]bool{52: true},
	}
	r := PropertyName{Store: loader}
	ptr := content.NodeRef{ID: 50}

	tests := []struct {
		name  string
		props map[string]any
		want  *content.Node
	}{
		{"value ref", map[string]any{"TestSetting": content.NodeRef{ID: 50}}, instance},
		{"pointer ref", map[string]any{"TestSetting": &ptr}, instance},
		{"nil pointer", map[string]any{"TestSetting": (*content.NodeRef)(nil)}, nil},
		{"missing property", map[string]any{"Other": content.NodeRef{ID: 50}}, nil},
		{"nil property", map[string]any{"TestSetting": nil}, nil},
		{"not a reference", map[string]any{"TestSetting": "50"}, nil},
		{"empty reference", map[string]any{"TestSetting": content.EmptyRef}, nil},
		{"dangling reference", map[string]any{"TestSetting": content.NodeRef{ID: 99}}, nil},
		{"load failure swallowed", map[string]any{"TestSetting": content.NodeRef{ID: 52}}, nil},
		{"wrong shape", map[string]any{"TestSetting": content.NodeRef{ID: 51}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &content.Node{Ref: content.NodeRef{ID: 10}, Properties: tt.props}
			got, ok := r.TryResolve(context.Background(), n, typ)
			if tt.want == nil {
				assert.False(t, ok)
				assert.Nil(t, got)
				return
			}
			require.True(t, ok)
			assert.Same(t, tt.want, got)
		})
	}
}

func TestPropertyName_SortsLast(t *testing.T) {
	assert.Equal(t, math.MaxInt, PropertyName{}.SortOrder())
}

func TestChain_OrderAndFirstWins(t *testing.T) {
	typ := newType(t)
	var calls []string
	mk := func(name string, order int, hit *content.Node) Resolver {
		return Func{Order: order, Resolve: func(context.Context, *content.Node, *catalog.Type) (*content.Node, bool) {
			calls = append(calls, name)
			return hit, hit != nil
		}}
	}
	hitA := &content.Node{Ref: content.NodeRef{ID: 1}}
	hitB := &content.Node{Ref: content.NodeRef{ID: 2}}

	chain := NewChain(
		mk("default", math.MaxInt, hitB),
		mk("custom-miss", 5, nil),
		mk("custom-hit", 10, hitA),
		mk("custom-first", 1, nil),
	)

	got, ok := chain.TryResolve(context.Background(), &content.Node{}, typ)
	require.True(t, ok)
	assert.Same(t, hitA, got)
	assert.Equal(t, []string{"custom-first", "custom-miss", "custom-hit"}, calls)
}

func TestChain_StableForEqualOrder(t *testing.T) {
	a := Func{Order: 3}
	b := Func{Order: 3, Resolve: nil}
	c := Func{Order: 1}
	rs := NewChain(a, b, c).Resolvers()
	require.Len(t, rs, 3)
	assert.Equal(t, 1, rs[0].SortOrder())
	assert.Equal(t, 3, rs[1].SortOrder())
}

func TestChain_AllRefuse(t *testing.T) {
	typ := newType(t)
	chain := NewChain(PropertyName{Store: &fakeLoader{}})
	got, ok := chain.TryResolve(context.Background(), &content.Node{}, typ)
	assert.False(t, ok)
	assert.Nil(t, got)

	got, ok = chain.TryResolve(context.Background(), nil, typ)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestChain_With(t *testing.T) {
	hit := &content.Node{Ref: content.NodeRef{ID: 7}}
	base := NewChain(PropertyName{Store: &fakeLoader{}})
	extended := base.With(Func{Order: 0, Resolve: func(context.Context, *content.Node, *catalog.Type) (*content.Node, bool) {
		return hit, true
	}})

	assert.Len(t, base.Resolvers(), 1)
	require.Len(t, extended.Resolvers(), 2)
	got, ok := extended.TryResolve(context.Background(), &content.Node{}, newType(t))
	require.True(t, ok)
	assert.Same(t, hit, got)
}
