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

// Package resolver holds the strategies that find a settings instance
// associated with a single node.
package resolver

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/cardinalhq/nodesettings/catalog"
	"github.com/cardinalhq/nodesettings/content"
)

// Resolver tries to find the instance of t that node n is associated with.
// Resolvers never return errors; a broken association is reported as not
// found.
type Resolver interface {
	// SortOrder places the resolver in a Chain. Lower runs first.
	SortOrder() int
	TryResolve(ctx context.Context, n *content.Node, t *catalog.Type) (*content.Node, bool)
}

// Func adapts a function to a Resolver.
type Func struct {
	Order   int
	Resolve func(ctx context.Context, n *content.Node, t *catalog.Type) (*content.Node, bool)
}

func (f Func) SortOrder() int { return f.Order }

func (f Func) TryResolve(ctx context.Context, n *content.Node, t *catalog.Type) (*content.Node, bool) {
	return f.Resolve(ctx, n, t)
}

// Chain runs resolvers in ascending SortOrder and returns the first hit.
// Resolvers with equal order keep their registration order.
type Chain struct {
	resolvers []Resolver
}

// NewChain builds a chain from rs. The slice is copied.
func NewChain(rs ...Resolver) *Chain {
	sorted := slices.Clone(rs)
	slices.SortStableFunc(sorted, func(a, b Resolver) int {
		return cmp.Compare(a.SortOrder(), b.SortOrder())
	})
	return &Chain{resolvers: sorted}
}

// With returns a new chain with rs added.
func (c *Chain) With(rs ...Resolver) *Chain {
	return NewChain(append(slices.Clone(c.resolvers), rs...)...)
}

// Resolvers returns the resolvers in the order they run.
func (c *Chain) Resolvers() []Resolver {
	return slices.Clone(c.resolvers)
}

func (c *Chain) TryResolve(ctx context.Context, n *content.Node, t *catalog.Type) (*content.Node, bool) {
	if n == nil || t == nil {
		return nil, false
	}
	for _, r := range c.resolvers {
		if found, ok := r.TryResolve(ctx, n, t); ok && found != nil {
			return found, true
		}
	}
	return nil, false
}

// PropertyName is the default resolver. It reads the property named after
// the settings type and loads the node it references. It runs last.
type PropertyName struct {
	Store content.Loader
}

var _ Resolver = PropertyName{}

func (PropertyName) SortOrder() int { return math.MaxInt }

func (p PropertyName) TryResolve(ctx context.Context, n *content.Node, t *catalog.Type) (*content.Node, bool) {
	v, ok := n.Property(t.Name)
	if !ok || v == nil {
		return nil, false
	}

	var ref content.NodeRef
	switch r := v.(type) {
	case content.NodeRef:
		ref = r
	case *content.NodeRef:
		if r == nil {
			return nil, false
		}
		ref = *r
	default:
		return nil, false
	}

	target, ok := content.TryGet(ctx, p.Store, ref)
	if !ok || target.Shape != t.Shape {
		return nil, false
	}
	return target, true
}
