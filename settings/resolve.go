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

package settings

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/nodesettings/catalog"
	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/internal/logctx"
)

const (
	tierSelf     = "self"
	tierAncestor = "ancestor"
	tierGlobal   = "global"
	tierMiss     = "miss"
)

// Get resolves the settings of type S for the node at ref: the instance the
// node itself is associated with, else the one of its nearest ancestor,
// else the global instance.
func Get[S any, PS interface {
	*S
	catalog.Settings
}](ctx context.Context, s *Service, ref content.NodeRef) (PS, bool) {
	t, ok := catalog.TypeOf[S](s.catalog)
	if !ok {
		return nil, false
	}
	v, ok := s.resolve(ctx, t, ref)
	if !ok {
		return nil, false
	}
	return catalog.As[S, PS](v)
}

// GetCurrent resolves S for the node recorded with WithCurrentNode. Without
// one it reports not found.
func GetCurrent[S any, PS interface {
	*S
	catalog.Settings
}](ctx context.Context, s *Service) (PS, bool) {
	ref, ok := CurrentNode(ctx)
	if !ok || !s.ready.Load() {
		return nil, false
	}
	return Get[S, PS](ctx, s, ref)
}

// GetGlobal returns the global instance of S.
func GetGlobal[S any, PS interface {
	*S
	catalog.Settings
}](ctx context.Context, s *Service) (PS, bool) {
	t, ok := catalog.TypeOf[S](s.catalog)
	if !ok {
		return nil, false
	}
	v, ok := s.resolveGlobal(ctx, t)
	if !ok {
		return nil, false
	}
	return catalog.As[S, PS](v)
}

// GetRecursive yields every distinct instance of S found for ref: the
// node's own, then each ancestor's nearest first, then the global one.
// The sequence is lazy and can be iterated only once.
func GetRecursive[S any, PS interface {
	*S
	catalog.Settings
}](ctx context.Context, s *Service, ref content.NodeRef) iter.Seq[PS] {
	t, _ := catalog.TypeOf[S](s.catalog)
	all := s.resolveAll(ctx, t, ref)
	return func(yield func(PS) bool) {
		for v := range all {
			ps, ok := catalog.As[S, PS](v)
			if !ok {
				continue
			}
			if !yield(ps) {
				return
			}
		}
	}
}

// Resolve is Get for a type known only by name.
func (s *Service) Resolve(ctx context.Context, typeName string, ref content.NodeRef) (catalog.Settings, bool) {
	t, ok := s.catalog.Lookup(typeName)
	if !ok {
		return nil, false
	}
	return s.resolve(ctx, t, ref)
}

// ResolveCurrent is GetCurrent for a type known only by name.
func (s *Service) ResolveCurrent(ctx context.Context, typeName string) (catalog.Settings, bool) {
	ref, ok := CurrentNode(ctx)
	if !ok {
		return nil, false
	}
	return s.Resolve(ctx, typeName, ref)
}

// ResolveGlobal is GetGlobal for a type known only by name.
func (s *Service) ResolveGlobal(ctx context.Context, typeName string) (catalog.Settings, bool) {
	t, ok := s.catalog.Lookup(typeName)
	if !ok {
		return nil, false
	}
	return s.resolveGlobal(ctx, t)
}

// ResolveAll is GetRecursive for a type known only by name.
func (s *Service) ResolveAll(ctx context.Context, typeName string, ref content.NodeRef) iter.Seq[catalog.Settings] {
	t, _ := s.catalog.Lookup(typeName)
	return s.resolveAll(ctx, t, ref)
}

func (s *Service) resolve(ctx context.Context, t *catalog.Type, ref content.NodeRef) (catalog.Settings, bool) {
	if !s.ready.Load() {
		return nil, false
	}
	n, tier := s.resolveNode(ctx, t, ref)
	recordResolve(ctx, t.Name, tier)
	if n == nil {
		return nil, false
	}
	return s.materialize(ctx, t, n)
}

func (s *Service) resolveGlobal(ctx context.Context, t *catalog.Type) (catalog.Settings, bool) {
	if !s.ready.Load() {
		return nil, false
	}
	n, ok := s.globalNode(ctx, t)
	if !ok {
		recordResolve(ctx, t.Name, tierMiss)
		return nil, false
	}
	recordResolve(ctx, t.Name, tierGlobal)
	return s.materialize(ctx, t, n)
}

func (s *Service) resolveNode(ctx context.Context, t *catalog.Type, ref content.NodeRef) (*content.Node, string) {
	if node, ok := s.load(ctx, ref); ok {
		if found, ok := s.chain.TryResolve(ctx, node, t); ok {
			return found, tierSelf
		}
	}
	for _, a := range s.ancestors(ctx, ref) {
		node, ok := s.load(ctx, a)
		if !ok {
			continue
		}
		if found, ok := s.chain.TryResolve(ctx, node, t); ok {
			return found, tierAncestor
		}
	}
	if n, ok := s.globalNode(ctx, t); ok {
		return n, tierGlobal
	}
	return nil, tierMiss
}

func (s *Service) resolveAll(ctx context.Context, t *catalog.Type, ref content.NodeRef) iter.Seq[catalog.Settings] {
	var consumed atomic.Bool
	return func(yield func(catalog.Settings) bool) {
		if t == nil || !s.ready.Load() || consumed.Swap(true) {
			return
		}
		seen := mapset.NewThreadUnsafeSet[content.NodeRef]()
		emit := func(n *content.Node) bool {
			if !seen.Add(n.Ref.Logical()) {
				return true
			}
			v, ok := s.materialize(ctx, t, n)
			if !ok {
				return true
			}
			return yield(v)
		}

		if node, ok := s.load(ctx, ref); ok {
			if found, ok := s.chain.TryResolve(ctx, node, t); ok && !emit(found) {
				return
			}
		}
		for _, a := range s.ancestors(ctx, ref) {
			node, ok := s.load(ctx, a)
			if !ok {
				continue
			}
			if found, ok := s.chain.TryResolve(ctx, node, t); ok && !emit(found) {
				return
			}
		}
		if g, ok := s.globalNode(ctx, t); ok {
			emit(g)
		}
	}
}

// ancestors returns the nodes to consult after ref itself: the walker's
// ancestors without the tree root and without repeats, followed by the
// current site's start page when the walk did not reach it.
func (s *Service) ancestors(ctx context.Context, ref content.NodeRef) []content.NodeRef {
	var raw []content.NodeRef
	if !ref.IsEmpty() {
		var err error
		raw, err = s.walker.Ancestors(ctx, ref)
		if err != nil && !errors.Is(err, content.ErrNotFound) {
			logctx.FromContext(ctx).Error("Failed to list ancestors",
				slog.String("ref", ref.String()),
				slog.Any("error", err))
		}
	}

	seen := mapset.NewThreadUnsafeSet(ref.Logical(), content.RootRef)
	out := make([]content.NodeRef, 0, len(raw)+1)
	for _, a := range raw {
		if seen.Add(a.Logical()) {
			out = append(out, a)
		}
	}
	if s.opts.DisableStartPageInjection {
		return out
	}
	if site, ok := SiteFromContext(ctx); ok && !site.StartPage.IsEmpty() && seen.Add(site.StartPage.Logical()) {
		out = append(out, site.StartPage)
	}
	return out
}

// load reads ref for a single lookup, where any failure means the tier
// contributes nothing.
func (s *Service) load(ctx context.Context, ref content.NodeRef) (*content.Node, bool) {
	n, err := s.fetch(ctx, ref)
	return n, err == nil && n != nil
}

// fetch loads ref. A missing node is (nil, nil); any other store failure
// is logged and returned.
func (s *Service) fetch(ctx context.Context, ref content.NodeRef) (*content.Node, error) {
	if ref.IsEmpty() {
		return nil, nil
	}
	n, err := s.store.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return nil, nil
		}
		logctx.FromContext(ctx).Error("Failed to load node",
			slog.String("ref", ref.String()),
			slog.Any("error", err))
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	return n, nil
}

func (s *Service) materialize(ctx context.Context, t *catalog.Type, n *content.Node) (catalog.Settings, bool) {
	v, err := t.Materialize(n)
	if err != nil {
		logctx.FromContext(ctx).Error("Failed to decode settings instance",
			slog.String("type", t.Name),
			slog.String("ref", n.Ref.String()),
			slog.Any("error", err))
		return nil, false
	}
	return v, true
}
