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
	"fmt"
	"log/slog"
	"maps"

	"github.com/cardinalhq/nodesettings/catalog"
	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/internal/logctx"
)

// GlobalSettings returns a snapshot of the global index: settings type
// name to the reference of its global instance.
func (s *Service) GlobalSettings(ctx context.Context) map[string]content.NodeRef {
	if !s.ready.Load() {
		return map[string]content.NodeRef{}
	}
	idx, err := s.globalIndex(ctx)
	if err != nil {
		return map[string]content.NodeRef{}
	}
	return maps.Clone(idx)
}

func (s *Service) globalIndex(ctx context.Context) (map[string]content.NodeRef, error) {
	idx, err := s.index.ReadThrough(ctx, globalIndexKey, s.buildGlobalIndex)
	if err != nil {
		logctx.FromContext(ctx).Error("Failed to build global settings index", slog.Any("error", err))
		return nil, err
	}
	return idx, nil
}

// buildGlobalIndex scans the Global Settings Root. When a type has more
// than one genuine instance there, the one carrying the type's declared
// identity wins. A failed load fails the scan so that an incomplete index
// is never cached.
func (s *Service) buildGlobalIndex(ctx context.Context) (map[string]content.NodeRef, error) {
	refs, err := s.store.Descendants(ctx, s.globalRoot)
	if err != nil {
		return nil, fmt.Errorf("scan global settings root %s: %w", s.globalRoot, err)
	}
	idx := make(map[string]content.NodeRef)
	for _, ref := range refs {
		n, err := s.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		if n == nil || !s.catalog.IsGenuine(n) {
			continue
		}
		t, _ := s.catalog.ByShape(n.Shape)
		if _, taken := idx[t.Name]; taken && n.GUID != t.InstanceID {
			continue
		}
		idx[t.Name] = n.Ref.Logical()
	}
	return idx, nil
}

// globalNode returns the global instance of t. An instance that is gone
// from the store is cached as nil until the next invalidation; a failed
// load is not cached, so the next call tries again.
func (s *Service) globalNode(ctx context.Context, t *catalog.Type) (*content.Node, bool) {
	idx, err := s.globalIndex(ctx)
	if err != nil {
		return nil, false
	}
	ref, ok := idx[t.Name]
	if !ok {
		return nil, false
	}
	n, err := s.instances.ReadThrough(ctx, instanceKeyPrefix+t.Name, func(ctx context.Context) (*content.Node, error) {
		return s.fetch(ctx, ref)
	})
	if err != nil || n == nil {
		return nil, false
	}
	return n, true
}

// UpdateSettings drops cached global lookups for n's type when n is a
// settings instance below the Global Settings Root. Call it whenever such
// a node changed; the published-event handler does.
func (s *Service) UpdateSettings(ctx context.Context, n *content.Node) {
	if n == nil || !s.ready.Load() || !s.catalog.IsGenuine(n) {
		return
	}
	if !s.isUnderGlobalRoot(ctx, n) {
		return
	}
	t, _ := s.catalog.ByShape(n.Shape)
	s.invalidateType(ctx, t.Name, n.Ref)
}

func (s *Service) invalidateType(ctx context.Context, typeName string, ref content.NodeRef) {
	s.index.Remove(globalIndexKey)
	s.instances.Remove(instanceKeyPrefix + typeName)
	logctx.FromContext(ctx).Debug("Invalidated global settings",
		slog.String("type", typeName),
		slog.String("ref", ref.String()))
}

func (s *Service) isUnderGlobalRoot(ctx context.Context, n *content.Node) bool {
	if n.Parent.EqualIgnoreWork(s.globalRoot) {
		return true
	}
	if n.Ref.IsEmpty() || n.Ref.EqualIgnoreWork(s.globalRoot) {
		return false
	}
	return s.withinGlobalRoot(ctx, n.Ref)
}

func (s *Service) invalidateAll(context.Context) {
	s.index.Clear()
	s.instances.Clear()
}
