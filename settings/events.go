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
	"log/slog"

	"github.com/cardinalhq/nodesettings/changes"
	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/internal/logctx"
)

func (s *Service) onPublished(ctx context.Context, ev changes.Event) changes.Decision {
	s.UpdateSettings(ctx, ev.Node)
	return changes.Decision{}
}

// onMoving refuses to move the Global Settings Root, or anything holding a
// global instance to a place outside that root. Moves into or out of the
// root invalidate the global lookups.
func (s *Service) onMoving(ctx context.Context, ev changes.Event) changes.Decision {
	if ev.Node == nil || !s.ready.Load() {
		return changes.Decision{}
	}
	if s.holdsGlobalRoot(ctx, ev.Node.Ref) ||
		(!s.withinGlobalRoot(ctx, ev.Target) && s.holdsProtected(ctx, ev.Node)) {
		logctx.FromContext(ctx).Warn("Refused to move global settings instance",
			slog.String("ref", ev.Node.Ref.String()),
			slog.String("target", ev.Target.String()))
		return changes.Decision{Cancel: true, Reason: s.opts.Messages.MoveGlobal}
	}
	if s.isUnderGlobalRoot(ctx, ev.Node) || s.withinGlobalRoot(ctx, ev.Target) {
		s.invalidateNode(ctx, ev.Node)
	}
	return changes.Decision{}
}

// onDeleting refuses to delete the Global Settings Root or anything
// holding a global instance.
func (s *Service) onDeleting(ctx context.Context, ev changes.Event) changes.Decision {
	if ev.Node == nil || !s.ready.Load() {
		return changes.Decision{}
	}
	if s.holdsGlobalRoot(ctx, ev.Node.Ref) || s.holdsProtected(ctx, ev.Node) {
		logctx.FromContext(ctx).Warn("Refused to delete global settings instance",
			slog.String("ref", ev.Node.Ref.String()))
		return changes.Decision{Cancel: true, Reason: s.opts.Messages.DeleteGlobal}
	}
	if s.isUnderGlobalRoot(ctx, ev.Node) {
		s.invalidateNode(ctx, ev.Node)
	}
	return changes.Decision{}
}

// invalidateNode drops the cached lookups n can affect: its own type for a
// settings instance, everything for a folder that may contain some.
func (s *Service) invalidateNode(ctx context.Context, n *content.Node) {
	if s.catalog.IsGenuine(n) {
		t, _ := s.catalog.ByShape(n.Shape)
		s.invalidateType(ctx, t.Name, n.Ref)
		return
	}
	s.invalidateAll(ctx)
}

// isIdentityInstance reports whether n is a genuine settings instance
// carrying its type's declared identity. Below the Global Settings Root
// such an instance is protected.
func (s *Service) isIdentityInstance(n *content.Node) bool {
	if !s.catalog.IsGenuine(n) {
		return false
	}
	t, _ := s.catalog.ByShape(n.Shape)
	return n.GUID == t.InstanceID
}

// holdsGlobalRoot reports whether ref is the Global Settings Root or one
// of its ancestors.
func (s *Service) holdsGlobalRoot(ctx context.Context, ref content.NodeRef) bool {
	if ref.IsEmpty() {
		return false
	}
	if ref.EqualIgnoreWork(s.globalRoot) {
		return true
	}
	anc, err := s.walker.Ancestors(ctx, s.globalRoot)
	if err != nil {
		logctx.FromContext(ctx).Error("Failed to walk global settings root", slog.Any("error", err))
		return true
	}
	for _, a := range anc {
		if a.EqualIgnoreWork(ref) {
			return true
		}
	}
	return false
}

// holdsProtected reports whether n or anything below it is a protected
// global instance. A subtree that cannot be read counts as protected.
func (s *Service) holdsProtected(ctx context.Context, n *content.Node) bool {
	if !s.isUnderGlobalRoot(ctx, n) {
		return false
	}
	if s.isIdentityInstance(n) {
		return true
	}
	ll := logctx.FromContext(ctx)
	refs, err := s.store.Descendants(ctx, n.Ref)
	if err != nil {
		ll.Error("Failed to scan for global settings instances",
			slog.String("ref", n.Ref.String()),
			slog.Any("error", err))
		return true
	}
	for _, ref := range refs {
		d, err := s.fetch(ctx, ref)
		if err != nil {
			return true
		}
		if d != nil && s.isIdentityInstance(d) {
			return true
		}
	}
	return false
}

// withinGlobalRoot reports whether ref is the Global Settings Root or lies
// below it.
func (s *Service) withinGlobalRoot(ctx context.Context, ref content.NodeRef) bool {
	if ref.IsEmpty() {
		return false
	}
	if ref.EqualIgnoreWork(s.globalRoot) {
		return true
	}
	anc, err := s.walker.Ancestors(ctx, ref)
	if err != nil {
		return false
	}
	for _, a := range anc {
		if a.EqualIgnoreWork(s.globalRoot) {
			return true
		}
	}
	return false
}
