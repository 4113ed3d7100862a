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

	"github.com/cardinalhq/nodesettings/content"
)

type currentNodeKey struct{}

type siteKey struct{}

// WithCurrentNode records the node the current request is about.
func WithCurrentNode(ctx context.Context, ref content.NodeRef) context.Context {
	return context.WithValue(ctx, currentNodeKey{}, ref)
}

// CurrentNode returns the node recorded by WithCurrentNode.
func CurrentNode(ctx context.Context) (content.NodeRef, bool) {
	ref, ok := ctx.Value(currentNodeKey{}).(content.NodeRef)
	if !ok || ref.IsEmpty() {
		return content.EmptyRef, false
	}
	return ref, true
}

// WithSite records the site the current request is served for. Its start
// page is then consulted by every resolution.
func WithSite(ctx context.Context, site content.Site) context.Context {
	return context.WithValue(ctx, siteKey{}, site)
}

// SiteFromContext returns the site recorded by WithSite.
func SiteFromContext(ctx context.Context) (content.Site, bool) {
	site, ok := ctx.Value(siteKey{}).(content.Site)
	return site, ok
}
