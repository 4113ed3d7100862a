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

package content

import (
	"context"

	"github.com/google/uuid"
)

// Site is one tenant of the tree. Each site has a start page and an asset
// root, which may be shared with the global asset root.
type Site struct {
	ID               uuid.UUID
	Name             string
	StartPage        NodeRef
	SiteAssetsRoot   NodeRef
	GlobalAssetsRoot NodeRef
}

// SharesGlobalAssets reports whether the site has no asset root of its own.
func (s Site) SharesGlobalAssets() bool {
	return s.SiteAssetsRoot.IsEmpty() || s.SiteAssetsRoot.EqualIgnoreWork(s.GlobalAssetsRoot)
}

// SiteDirectory lists the sites hosted by the tree.
type SiteDirectory interface {
	ListSites(ctx context.Context) ([]Site, error)
}
