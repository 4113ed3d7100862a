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
	"strings"

	"golang.org/x/text/cases"

	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/internal/logctx"
)

const minSearchLength = 2

// SearchHit is one settings instance matched by Search.
type SearchHit struct {
	Ref    content.NodeRef
	Name   string
	Type   string
	Global bool
}

// Search finds settings instances below the Settings Root and the Global
// Settings Root whose name contains query, ignoring case. Queries shorter
// than two characters match nothing. At most limit hits are returned; a
// limit <= 0 means no limit.
func (s *Service) Search(ctx context.Context, query string, limit int) []SearchHit {
	query = strings.TrimSpace(query)
	if !s.ready.Load() || len([]rune(query)) < minSearchLength {
		return nil
	}
	fold := cases.Fold()
	needle := fold.String(query)

	var hits []SearchHit
	for _, root := range []content.NodeRef{s.settingsRoot, s.globalRoot} {
		refs, err := s.store.Descendants(ctx, root)
		if err != nil {
			logctx.FromContext(ctx).Error("Failed to scan settings root",
				slog.String("root", root.String()),
				slog.Any("error", err))
			continue
		}
		for _, ref := range refs {
			n, ok := s.load(ctx, ref)
			if !ok || !s.catalog.IsGenuine(n) {
				continue
			}
			if !strings.Contains(fold.String(n.Name), needle) {
				continue
			}
			t, _ := s.catalog.ByShape(n.Shape)
			hits = append(hits, SearchHit{
				Ref:    n.Ref.Logical(),
				Name:   n.Name,
				Type:   t.Name,
				Global: root == s.globalRoot,
			})
			if limit > 0 && len(hits) >= limit {
				return hits
			}
		}
	}
	return hits
}
