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
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cardinalhq/nodesettings/content"
)

// Register binds spec.Name to the node with identity spec.ID, creating a
// published folder under spec.Parent when no such node exists. Concurrent
// registrations of the same name are serialized with an advisory lock.
func (s *Store) Register(ctx context.Context, spec content.RootSpec) (content.NodeRef, error) {
	if spec.Name == "" || spec.ID == uuid.Nil {
		return content.EmptyRef, errors.New("register root: name and id are required")
	}
	parent := spec.Parent
	if parent.IsEmpty() {
		parent = content.RootRef
	}
	shape := spec.Shape
	if shape == "" {
		shape = content.FolderShape
	}

	var out content.NodeRef
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('content_roots:' || $1))`, spec.Name); err != nil {
			return err
		}

		var (
			bound   content.NodeRef
			boundID uuid.UUID
		)
		err := tx.QueryRow(ctx, `
			SELECT n.id, n.guid FROM content_roots r JOIN content_nodes n ON n.id = r.node_id
			WHERE r.name = $1`, spec.Name).Scan(&bound.ID, &boundID)
		switch {
		case err == nil:
			if boundID != spec.ID {
				return fmt.Errorf("root %q is %s, want %s: %w", spec.Name, boundID, spec.ID, content.ErrRootConflict)
			}
			out = bound
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		err = tx.QueryRow(ctx, `SELECT id FROM content_nodes WHERE guid = $1`, spec.ID).Scan(&out.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.QueryRow(ctx, `
				INSERT INTO content_nodes (guid, parent_id, name, shape, status, access)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`,
				spec.ID, parent.ID, spec.Name, shape, content.StatusPublished, content.AccessFull,
			).Scan(&out.ID)
		}
		if err != nil {
			return mapWriteError(fmt.Sprintf("register root %q", spec.Name), err)
		}

		_, err = tx.Exec(ctx, `INSERT INTO content_roots (name, node_id) VALUES ($1, $2)`, spec.Name, out.ID)
		return err
	})
	if err != nil {
		return content.EmptyRef, err
	}
	return out, nil
}

func (s *Store) Root(ctx context.Context, name string) (content.NodeRef, error) {
	var ref content.NodeRef
	if err := s.db.QueryRow(ctx, `SELECT node_id FROM content_roots WHERE name = $1`, name).Scan(&ref.ID); err != nil {
		return content.EmptyRef, notFound(fmt.Sprintf("root %q", name), err)
	}
	return ref, nil
}

func (s *Store) ListSites(ctx context.Context) ([]content.Site, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, start_page, site_assets_root, global_assets_root
		FROM sites ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	sites, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (content.Site, error) {
		var (
			site                       content.Site
			startPage, assets, gAssets *int64
		)
		if err := row.Scan(&site.ID, &site.Name, &startPage, &assets, &gAssets); err != nil {
			return site, err
		}
		site.StartPage = refOf(startPage)
		site.SiteAssetsRoot = refOf(assets)
		site.GlobalAssetsRoot = refOf(gAssets)
		return site, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return sites, nil
}

// UpsertSite adds or replaces a site definition.
func (s *Store) UpsertSite(ctx context.Context, site content.Site) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sites (id, name, start_page, site_assets_root, global_assets_root)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			start_page = EXCLUDED.start_page,
			site_assets_root = EXCLUDED.site_assets_root,
			global_assets_root = EXCLUDED.global_assets_root`,
		site.ID, site.Name, idOf(site.StartPage), idOf(site.SiteAssetsRoot), idOf(site.GlobalAssetsRoot))
	if err != nil {
		return fmt.Errorf("upsert site %s: %w", site.ID, err)
	}
	return nil
}

func refOf(id *int64) content.NodeRef {
	if id == nil {
		return content.EmptyRef
	}
	return content.NodeRef{ID: *id}
}

func idOf(ref content.NodeRef) *int64 {
	if ref.IsEmpty() {
		return nil
	}
	return &ref.ID
}
