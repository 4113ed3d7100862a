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

// Package pgstore keeps the content tree in Postgres.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/language"

	"github.com/cardinalhq/nodesettings/changes"
	"github.com/cardinalhq/nodesettings/content"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store implements the content tree interfaces on top of Postgres.
type Store struct {
	db       DB
	notifier changes.Notifier
}

var (
	_ content.Store          = (*Store)(nil)
	_ content.AncestorWalker = (*Store)(nil)
	_ content.RootRegistry   = (*Store)(nil)
	_ content.SiteDirectory  = (*Store)(nil)
)

// New returns a store using db. A nil notifier disables change events.
func New(db DB, notifier changes.Notifier) *Store {
	return &Store{db: db, notifier: notifier}
}

const nodeColumns = `id, work_id, guid, parent_id, name, shape, properties, status, access,
	language, master_language, existing_languages, start_publish, stop_publish, pending_publish`

func scanNode(row pgx.Row) (*content.Node, error) {
	var (
		n            content.Node
		parentID     *int64
		props        []byte
		lang, master *string
		existing     []string
		start, stop  *time.Time
		pending      bool
	)
	if err := row.Scan(&n.Ref.ID, &n.Ref.WorkID, &n.GUID, &parentID, &n.Name, &n.Shape, &props,
		&n.Status, &n.Access, &lang, &master, &existing, &start, &stop, &pending); err != nil {
		return nil, err
	}
	if parentID != nil {
		n.Parent = content.NodeRef{ID: *parentID}
	}
	var err error
	if n.Properties, err = decodeProperties(props); err != nil {
		return nil, fmt.Errorf("node %d: %w", n.Ref.ID, err)
	}
	if lang != nil {
		n.Localization = &content.Localization{
			Language: parseTag(*lang),
			Master:   parseTag(deref(master)),
		}
		for _, e := range existing {
			n.Localization.Existing = append(n.Localization.Existing, parseTag(e))
		}
	}
	if start != nil || stop != nil || pending {
		n.Versioning = &content.Versioning{StartPublish: start, StopPublish: stop, IsPendingPublish: pending}
	}
	return &n, nil
}

func parseTag(s string) language.Tag {
	if s == "" {
		return language.Und
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und
	}
	return tag
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, content.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *Store) Get(ctx context.Context, ref content.NodeRef) (*content.Node, error) {
	if ref.Provider != "" || ref.IsEmpty() {
		return nil, fmt.Errorf("node %s: %w", ref, content.ErrNotFound)
	}
	n, err := scanNode(s.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM content_nodes WHERE id = $1`, ref.ID))
	if err != nil {
		return nil, notFound("node "+ref.String(), err)
	}
	return n, nil
}

func (s *Store) GetByGUID(ctx context.Context, id uuid.UUID) (*content.Node, error) {
	n, err := scanNode(s.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM content_nodes WHERE guid = $1`, id))
	if err != nil {
		return nil, notFound("node with guid "+id.String(), err)
	}
	return n, nil
}

func (s *Store) exists(ctx context.Context, ref content.NodeRef) error {
	var ok bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM content_nodes WHERE id = $1)`, ref.ID).Scan(&ok); err != nil {
		return fmt.Errorf("node %s: %w", ref, err)
	}
	if !ok {
		return fmt.Errorf("node %s: %w", ref, content.ErrNotFound)
	}
	return nil
}

func (s *Store) Children(ctx context.Context, ref content.NodeRef) ([]*content.Node, error) {
	rows, err := s.db.Query(ctx, `SELECT `+nodeColumns+` FROM content_nodes WHERE parent_id = $1 ORDER BY id`, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", ref, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*content.Node, error) {
		return scanNode(row)
	})
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", ref, err)
	}
	if len(out) == 0 {
		if err := s.exists(ctx, ref); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func collectRefs(rows pgx.Rows) ([]content.NodeRef, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (content.NodeRef, error) {
		var ref content.NodeRef
		err := row.Scan(&ref.ID, &ref.WorkID)
		return ref, err
	})
}

func (s *Store) Descendants(ctx context.Context, ref content.NodeRef) ([]content.NodeRef, error) {
	rows, err := s.db.Query(ctx, `
		WITH RECURSIVE d AS (
			SELECT id, work_id, 1 AS depth FROM content_nodes WHERE parent_id = $1
			UNION ALL
			SELECT c.id, c.work_id, d.depth + 1 FROM content_nodes c JOIN d ON c.parent_id = d.id
		)
		SELECT id, work_id FROM d ORDER BY depth, id`, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("descendants of %s: %w", ref, err)
	}
	out, err := collectRefs(rows)
	if err != nil {
		return nil, fmt.Errorf("descendants of %s: %w", ref, err)
	}
	if len(out) == 0 {
		if err := s.exists(ctx, ref); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Ancestors returns the parent chain of ref, nearest first, ending with the
// tree root.
func (s *Store) Ancestors(ctx context.Context, ref content.NodeRef) ([]content.NodeRef, error) {
	rows, err := s.db.Query(ctx, `
		WITH RECURSIVE a AS (
			SELECT parent_id AS id, 1 AS depth FROM content_nodes WHERE id = $1
			UNION ALL
			SELECT n.parent_id, a.depth + 1 FROM content_nodes n JOIN a ON n.id = a.id
			WHERE n.parent_id IS NOT NULL
		)
		SELECT n.id, n.work_id FROM a JOIN content_nodes n ON n.id = a.id ORDER BY a.depth`, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("ancestors of %s: %w", ref, err)
	}
	out, err := collectRefs(rows)
	if err != nil {
		return nil, fmt.Errorf("ancestors of %s: %w", ref, err)
	}
	if len(out) == 0 {
		if err := s.exists(ctx, ref); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) GetDefault(ctx context.Context, parent content.NodeRef, shape string) (*content.Node, error) {
	if err := s.exists(ctx, parent); err != nil {
		return nil, fmt.Errorf("parent: %w", err)
	}
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT properties FROM shape_defaults WHERE shape = $1`, shape).Scan(&raw)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("defaults for shape %s: %w", shape, err)
	}
	props, err := decodeProperties(raw)
	if err != nil {
		return nil, err
	}
	return &content.Node{
		Parent:     parent.Logical(),
		Shape:      shape,
		Properties: props,
		Status:     content.StatusNotCreated,
	}, nil
}

// SetShapeDefaults stores the property values GetDefault gives new nodes of
// shape.
func (s *Store) SetShapeDefaults(ctx context.Context, shape string, props map[string]any) error {
	raw, err := encodeProperties(props)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO shape_defaults (shape, properties) VALUES ($1, $2)
		ON CONFLICT (shape) DO UPDATE SET properties = EXCLUDED.properties`, shape, raw)
	if err != nil {
		return fmt.Errorf("set defaults for shape %s: %w", shape, err)
	}
	return nil
}

type nodeParams struct {
	props        []byte
	lang, master *string
	existing     []string
	start, stop  *time.Time
	pending      bool
}

func paramsFor(n *content.Node) (nodeParams, error) {
	var p nodeParams
	var err error
	if p.props, err = encodeProperties(n.Properties); err != nil {
		return p, err
	}
	if l := n.Localization; l != nil {
		lang, master := l.Language.String(), l.Master.String()
		p.lang, p.master = &lang, &master
		for _, e := range l.Existing {
			p.existing = append(p.existing, e.String())
		}
	}
	if v := n.Versioning; v != nil {
		p.start, p.stop, p.pending = v.StartPublish, v.StopPublish, v.IsPendingPublish
	}
	return p, nil
}

func mapWriteError(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", what, content.ErrDuplicateGUID)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: parent: %w", what, content.ErrNotFound)
		}
	}
	return notFound(what, err)
}

// Save inserts n when its Ref is empty and updates the stored node
// otherwise. Each save bumps the work id. Parent changes go through Move.
// Saving with SavePublish notifies a Published event after the write.
func (s *Store) Save(ctx context.Context, n *content.Node, opts content.SaveOptions) (content.NodeRef, error) {
	if n == nil {
		return content.EmptyRef, errors.New("save: nil node")
	}
	status := content.StatusCheckedOut
	if opts.Action == content.SavePublish {
		status = content.StatusPublished
	}
	p, err := paramsFor(n)
	if err != nil {
		return content.EmptyRef, err
	}

	stored := n.Clone()
	stored.Status = status
	if n.Ref.IsEmpty() {
		if n.Parent.IsEmpty() {
			return content.EmptyRef, fmt.Errorf("save %q: node has no parent", n.Name)
		}
		if stored.GUID == uuid.Nil {
			stored.GUID = uuid.New()
		}
		stored.Parent = n.Parent.Logical()
		stored.Access = opts.Access
		err = s.db.QueryRow(ctx, `
			INSERT INTO content_nodes (guid, parent_id, name, shape, properties, status, access,
				language, master_language, existing_languages, start_publish, stop_publish, pending_publish)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id, work_id`,
			stored.GUID, stored.Parent.ID, n.Name, n.Shape, p.props, status, opts.Access,
			p.lang, p.master, p.existing, p.start, p.stop, p.pending,
		).Scan(&stored.Ref.ID, &stored.Ref.WorkID)
		if err != nil {
			return content.EmptyRef, mapWriteError(fmt.Sprintf("save %q", n.Name), err)
		}
	} else {
		var parentID *int64
		err = s.db.QueryRow(ctx, `
			UPDATE content_nodes SET
				guid = COALESCE($2, guid), name = $3, shape = $4, properties = $5, status = $6, access = $7,
				language = $8, master_language = $9, existing_languages = $10,
				start_publish = $11, stop_publish = $12, pending_publish = $13,
				work_id = work_id + 1, updated_at = now()
			WHERE id = $1
			RETURNING work_id, guid, parent_id`,
			n.Ref.ID, nullableGUID(n.GUID), n.Name, n.Shape, p.props, status, n.Access,
			p.lang, p.master, p.existing, p.start, p.stop, p.pending,
		).Scan(&stored.Ref.WorkID, &stored.GUID, &parentID)
		if err != nil {
			return content.EmptyRef, mapWriteError("save "+n.Ref.String(), err)
		}
		stored.Ref = content.NodeRef{ID: n.Ref.ID, WorkID: stored.Ref.WorkID}
		if parentID != nil {
			stored.Parent = content.NodeRef{ID: *parentID}
		}
	}

	if opts.Action == content.SavePublish && s.notifier != nil {
		s.notifier.Publish(ctx, changes.Event{Kind: changes.Published, Node: stored})
	}
	return stored.Ref, nil
}

func nullableGUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// Move reparents ref under target after asking the notifier. A cancelled
// move returns a *changes.CancelledError.
func (s *Store) Move(ctx context.Context, ref, target content.NodeRef) error {
	if ref.EqualIgnoreWork(content.RootRef) || ref.EqualIgnoreWork(content.WasteBasketRef) {
		return fmt.Errorf("move %s: system nodes cannot be moved", ref)
	}
	n, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.exists(ctx, target); err != nil {
		return fmt.Errorf("move %s: target: %w", ref, err)
	}
	if s.notifier != nil {
		if d := s.notifier.Publish(ctx, changes.Event{Kind: changes.Moving, Node: n, Target: target.Logical()}); d.Cancel {
			return &changes.CancelledError{Kind: changes.Moving, Ref: n.Ref, Reason: d.Reason}
		}
	}

	var cycle bool
	err = s.db.QueryRow(ctx, `
		WITH RECURSIVE a AS (
			SELECT id, parent_id FROM content_nodes WHERE id = $2
			UNION ALL
			SELECT n.id, n.parent_id FROM content_nodes n JOIN a ON n.id = a.parent_id
		)
		SELECT EXISTS (SELECT 1 FROM a WHERE id = $1)`, ref.ID, target.ID).Scan(&cycle)
	if err != nil {
		return fmt.Errorf("move %s: %w", ref, err)
	}
	if cycle {
		return fmt.Errorf("move %s: target %s is inside the moved subtree", ref, target)
	}

	tag, err := s.db.Exec(ctx, `UPDATE content_nodes SET parent_id = $2, updated_at = now() WHERE id = $1`, ref.ID, target.ID)
	if err != nil {
		return mapWriteError("move "+ref.String(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("move %s: %w", ref, content.ErrNotFound)
	}
	return nil
}

// MoveToWasteBasket moves ref to the waste basket.
func (s *Store) MoveToWasteBasket(ctx context.Context, ref content.NodeRef) error {
	return s.Move(ctx, ref, content.WasteBasketRef)
}

// Delete permanently removes ref and its subtree after asking the notifier.
func (s *Store) Delete(ctx context.Context, ref content.NodeRef) error {
	if ref.EqualIgnoreWork(content.RootRef) || ref.EqualIgnoreWork(content.WasteBasketRef) {
		return fmt.Errorf("delete %s: system nodes cannot be deleted", ref)
	}
	n, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	if s.notifier != nil {
		if d := s.notifier.Publish(ctx, changes.Event{Kind: changes.Deleting, Node: n}); d.Cancel {
			return &changes.CancelledError{Kind: changes.Deleting, Ref: n.Ref, Reason: d.Reason}
		}
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM content_nodes WHERE id = $1`, ref.ID); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}
