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

// Package bootstrap creates the well-known settings roots and makes sure
// every registered settings type has exactly one global instance.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cardinalhq/nodesettings/catalog"
	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/internal/idgen"
	"github.com/cardinalhq/nodesettings/internal/logctx"
)

const (
	GlobalSettingsRootName = "Global Settings Root"
	SettingsRootName       = "Settings Root"
)

var (
	GlobalSettingsRootID = uuid.MustParse("98ed413d-d7b5-4fbf-92a6-120d850fe61a")
	SettingsRootID       = uuid.MustParse("98ed413d-d7b5-4fbf-92a6-120d850fe61c")
)

// ConfigError reports a settings type that was declared incorrectly. It
// is a developer mistake and is never skipped silently.
type ConfigError struct {
	Type   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("settings type %s: %s", e.Type, e.Reason)
}

// Result summarises one EnsureAllSettingsInstances run.
type Result struct {
	Existing int
	Created  int
	Skipped  int
}

// Bootstrapper owns root and instance creation. It is safe for concurrent
// use, including from several processes sharing one store.
type Bootstrapper struct {
	store      content.Store
	roots      content.RootRegistry
	sites      content.SiteDirectory
	catalog    *catalog.Catalog
	rootParent content.NodeRef
	invalidate func(ctx context.Context)

	siteRoots sync.Map // uuid.UUID -> *siteRootCell
}

type siteRootCell struct {
	mu  sync.Mutex
	ref content.NodeRef
}

type Option func(*Bootstrapper)

// WithRootParent places the two shared roots under parent.
func WithRootParent(parent content.NodeRef) Option {
	return func(b *Bootstrapper) { b.rootParent = parent }
}

// WithSites lets the shared roots default to the global asset root named
// by the site directory.
func WithSites(sites content.SiteDirectory) Option {
	return func(b *Bootstrapper) { b.sites = sites }
}

// WithInvalidator sets the function called after instances were ensured so
// cached global lookups can be dropped.
func WithInvalidator(fn func(ctx context.Context)) Option {
	return func(b *Bootstrapper) { b.invalidate = fn }
}

func New(store content.Store, roots content.RootRegistry, cat *catalog.Catalog, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		store:   store,
		roots:   roots,
		catalog: cat,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// EnsureGlobalRoot returns the Global Settings Root, creating it if needed.
// A name bound to another identity yields content.ErrRootConflict.
func (b *Bootstrapper) EnsureGlobalRoot(ctx context.Context) (content.NodeRef, error) {
	return b.ensureRoot(ctx, GlobalSettingsRootName, GlobalSettingsRootID)
}

// EnsureSettingsRoot returns the shared Settings Root, creating it if needed.
func (b *Bootstrapper) EnsureSettingsRoot(ctx context.Context) (content.NodeRef, error) {
	return b.ensureRoot(ctx, SettingsRootName, SettingsRootID)
}

func (b *Bootstrapper) ensureRoot(ctx context.Context, name string, id uuid.UUID) (content.NodeRef, error) {
	parent, err := b.sharedRootParent(ctx)
	if err != nil {
		return content.EmptyRef, fmt.Errorf("register %q: %w", name, err)
	}
	ref, err := b.roots.Register(ctx, content.RootSpec{
		Name:   name,
		ID:     id,
		Parent: parent,
		Shape:  content.FolderShape,
	})
	if err != nil {
		return content.EmptyRef, fmt.Errorf("register %q: %w", name, err)
	}
	return ref, nil
}

// sharedRootParent picks where new shared roots go: the configured parent,
// else the first global asset root in the site directory, else the tree
// root. Roots that already exist stay where they are.
func (b *Bootstrapper) sharedRootParent(ctx context.Context) (content.NodeRef, error) {
	if !b.rootParent.IsEmpty() {
		return b.rootParent, nil
	}
	if b.sites != nil {
		sites, err := b.sites.ListSites(ctx)
		if err != nil {
			return content.EmptyRef, fmt.Errorf("list sites: %w", err)
		}
		for _, site := range sites {
			if !site.GlobalAssetsRoot.IsEmpty() {
				return site.GlobalAssetsRoot.Logical(), nil
			}
		}
	}
	return content.RootRef, nil
}

// SiteSettingsRootID is the identity of the settings root of a site with
// its own asset root.
func SiteSettingsRootID(site content.Site) uuid.UUID {
	return idgen.Derive(site.ID, SettingsRootName)
}

// EnsureSiteSettingsRoot returns the settings root for site. Sites that
// share the global asset root use the shared Settings Root; others get
// their own folder under their asset root. Concurrent callers for one site
// get the same reference. Failures are not remembered.
func (b *Bootstrapper) EnsureSiteSettingsRoot(ctx context.Context, site content.Site) (content.NodeRef, error) {
	if site.SharesGlobalAssets() {
		return b.EnsureSettingsRoot(ctx)
	}

	v, _ := b.siteRoots.LoadOrStore(site.ID, &siteRootCell{})
	cell := v.(*siteRootCell)
	cell.mu.Lock()
	defer cell.mu.Unlock()
	if !cell.ref.IsEmpty() {
		return cell.ref, nil
	}

	ref, _, err := b.getOrCreate(ctx, SiteSettingsRootID(site), func() (*content.Node, error) {
		n, err := b.store.GetDefault(ctx, site.SiteAssetsRoot, content.FolderShape)
		if err != nil {
			return nil, err
		}
		n.Name = SettingsRootName
		return n, nil
	}, content.AccessFull)
	if err != nil {
		return content.EmptyRef, fmt.Errorf("settings root for site %s: %w", site.Name, err)
	}
	cell.ref = ref
	logctx.FromContext(ctx).Debug("Site settings root ready",
		slog.String("site", site.Name),
		slog.String("ref", ref.String()))
	return ref, nil
}

// getOrCreate returns the node with identity id, creating it through
// newNode when nothing has that identity. A duplicate identity on save
// means another writer won the race, so the winner is fetched instead.
// The boolean reports whether this call created the node.
func (b *Bootstrapper) getOrCreate(ctx context.Context, id uuid.UUID, newNode func() (*content.Node, error), access content.AccessLevel) (content.NodeRef, bool, error) {
	n, err := b.store.GetByGUID(ctx, id)
	if err == nil {
		return n.Ref.Logical(), false, nil
	}
	if !errors.Is(err, content.ErrNotFound) {
		return content.EmptyRef, false, err
	}

	n, err = newNode()
	if err != nil {
		return content.EmptyRef, false, err
	}
	n.GUID = id
	ref, err := b.store.Save(ctx, n, content.SaveOptions{Action: content.SavePublish, Access: access})
	if errors.Is(err, content.ErrDuplicateGUID) {
		existing, gerr := b.store.GetByGUID(ctx, id)
		if gerr != nil {
			return content.EmptyRef, false, gerr
		}
		return existing.Ref.Logical(), false, nil
	}
	if err != nil {
		return content.EmptyRef, false, err
	}
	return ref.Logical(), true, nil
}

// EnsureAllSettingsInstances makes sure every registered type has its
// global instance under the Global Settings Root. Types declared without an
// instance id, or sharing one with another type, are returned as
// *ConfigError values aggregated into one error; every other type is still
// processed. Store failures for a single type are logged and that type is
// skipped.
func (b *Bootstrapper) EnsureAllSettingsInstances(ctx context.Context) (Result, error) {
	tracer := otel.Tracer("github.com/cardinalhq/nodesettings/internal/bootstrap")
	ctx, span := tracer.Start(ctx, "bootstrap.ensure_all_settings_instances")
	defer span.End()

	ll := logctx.FromContext(ctx)
	var res Result

	root, err := b.EnsureGlobalRoot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "global root unavailable")
		return res, err
	}

	existing := b.loadExisting(ctx, root)
	types := b.catalog.Types()
	span.SetAttributes(
		attribute.Int("type_count", len(types)),
		attribute.Int("existing_count", len(existing)),
	)

	var cfgErrs *multierror.Error
	claimed := mapset.NewThreadUnsafeSet[uuid.UUID]()
	for _, t := range types {
		if t.InstanceID == uuid.Nil {
			cfgErrs = multierror.Append(cfgErrs, &ConfigError{Type: t.Name, Reason: "no instance id declared"})
			continue
		}
		if !claimed.Add(t.InstanceID) {
			cfgErrs = multierror.Append(cfgErrs, &ConfigError{
				Type:   t.Name,
				Reason: fmt.Sprintf("instance id %s is declared by another type", t.InstanceID),
			})
			continue
		}

		if _, ok := existing[t.InstanceID]; ok {
			res.Existing++
			continue
		}

		created, err := b.ensureInstance(ctx, root, t)
		if err != nil {
			ll.Error("Failed to ensure settings instance",
				slog.String("type", t.Name),
				slog.String("instanceID", t.InstanceID.String()),
				slog.Any("error", err))
			res.Skipped++
			continue
		}
		if created {
			res.Created++
			bootstrapCreatedCounter.Add(ctx, 1, metricAttrs(t.Name))
		} else {
			res.Existing++
		}
	}

	if b.invalidate != nil {
		b.invalidate(ctx)
	}

	span.SetAttributes(
		attribute.Int("created_count", res.Created),
		attribute.Int("skipped_count", res.Skipped),
	)
	if err := cfgErrs.ErrorOrNil(); err != nil {
		for _, e := range cfgErrs.Errors {
			ll.Error("Invalid settings type declaration", slog.Any("error", e))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid settings type declarations")
		return res, err
	}
	ll.Info("Settings instances ensured",
		slog.Int("existing", res.Existing),
		slog.Int("created", res.Created),
		slog.Int("skipped", res.Skipped))
	return res, nil
}

// loadExisting maps the identities of genuine settings instances below
// root to their references. A failed scan yields what was read so far;
// ensureInstance falls back to identity lookups.
func (b *Bootstrapper) loadExisting(ctx context.Context, root content.NodeRef) map[uuid.UUID]content.NodeRef {
	out := make(map[uuid.UUID]content.NodeRef)
	refs, err := b.store.Descendants(ctx, root)
	if err != nil {
		logctx.FromContext(ctx).Error("Failed to scan global settings root",
			slog.String("root", root.String()),
			slog.Any("error", err))
		return out
	}
	for _, ref := range refs {
		n, ok := content.TryGet(ctx, b.store, ref)
		if !ok || !b.catalog.IsGenuine(n) {
			continue
		}
		out[n.GUID] = n.Ref.Logical()
	}
	return out
}

func (b *Bootstrapper) ensureInstance(ctx context.Context, root content.NodeRef, t *catalog.Type) (bool, error) {
	_, created, err := b.getOrCreate(ctx, t.InstanceID, func() (*content.Node, error) {
		n, err := b.store.GetDefault(ctx, root, t.Shape)
		if err != nil {
			return nil, err
		}
		n.Name = t.DisplayName
		return n, nil
	}, content.AccessNoAccess)
	return created, err
}
