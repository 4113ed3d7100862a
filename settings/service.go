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

// Package settings resolves settings instances for nodes of the content
// tree. A node gets the instance associated with itself, else with its
// nearest ancestor, else the global instance of the type.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/cardinalhq/nodesettings/catalog"
	"github.com/cardinalhq/nodesettings/changes"
	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/internal/bootstrap"
	"github.com/cardinalhq/nodesettings/internal/logctx"
	"github.com/cardinalhq/nodesettings/internal/settingscache"
	"github.com/cardinalhq/nodesettings/resolver"
)

const (
	globalIndexKey    = "settings:global-index"
	instanceKeyPrefix = "Settings_"
)

// Subscriber registers change handlers. *changes.Bus implements it.
type Subscriber interface {
	Subscribe(kind changes.Kind, h changes.Handler) func()
}

// Deps are the collaborators of a Service. Sites and Events are optional.
type Deps struct {
	Store   content.Store
	Walker  content.AncestorWalker
	Roots   content.RootRegistry
	Sites   content.SiteDirectory
	Events  Subscriber
	Catalog *catalog.Catalog
}

// Messages are the reasons given when a change to a global instance is
// refused.
type Messages struct {
	DeleteGlobal string
	MoveGlobal   string
}

func DefaultMessages() Messages {
	return Messages{
		DeleteGlobal: "Global settings instances cannot be deleted.",
		MoveGlobal:   "Global settings instances cannot be moved out of the global settings root.",
	}
}

// Options tune a Service. The zero value is usable.
type Options struct {
	// CacheTTL expires cached global lookups. Zero keeps them until a
	// change invalidates them.
	CacheTTL time.Duration
	// DisableStartPageInjection stops the start page of the site recorded
	// with WithSite from being added to every ancestor walk.
	DisableStartPageInjection bool
	// RootParent is where the shared settings roots are created. Defaults
	// to the global asset root of the listed sites, or the tree root when
	// no site names one.
	RootParent content.NodeRef
	// Resolvers run before the default property-name resolver.
	Resolvers []resolver.Resolver
	Messages  Messages
}

// Service is the settings resolution engine. Construct it with New, call
// InitSettings once, and Close it at shutdown. Before InitSettings
// completes every lookup reports "not found".
type Service struct {
	store   content.Store
	walker  content.AncestorWalker
	sites   content.SiteDirectory
	events  Subscriber
	catalog *catalog.Catalog
	chain   *resolver.Chain
	boot    *bootstrap.Bootstrapper
	opts    Options

	index     *settingscache.Cache[map[string]content.NodeRef]
	instances *settingscache.Cache[*content.Node]

	initMu       sync.Mutex
	ready        atomic.Bool
	globalRoot   content.NodeRef
	settingsRoot content.NodeRef
	unsubscribe  []func()
}

func New(deps Deps, opts Options) (*Service, error) {
	if deps.Store == nil || deps.Walker == nil || deps.Roots == nil || deps.Catalog == nil {
		return nil, errors.New("settings: store, walker, roots and catalog are required")
	}
	def := DefaultMessages()
	if opts.Messages.DeleteGlobal == "" {
		opts.Messages.DeleteGlobal = def.DeleteGlobal
	}
	if opts.Messages.MoveGlobal == "" {
		opts.Messages.MoveGlobal = def.MoveGlobal
	}

	s := &Service{
		store:     deps.Store,
		walker:    deps.Walker,
		sites:     deps.Sites,
		events:    deps.Events,
		catalog:   deps.Catalog,
		opts:      opts,
		chain:     resolver.NewChain(slices.Concat(opts.Resolvers, []resolver.Resolver{resolver.PropertyName{Store: deps.Store}})...),
		index:     settingscache.New[map[string]content.NodeRef]("global-index", opts.CacheTTL),
		instances: settingscache.New[*content.Node]("global-instances", opts.CacheTTL),
	}

	bootOpts := []bootstrap.Option{bootstrap.WithInvalidator(s.invalidateAll)}
	if !opts.RootParent.IsEmpty() {
		bootOpts = append(bootOpts, bootstrap.WithRootParent(opts.RootParent))
	}
	if deps.Sites != nil {
		bootOpts = append(bootOpts, bootstrap.WithSites(deps.Sites))
	}
	s.boot = bootstrap.New(deps.Store, deps.Roots, deps.Catalog, bootOpts...)
	return s, nil
}

// InitSettings creates the settings roots, subscribes to change events,
// ensures the global instances and the per-site roots, and marks the
// service ready. A root conflict is returned without the service becoming
// ready. Invalid settings type declarations are returned after the service
// became ready for every valid type.
func (s *Service) InitSettings(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.ready.Load() {
		return nil
	}

	tracer := otel.Tracer("github.com/cardinalhq/nodesettings/settings")
	ctx, span := tracer.Start(ctx, "settings.init")
	defer span.End()
	ll := logctx.FromContext(ctx)

	globalRoot, err := s.boot.EnsureGlobalRoot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "global settings root")
		return fmt.Errorf("init settings: %w", err)
	}
	settingsRoot, err := s.boot.EnsureSettingsRoot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settings root")
		return fmt.Errorf("init settings: %w", err)
	}
	s.globalRoot = globalRoot
	s.settingsRoot = settingsRoot

	if s.events != nil && len(s.unsubscribe) == 0 {
		s.unsubscribe = append(s.unsubscribe,
			s.events.Subscribe(changes.Published, s.onPublished),
			s.events.Subscribe(changes.Moving, s.onMoving),
			s.events.Subscribe(changes.Deleting, s.onDeleting),
		)
	}

	_, cfgErr := s.boot.EnsureAllSettingsInstances(ctx)
	if cfgErr != nil {
		span.RecordError(cfgErr)
		span.SetStatus(codes.Error, "invalid settings types")
	}

	if s.sites != nil {
		sites, err := s.sites.ListSites(ctx)
		if err != nil {
			ll.Error("Failed to list sites", slog.Any("error", err))
		}
		for _, site := range sites {
			if _, err := s.boot.EnsureSiteSettingsRoot(ctx, site); err != nil {
				ll.Error("Failed to ensure site settings root",
					slog.String("site", site.Name),
					slog.Any("error", err))
			}
		}
	}

	s.ready.Store(true)
	ll.Info("Settings service ready",
		slog.String("globalRoot", globalRoot.String()),
		slog.String("settingsRoot", settingsRoot.String()),
		slog.Int("types", s.catalog.Len()))
	return cfgErr
}

// Ready reports whether InitSettings has completed.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Close unsubscribes from change events and stops the caches.
func (s *Service) Close() {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.unsubscribe = nil
	s.ready.Store(false)
	s.index.Close()
	s.instances.Close()
}

// GlobalSettingsRoot returns the folder holding the global instances, or
// the empty reference before InitSettings.
func (s *Service) GlobalSettingsRoot() content.NodeRef {
	if !s.ready.Load() {
		return content.EmptyRef
	}
	return s.globalRoot
}

// SettingsRoot returns the shared Settings Root, or the empty reference
// before InitSettings.
func (s *Service) SettingsRoot() content.NodeRef {
	if !s.ready.Load() {
		return content.EmptyRef
	}
	return s.settingsRoot
}

// Catalog returns the settings types known to the service.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// ValidateOrCreateSiteSettingsRoot returns the settings root of site,
// creating it on first use.
func (s *Service) ValidateOrCreateSiteSettingsRoot(ctx context.Context, site content.Site) (content.NodeRef, error) {
	return s.boot.EnsureSiteSettingsRoot(ctx, site)
}

// EnsureAllSettingsInstances re-runs instance bootstrap, for example after
// more types were registered.
func (s *Service) EnsureAllSettingsInstances(ctx context.Context) (bootstrap.Result, error) {
	return s.boot.EnsureAllSettingsInstances(ctx)
}
