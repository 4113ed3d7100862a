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

//go:build integration
// +build integration

package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/cardinalhq/nodesettings/catalog"
	"github.com/cardinalhq/nodesettings/changes"
	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/settings"
	"github.com/cardinalhq/nodesettings/store/pgstore/migrations"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runWithPostgres(m))
}

func runWithPostgres(m *testing.M) int {
	container, err := gnomock.Start(postgres.Preset(
		postgres.WithUser("settings", "settings"),
		postgres.WithDatabase("settings"),
		postgres.WithVersion("16"),
	))
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = gnomock.Stop(container) }()

	ctx := context.Background()
	url := fmt.Sprintf("postgresql://settings:settings@%s/settings?sslmode=disable", container.DefaultAddress())
	testPool, err = NewConnectionPool(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := migrations.RunMigrationsUp(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	return m.Run()
}

func resetDB(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `
		TRUNCATE content_roots, shape_defaults, sites;
		DELETE FROM content_nodes WHERE id > 2;`)
	require.NoError(t, err)
}

func TestMigrations_Current(t *testing.T) {
	ctx := context.Background()
	current, dirty, err := migrations.CurrentVersion(ctx, testPool)
	require.NoError(t, err)
	assert.False(t, dirty)
	latest, err := migrations.LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, current)
	require.NoError(t, migrations.CheckVersion(ctx, testPool))
}

func TestStore_SaveAndLoad(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	store := New(testPool, nil)

	root, err := store.Get(ctx, content.RootRef)
	require.NoError(t, err)
	assert.Equal(t, "Root", root.Name)

	start := mustTime(t, "2025-01-02T03:04:05Z")
	target := content.NodeRef{ID: 2}
	ref, err := store.Save(ctx, &content.Node{
		Parent: content.RootRef,
		Name:   "Home",
		Shape:  "Page",
		Properties: map[string]any{
			"title": "hello",
			"link":  target,
		},
		Localization: &content.Localization{
			Language: language.English,
			Master:   language.English,
			Existing: []language.Tag{language.English, language.Swedish},
		},
		Versioning: &content.Versioning{StartPublish: &start},
	}, content.SaveOptions{Action: content.SaveDraft, Access: content.AccessRead})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ref.WorkID)

	n, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Home", n.Name)
	assert.Equal(t, content.StatusCheckedOut, n.Status)
	assert.Equal(t, content.AccessRead, n.Access)
	assert.NotEqual(t, uuid.Nil, n.GUID)
	assert.Equal(t, "hello", n.Properties["title"])
	assert.Equal(t, target, n.Properties["link"])
	require.NotNil(t, n.Localization)
	assert.Equal(t, language.English, n.Localization.Language)
	assert.Len(t, n.Localization.Existing, 2)
	require.NotNil(t, n.Versioning)
	assert.True(t, start.Equal(*n.Versioning.StartPublish))

	byGUID, err := store.GetByGUID(ctx, n.GUID)
	require.NoError(t, err)
	assert.Equal(t, n.Ref, byGUID.Ref)

	n.Properties["title"] = "changed"
	ref2, err := store.Save(ctx, n, content.SaveOptions{Action: content.SavePublish})
	require.NoError(t, err)
	assert.Equal(t, ref.ID, ref2.ID)
	assert.Equal(t, int64(2), ref2.WorkID)
	n, err = store.Get(ctx, ref2)
	require.NoError(t, err)
	assert.Equal(t, "changed", n.Properties["title"])
	assert.Equal(t, content.StatusPublished, n.Status)
}

func TestStore_Errors(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	store := New(testPool, nil)

	_, err := store.Get(ctx, content.NodeRef{ID: 999999})
	assert.ErrorIs(t, err, content.ErrNotFound)
	_, err = store.Get(ctx, content.NodeRef{ID: 1, Provider: "ext"})
	assert.ErrorIs(t, err, content.ErrNotFound)
	_, err = store.GetByGUID(ctx, uuid.New())
	assert.ErrorIs(t, err, content.ErrNotFound)
	_, err = store.Children(ctx, content.NodeRef{ID: 999999})
	assert.ErrorIs(t, err, content.ErrNotFound)
	_, err = store.Descendants(ctx, content.NodeRef{ID: 999999})
	assert.ErrorIs(t, err, content.ErrNotFound)

	_, err = store.Save(ctx, &content.Node{Parent: content.NodeRef{ID: 999999}, Name: "x", Shape: "Page"}, content.SaveOptions{})
	assert.ErrorIs(t, err, content.ErrNotFound)

	id := uuid.New()
	_, err = store.Save(ctx, &content.Node{GUID: id, Parent: content.RootRef, Name: "a", Shape: "Page"}, content.SaveOptions{})
	require.NoError(t, err)
	_, err = store.Save(ctx, &content.Node{GUID: id, Parent: content.RootRef, Name: "b", Shape: "Page"}, content.SaveOptions{})
	assert.ErrorIs(t, err, content.ErrDuplicateGUID)
}

func TestStore_TreeQueries(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	store := New(testPool, nil)

	a := save(t, store, content.RootRef, "a")
	b := save(t, store, a, "b")
	c := save(t, store, b, "c")
	d := save(t, store, a, "d")

	children, err := store.Children(ctx, a)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "b", children[0].Name)
	assert.Equal(t, "d", children[1].Name)

	empty, err := store.Children(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, empty)

	desc, err := store.Descendants(ctx, a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{b.ID, c.ID, d.ID}, ids(desc))

	anc, err := store.Ancestors(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID, a.ID, content.RootRef.ID}, ids(anc))

	anc, err = store.Ancestors(ctx, content.RootRef)
	require.NoError(t, err)
	assert.Empty(t, anc)
}

func TestStore_MoveAndDelete(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	bus := changes.NewBus()
	store := New(testPool, bus)

	a := save(t, store, content.RootRef, "a")
	b := save(t, store, a, "b")
	c := save(t, store, content.RootRef, "c")

	require.Error(t, store.Move(ctx, a, b), "moving under own descendant")
	require.Error(t, store.Move(ctx, content.RootRef, c))

	require.NoError(t, store.Move(ctx, b, c))
	n, err := store.Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, c.ID, n.Parent.ID)

	unsub := bus.Subscribe(changes.Deleting, func(_ context.Context, ev changes.Event) changes.Decision {
		return changes.Decision{Cancel: ev.Node.Name == "c", Reason: "keep c"}
	})
	err = store.Delete(ctx, c)
	assert.ErrorIs(t, err, changes.ErrCancelled)
	unsub()

	require.NoError(t, store.MoveToWasteBasket(ctx, a))
	require.NoError(t, store.Delete(ctx, c))
	_, err = store.Get(ctx, b)
	assert.ErrorIs(t, err, content.ErrNotFound, "subtree removed with its parent")
}

func TestStore_RootsSitesDefaults(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	store := New(testPool, nil)

	id := uuid.New()
	ref, err := store.Register(ctx, content.RootSpec{Name: "Things", ID: id})
	require.NoError(t, err)
	again, err := store.Register(ctx, content.RootSpec{Name: "Things", ID: id})
	require.NoError(t, err)
	assert.Equal(t, ref.ID, again.ID)
	_, err = store.Register(ctx, content.RootSpec{Name: "Things", ID: uuid.New()})
	assert.ErrorIs(t, err, content.ErrRootConflict)
	got, err := store.Root(ctx, "Things")
	require.NoError(t, err)
	assert.Equal(t, ref.ID, got.ID)
	_, err = store.Root(ctx, "Nothing")
	assert.ErrorIs(t, err, content.ErrNotFound)

	site := content.Site{ID: uuid.New(), Name: "main", StartPage: ref}
	require.NoError(t, store.UpsertSite(ctx, site))
	site.Name = "renamed"
	require.NoError(t, store.UpsertSite(ctx, site))
	sites, err := store.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "renamed", sites[0].Name)
	assert.Equal(t, ref.ID, sites[0].StartPage.ID)
	assert.True(t, sites[0].SiteAssetsRoot.IsEmpty())

	require.NoError(t, store.SetShapeDefaults(ctx, "Nav", map[string]any{"depth": 3}))
	def, err := store.GetDefault(ctx, ref, "Nav")
	require.NoError(t, err)
	assert.Equal(t, float64(3), def.Properties["depth"])
	assert.Equal(t, content.StatusNotCreated, def.Status)
}

type navSettings struct {
	catalog.Instance
	Depth int `settings:"depth"`
}

func TestSettingsService_EndToEnd(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	bus := changes.NewBus()
	store := New(testPool, bus)
	require.NoError(t, store.SetShapeDefaults(ctx, "Nav", map[string]any{"depth": 2}))

	cat := catalog.New()
	catalog.MustRegister[navSettings](cat, catalog.TypeInfo{Name: "Nav", InstanceID: uuid.New()})

	svc, err := settings.New(settings.Deps{
		Store: store, Walker: store, Roots: store, Sites: store, Events: bus, Catalog: cat,
	}, settings.Options{})
	require.NoError(t, err)
	defer svc.Close()
	require.NoError(t, svc.InitSettings(ctx))
	require.NoError(t, svc.InitSettings(ctx))

	page := save(t, store, content.RootRef, "page")
	global, ok := settings.Get[navSettings](ctx, svc, page)
	require.True(t, ok)
	assert.Equal(t, 2, global.Depth)

	local, err := store.Save(ctx, &content.Node{
		Parent: svc.SettingsRoot(), Name: "deep nav", Shape: "Nav",
		Properties: map[string]any{"depth": 5},
	}, content.SaveOptions{Action: content.SavePublish})
	require.NoError(t, err)

	child := save(t, store, page, "child")
	n, err := store.Get(ctx, page)
	require.NoError(t, err)
	n.Properties = map[string]any{"Nav": local.Logical()}
	_, err = store.Save(ctx, n, content.SaveOptions{Action: content.SavePublish})
	require.NoError(t, err)

	got, ok := settings.Get[navSettings](ctx, svc, child)
	require.True(t, ok)
	assert.Equal(t, 5, got.Depth)

	err = store.Delete(ctx, global.Ref)
	assert.True(t, errors.Is(err, changes.ErrCancelled), "global instance is protected")
}

func save(t *testing.T, store *Store, parent content.NodeRef, name string) content.NodeRef {
	t.Helper()
	ref, err := store.Save(context.Background(), &content.Node{Parent: parent, Name: name, Shape: "Page"},
		content.SaveOptions{Action: content.SavePublish})
	require.NoError(t, err)
	return ref
}

func ids(refs []content.NodeRef) []int64 {
	out := make([]int64, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}
