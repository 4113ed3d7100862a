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

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/nodesettings/catalog"
	"github.com/cardinalhq/nodesettings/changes"
	"github.com/cardinalhq/nodesettings/config"
	"github.com/cardinalhq/nodesettings/internal/dbopen"
	"github.com/cardinalhq/nodesettings/internal/logctx"
	"github.com/cardinalhq/nodesettings/settings"
	"github.com/cardinalhq/nodesettings/store/pgstore"
)

// app is the wiring shared by the commands that work on a settings
// database.
type app struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	store *pgstore.Store
	bus   *changes.Bus
	svc   *settings.Service
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat := catalog.New()
	if cfg.TypesFile == "" {
		return cat, nil
	}
	f, err := catalog.LoadFile(cfg.TypesFile)
	if err != nil {
		return nil, err
	}
	if err := cat.RegisterFile(f); err != nil {
		return nil, fmt.Errorf("register types from %s: %w", cfg.TypesFile, err)
	}
	return cat, nil
}

// openApp loads configuration, connects to the database and builds a
// settings service over it. The service is not initialized.
func openApp(ctx context.Context, opts dbopen.Options) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	url, err := cfg.DatabaseURL()
	if err != nil {
		return nil, err
	}
	pool, err := dbopen.Open(ctx, url, opts)
	if err != nil {
		return nil, err
	}

	bus := changes.NewBus()
	store := pgstore.New(pool, bus)
	svc, err := settings.New(settings.Deps{
		Store:   store,
		Walker:  store,
		Roots:   store,
		Sites:   store,
		Events:  bus,
		Catalog: cat,
	}, cfg.Settings.ServiceOptions())
	if err != nil {
		pool.Close()
		return nil, err
	}

	logctx.FromContext(ctx).Debug("Settings service configured",
		slog.Int("types", cat.Len()),
		slog.Bool("kafka", cfg.Kafka.Enabled))
	return &app{cfg: cfg, pool: pool, store: store, bus: bus, svc: svc}, nil
}

// initialized opens the app and runs InitSettings. Configuration errors in
// settings types are logged; the service stays usable.
func initialized(ctx context.Context) (*app, error) {
	a, err := openApp(ctx, dbopen.WaitForMigrations())
	if err != nil {
		return nil, err
	}
	if err := a.svc.InitSettings(ctx); err != nil {
		if !a.svc.Ready() {
			a.close()
			return nil, err
		}
		logctx.FromContext(ctx).Warn("Settings types are misconfigured", slog.Any("error", err))
	}
	return a, nil
}

func (a *app) close() {
	a.svc.Close()
	a.pool.Close()
}
