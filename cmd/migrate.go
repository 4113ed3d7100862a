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
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/nodesettings/config"
	"github.com/cardinalhq/nodesettings/internal/dbopen"
	"github.com/cardinalhq/nodesettings/internal/logctx"
	"github.com/cardinalhq/nodesettings/store/pgstore/migrations"
)

func init() {
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  "Apply every pending migration to the settings database.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runCommand("migrate", migrate)
	},
}

func migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	url, err := cfg.DatabaseURL()
	if err != nil {
		return err
	}
	pool, err := dbopen.Open(ctx, url, dbopen.SkipMigrationCheck())
	if err != nil {
		return err
	}
	defer pool.Close()

	ll := logctx.FromContext(ctx)
	ll.Info("Running settings database migrations")
	if err := migrations.RunMigrationsUp(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate settings database: %w", err)
	}
	version, _, err := migrations.CurrentVersion(ctx, pool)
	if err != nil {
		return err
	}
	ll.Info("Settings database migrations completed", slog.Uint64("version", uint64(version)))
	return nil
}
