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
	"errors"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/nodesettings/internal/healthcheck"
	"github.com/cardinalhq/nodesettings/internal/kafkarelay"
	"github.com/cardinalhq/nodesettings/internal/logctx"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Relay settings invalidations through Kafka until stopped",
	Long: `Initialize the settings service and keep it consistent with other processes:
publish events of this process are written to the relay topic, and events
written by other processes invalidate the local caches.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runCommand("watch", watch)
	},
}

func watch(ctx context.Context) error {
	a, err := initialized(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	kcfg := a.cfg.Kafka
	if !kcfg.Enabled {
		return errors.New("kafka relay is disabled; set NODESETTINGS_KAFKA_ENABLED=true")
	}
	origin := strconv.FormatInt(myInstanceID, 10)
	w, err := kafkarelay.NewKafkaWriter(kcfg)
	if err != nil {
		return err
	}
	r, err := kafkarelay.NewKafkaReader(kcfg, origin)
	if err != nil {
		_ = w.Close()
		return err
	}

	relay := kafkarelay.New(w, r, a.svc,
		kafkarelay.WithOrigin(origin),
		kafkarelay.WithQueueSize(kcfg.QueueSize))
	defer func() {
		if err := relay.Close(); err != nil {
			logctx.FromContext(ctx).Warn("Failed to close relay", slog.Any("error", err))
		}
	}()
	detach := relay.Attach(a.bus)
	defer detach()

	health := healthcheck.NewServer(a.cfg.Health)
	health.AddProbe("settings", func(context.Context) error {
		if !a.svc.Ready() {
			return errors.New("settings service is not initialized")
		}
		return nil
	})
	health.AddProbe("database", a.pool.Ping)
	health.SetStatus(healthcheck.StatusHealthy)

	logctx.FromContext(ctx).Info("Relaying settings changes",
		slog.String("topic", kcfg.Topic),
		slog.String("group", kcfg.GroupID(origin)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return health.Start(gctx) })
	g.Go(func() error {
		err := relay.Run(gctx)
		health.SetStatus(healthcheck.StatusUnhealthy)
		if err == nil && ctx.Err() == nil {
			return errors.New("relay stopped")
		}
		return err
	})
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
