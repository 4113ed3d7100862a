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
	"os"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/nodesettings/internal/idgen"
	"github.com/cardinalhq/nodesettings/internal/logctx"
)

var (
	meter  = otel.Meter("github.com/cardinalhq/nodesettings")
	tracer = otel.Tracer("github.com/cardinalhq/nodesettings")

	myInstanceID int64

	commandDuration metric.Float64Histogram
)

// setupTelemetry configures logging and, when ENABLE_OTLP_TELEMETRY is
// true, the OpenTelemetry SDK. The returned context is cancelled on SIGINT
// or SIGTERM and carries the configured logger; the returned function
// flushes telemetry and must be called before exit.
func setupTelemetry(servicename string) (context.Context, func() error, error) {
	myInstanceID = idgen.InstanceID()

	doneCtx, doneCancel := handleSignals(context.Background())

	f := func() error {
		doneCancel()
		return nil
	}

	if err := setupGlobalMetrics(); err != nil {
		doneCancel()
		return doneCtx, nil, err
	}

	var opts *slog.HandlerOptions
	if os.Getenv("DEBUG") != "" || os.Getenv("NODESETTINGS_DEBUG") != "" {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	if os.Getenv("OTEL_SERVICE_NAME") != "" && os.Getenv("ENABLE_OTLP_TELEMETRY") == "true" {
		slog.Info("OpenTelemetry exporting enabled")
		slog.SetDefault(slog.New(slogmulti.Fanout(
			slog.NewTextHandler(os.Stderr, opts),
			otelslog.NewHandler(servicename),
		)).With(
			slog.String("service", servicename),
			slog.Int64("instanceID", myInstanceID),
		))

		otelShutdown, err := telemetry.SetupOTelSDK(doneCtx)
		if err != nil {
			doneCancel()
			return doneCtx, nil, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
		}

		if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(time.Second * 10)); err != nil {
			slog.Warn("failed to start runtime metrics", "error", err.Error())
		}

		if err := host.Start(); err != nil {
			slog.Warn("failed to start host metrics", "error", err.Error())
		}

		f = func() error {
			defer doneCancel()
			slog.Info("Shutting down OpenTelemetry SDK")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return otelShutdown(ctx)
		}
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)).With(
			slog.String("service", servicename),
			slog.Int64("instanceID", myInstanceID),
		))
	}

	return logctx.WithLogger(doneCtx, slog.Default()), f, nil
}

func setupGlobalMetrics() error {
	m, err := meter.Float64Histogram(
		"nodesettings.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of a nodesettings command in seconds"),
	)
	if err != nil {
		return fmt.Errorf("failed to create command.duration histogram: %w", err)
	}
	commandDuration = m
	return nil
}

// runCommand wraps fn with telemetry setup, a span, and a duration record.
func runCommand(name string, fn func(ctx context.Context) error) error {
	ctx, shutdown, err := setupTelemetry("nodesettings-" + name)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	ctx, span := tracer.Start(ctx, "nodesettings."+name)
	defer span.End()

	start := time.Now()
	err = fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	commandDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("outcome", outcome),
	))
	return err
}
