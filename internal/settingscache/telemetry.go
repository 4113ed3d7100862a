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

package settingscache

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	lookupCounter   metric.Int64Counter
	populateCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/nodesettings/internal/settingscache")

	var err error
	lookupCounter, err = meter.Int64Counter(
		"nodesettings.cache.lookup",
		metric.WithDescription("Settings cache lookups by result (hit or miss)"),
	)
	if err != nil {
		log.Fatalf("failed to create nodesettings.cache.lookup counter: %v", err)
	}

	populateCounter, err = meter.Int64Counter(
		"nodesettings.cache.populate",
		metric.WithDescription("Number of populate calls made on cache misses"),
	)
	if err != nil {
		log.Fatalf("failed to create nodesettings.cache.populate counter: %v", err)
	}
}

func recordLookup(ctx context.Context, cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	lookupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.String("result", result),
	))
}

func recordPopulate(ctx context.Context, cache string) {
	populateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cache)))
}
