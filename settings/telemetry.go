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

package settings

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var resolveCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/nodesettings/settings")

	var err error
	resolveCounter, err = meter.Int64Counter(
		"nodesettings.resolve.tier",
		metric.WithDescription("Settings resolutions by the tier that answered (self, ancestor, global or miss)"),
	)
	if err != nil {
		log.Fatalf("failed to create nodesettings.resolve.tier counter: %v", err)
	}
}

func recordResolve(ctx context.Context, settingsType, tier string) {
	resolveCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", settingsType),
		attribute.String("tier", tier),
	))
}
