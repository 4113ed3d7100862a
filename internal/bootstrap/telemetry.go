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

package bootstrap

import (
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var bootstrapCreatedCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/nodesettings/internal/bootstrap")

	var err error
	bootstrapCreatedCounter, err = meter.Int64Counter(
		"nodesettings.bootstrap.created",
		metric.WithDescription("Number of global settings instances created at bootstrap"),
	)
	if err != nil {
		log.Fatalf("failed to create nodesettings.bootstrap.created counter: %v", err)
	}
}

func metricAttrs(settingsType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("type", settingsType))
}
