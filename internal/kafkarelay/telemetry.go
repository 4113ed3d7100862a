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

package kafkarelay

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	sentCounter     metric.Int64Counter
	receivedCounter metric.Int64Counter
	droppedCounter  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/nodesettings/internal/kafkarelay")

	var err error
	sentCounter, err = meter.Int64Counter("nodesettings.relay.sent",
		metric.WithDescription("Change events written to Kafka"))
	if err != nil {
		log.Fatalf("failed to create relay.sent counter: %v", err)
	}

	receivedCounter, err = meter.Int64Counter("nodesettings.relay.received",
		metric.WithDescription("Change events read from Kafka, by outcome"))
	if err != nil {
		log.Fatalf("failed to create relay.received counter: %v", err)
	}

	droppedCounter, err = meter.Int64Counter("nodesettings.relay.dropped",
		metric.WithDescription("Local change events dropped because the send queue was full"))
	if err != nil {
		log.Fatalf("failed to create relay.dropped counter: %v", err)
	}
}

func recordReceived(ctx context.Context, outcome string) {
	receivedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
