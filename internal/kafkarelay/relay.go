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

// Package kafkarelay shares settings invalidations between processes that
// serve the same content tree. Local publish events are written to a Kafka
// topic and events written by other processes are replayed against the
// local settings service.
package kafkarelay

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/nodesettings/changes"
	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/internal/idgen"
	"github.com/cardinalhq/nodesettings/internal/logctx"
)

// Updater receives nodes published by other processes.
type Updater interface {
	UpdateSettings(ctx context.Context, n *content.Node)
}

// Subscriber is where the relay listens for local publish events.
type Subscriber interface {
	Subscribe(kind changes.Kind, h changes.Handler) func()
}

type Option func(*Relay)

// WithOrigin overrides the process name stamped on outgoing events.
func WithOrigin(origin string) Option {
	return func(r *Relay) { r.origin = origin }
}

// WithQueueSize sets how many local events may wait to be written.
func WithQueueSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queue = make(chan changes.Event, n)
		}
	}
}

type Relay struct {
	writer    Writer
	reader    Reader
	target    Updater
	origin    string
	queue     chan changes.Event
	closeOnce sync.Once
}

// New returns a relay writing with w and reading with r. Either may be nil
// to run the relay in one direction only.
func New(w Writer, r Reader, target Updater, opts ...Option) *Relay {
	relay := &Relay{
		writer: w,
		reader: r,
		target: target,
		origin: Origin(),
		queue:  make(chan changes.Event, DefaultConfig().QueueSize),
	}
	for _, opt := range opts {
		opt(relay)
	}
	return relay
}

// Origin is the default name of this process on the relay topic.
func Origin() string {
	return strconv.FormatInt(idgen.InstanceID(), 10)
}

func (r *Relay) OriginName() string { return r.origin }

// Attach subscribes the relay to local publish events and returns the
// function that detaches it. Events are queued and never block the
// publisher; when the queue is full the event is dropped.
func (r *Relay) Attach(sub Subscriber) func() {
	return sub.Subscribe(changes.Published, func(ctx context.Context, ev changes.Event) changes.Decision {
		if ev.Node == nil {
			return changes.Decision{}
		}
		select {
		case r.queue <- ev:
		default:
			droppedCounter.Add(ctx, 1)
			logctx.FromContext(ctx).Warn("Relay queue full, dropping change event",
				slog.String("ref", ev.Node.Ref.String()))
		}
		return changes.Decision{}
	})
}

// Run writes queued local events and applies remote ones until ctx is
// done. It returns nil on cancellation.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if r.writer != nil {
		g.Go(func() error { return r.sendLoop(ctx) })
	}
	if r.reader != nil {
		g.Go(func() error { return r.receiveLoop(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Relay) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.queue:
			r.send(ctx, ev)
		}
	}
}

func (r *Relay) send(ctx context.Context, ev changes.Event) {
	ll := logctx.FromContext(ctx)
	msg, err := encodeEvent(r.origin, ev)
	if err != nil {
		ll.Error("Failed to encode change event", slog.Any("error", err))
		return
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		if ctx.Err() == nil {
			ll.Error("Failed to write change event", slog.Any("error", err),
				slog.String("ref", ev.Node.Ref.String()))
		}
		return
	}
	sentCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", ev.Kind.String())))
}

func (r *Relay) receiveLoop(ctx context.Context) error {
	ll := logctx.FromContext(ctx)
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		r.apply(ctx, msg)
		if err := r.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			ll.Warn("Failed to commit change event", slog.Any("error", err), slog.Int64("offset", msg.Offset))
		}
	}
}

func (r *Relay) apply(ctx context.Context, msg kafka.Message) {
	if header(msg, headerOrigin) == r.origin {
		recordReceived(ctx, "own")
		return
	}
	if kind := header(msg, headerKind); kind != changes.Published.String() {
		recordReceived(ctx, "ignored")
		return
	}
	n, err := decodeNode(msg)
	if err != nil {
		recordReceived(ctx, "invalid")
		logctx.FromContext(ctx).Warn("Skipping undecodable change event", slog.Any("error", err))
		return
	}
	r.target.UpdateSettings(ctx, n)
	recordReceived(ctx, "applied")
}

// Close releases the Kafka clients.
func (r *Relay) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		if r.writer != nil {
			errs = append(errs, r.writer.Close())
		}
		if r.reader != nil {
			errs = append(errs, r.reader.Close())
		}
	})
	return errors.Join(errs...)
}
