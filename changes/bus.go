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

// Package changes delivers content change notifications (published, moving,
// deleting) to registered handlers. Handlers for "moving" and "deleting" may
// cancel the operation.
package changes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/internal/idgen"
)

// Kind is the type of change being notified.
type Kind int

const (
	Published Kind = iota + 1
	Moving
	Deleting
)

func (k Kind) String() string {
	switch k {
	case Published:
		return "published"
	case Moving:
		return "moving"
	case Deleting:
		return "deleting"
	default:
		return "unknown"
	}
}

// Event is a single change notification. Target is only set for Moving.
type Event struct {
	ID     ulid.ULID
	Kind   Kind
	Node   *content.Node
	Target content.NodeRef
	Time   time.Time
}

// Decision is a handler's verdict on a cancellable event.
type Decision struct {
	Cancel bool
	Reason string
}

// Handler reacts to an event synchronously. The returned Decision is
// ignored for Published events.
type Handler func(ctx context.Context, ev Event) Decision

// Notifier is what a tree store calls before moving or deleting a node and
// after publishing one.
type Notifier interface {
	Publish(ctx context.Context, ev Event) Decision
}

// ErrCancelled matches every CancelledError.
var ErrCancelled = errors.New("changes: operation cancelled")

// CancelledError is returned by stores when a handler rejected a move or
// delete.
type CancelledError struct {
	Kind   Kind
	Ref    content.NodeRef
	Reason string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s of node %s cancelled: %s", e.Kind, e.Ref, e.Reason)
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// Bus is an in-process Notifier. Handlers run on the publishing goroutine
// in no particular order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind]map[uint64]Handler
	next     uint64
	ids      *idgen.EventIDGenerator
}

var _ Notifier = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Kind]map[uint64]Handler),
		ids:      idgen.NewEventIDGenerator(),
	}
}

// Subscribe registers h for events of kind and returns a function that
// removes it again.
func (b *Bus) Subscribe(kind Kind, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[uint64]Handler)
	}
	b.handlers[kind][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[kind], id)
	}
}

// NewEvent stamps an event with an id and the current time.
func (b *Bus) NewEvent(kind Kind, node *content.Node, target content.NodeRef) Event {
	now := time.Now()
	return Event{
		ID:     b.ids.Make(now),
		Kind:   kind,
		Node:   node,
		Target: target,
		Time:   now,
	}
}

// Publish delivers ev to every handler subscribed to its kind. All handlers
// run even after one cancels; the first cancellation reason is kept.
func (b *Bus) Publish(ctx context.Context, ev Event) Decision {
	if ev.ID == (ulid.ULID{}) {
		ev.ID = b.ids.Make(time.Now())
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[ev.Kind]))
	for _, h := range b.handlers[ev.Kind] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	var out Decision
	for _, h := range hs {
		d := h(ctx, ev)
		if d.Cancel && !out.Cancel {
			out = d
		}
	}
	if ev.Kind == Published {
		return Decision{}
	}
	return out
}
