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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/nodesettings/changes"
	"github.com/cardinalhq/nodesettings/content"
)

type fakeWriter struct {
	mu       sync.Mutex
	msgs     []kafka.Message
	failNext int
	failures int
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext > 0 {
		w.failNext--
		w.failures++
		return errors.New("broker down")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	in        chan kafka.Message
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{in: make(chan kafka.Message, 16)}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.in:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type recordingUpdater struct {
	mu    sync.Mutex
	nodes []*content.Node
}

func (u *recordingUpdater) UpdateSettings(_ context.Context, n *content.Node) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nodes = append(u.nodes, n)
}

func (u *recordingUpdater) updated() []*content.Node {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*content.Node(nil), u.nodes...)
}

func runRelay(t *testing.T, r *Relay) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("relay did not stop")
		}
	})
}

func publishedNode() *content.Node {
	return &content.Node{
		Ref:    content.NodeRef{ID: 42, WorkID: 3},
		GUID:   uuid.New(),
		Parent: content.NodeRef{ID: 7},
		Shape:  "Nav",
		Name:   "nav",
	}
}

func TestRelay_WritesLocalEvents(t *testing.T) {
	bus := changes.NewBus()
	w := &fakeWriter{}
	r := New(w, nil, &recordingUpdater{}, WithOrigin("a"))
	detach := r.Attach(bus)
	runRelay(t, r)

	n := publishedNode()
	bus.Publish(context.Background(), bus.NewEvent(changes.Published, n, content.EmptyRef))
	bus.Publish(context.Background(), bus.NewEvent(changes.Deleting, n, content.EmptyRef))

	require.Eventually(t, func() bool { return len(w.written()) == 1 }, time.Second, 5*time.Millisecond)
	msg := w.written()[0]
	assert.Equal(t, "a", header(msg, headerOrigin))
	assert.Equal(t, "published", header(msg, headerKind))
	assert.Equal(t, n.GUID.String(), string(msg.Key))

	got, err := decodeNode(msg)
	require.NoError(t, err)
	assert.Equal(t, n.Ref, got.Ref)
	assert.Equal(t, n.GUID, got.GUID)
	assert.Equal(t, n.Parent, got.Parent)
	assert.Equal(t, "Nav", got.Shape)

	detach()
	bus.Publish(context.Background(), bus.NewEvent(changes.Published, n, content.EmptyRef))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, w.written(), 1)
}

func TestRelay_AppliesRemoteEvents(t *testing.T) {
	rd := newFakeReader()
	up := &recordingUpdater{}
	r := New(nil, rd, up, WithOrigin("a"))
	runRelay(t, r)

	n := publishedNode()
	bus := changes.NewBus()
	remote, err := encodeEvent("b", bus.NewEvent(changes.Published, n, content.EmptyRef))
	require.NoError(t, err)
	remote.Offset = 1
	own, err := encodeEvent("a", bus.NewEvent(changes.Published, n, content.EmptyRef))
	require.NoError(t, err)
	own.Offset = 2
	garbage := kafka.Message{Offset: 3, Value: []byte("{"), Headers: remote.Headers}

	rd.in <- remote
	rd.in <- own
	rd.in <- garbage

	require.Eventually(t, func() bool { return len(rd.commits()) == 3 }, time.Second, 5*time.Millisecond)
	got := up.updated()
	require.Len(t, got, 1)
	assert.Equal(t, n.Ref, got[0].Ref)
	assert.Equal(t, content.StatusPublished, got[0].Status)
}

func TestRelay_QueueFullDrops(t *testing.T) {
	bus := changes.NewBus()
	w := &fakeWriter{}
	r := New(w, nil, &recordingUpdater{}, WithQueueSize(1))
	r.Attach(bus)

	n := publishedNode()
	d := bus.Publish(context.Background(), bus.NewEvent(changes.Published, n, content.EmptyRef))
	assert.False(t, d.Cancel)
	bus.Publish(context.Background(), bus.NewEvent(changes.Published, n, content.EmptyRef))
	assert.Len(t, r.queue, 1)
}

func TestRelay_WriteErrorKeepsRunning(t *testing.T) {
	bus := changes.NewBus()
	w := &fakeWriter{failNext: 1}
	r := New(w, nil, &recordingUpdater{})
	r.Attach(bus)
	runRelay(t, r)

	bus.Publish(context.Background(), bus.NewEvent(changes.Published, publishedNode(), content.EmptyRef))
	bus.Publish(context.Background(), bus.NewEvent(changes.Published, publishedNode(), content.EmptyRef))
	require.Eventually(t, func() bool { return len(w.written()) == 1 }, time.Second, 5*time.Millisecond)
	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, 1, w.failures)
}

func TestRelay_ReaderErrorStopsRun(t *testing.T) {
	r := New(nil, failingReader{}, &recordingUpdater{})
	err := r.Run(context.Background())
	assert.EqualError(t, err, "fetch failed")
}

func TestRelay_Close(t *testing.T) {
	w := &fakeWriter{}
	rd := newFakeReader()
	r := New(w, rd, &recordingUpdater{})
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, w.closed)
	assert.True(t, rd.closed)
}

func TestOriginDefaults(t *testing.T) {
	r := New(nil, nil, &recordingUpdater{})
	assert.NotEmpty(t, r.OriginName())
	assert.Equal(t, "nodesettings."+r.OriginName(), DefaultConfig().GroupID(r.OriginName()))
}

func TestSASLMechanism(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SASLEnabled = true
	cfg.SASLUsername = "u"
	cfg.SASLPassword = "p"
	for _, m := range []string{"SCRAM-SHA-256", "SCRAM-SHA-512", "PLAIN"} {
		cfg.SASLMechanism = m
		_, _, err := security(cfg)
		assert.NoError(t, err, m)
	}
	cfg.SASLMechanism = "GSSAPI"
	_, _, err := security(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.TLSEnabled = true
	mech, tlsConfig, err := security(cfg)
	require.NoError(t, err)
	assert.Nil(t, mech)
	assert.NotNil(t, tlsConfig)
}

type failingReader struct{}

func (failingReader) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("fetch failed")
}
func (failingReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }
func (failingReader) Close() error { return nil }
