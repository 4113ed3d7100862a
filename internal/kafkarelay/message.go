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
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/cardinalhq/nodesettings/changes"
	"github.com/cardinalhq/nodesettings/content"
)

const (
	headerOrigin = "nodesettings-origin"
	headerKind   = "nodesettings-kind"
)

// payload is the wire form of a published node. Only the fields needed to
// locate the node again are carried; receivers read everything else from
// the shared store.
type payload struct {
	EventID string          `json:"event_id"`
	Ref     content.NodeRef `json:"ref"`
	GUID    uuid.UUID       `json:"guid"`
	Parent  content.NodeRef `json:"parent"`
	Shape   string          `json:"shape"`
	Name    string          `json:"name,omitempty"`
	Time    time.Time       `json:"time"`
}

func encodeEvent(origin string, ev changes.Event) (kafka.Message, error) {
	n := ev.Node
	if n == nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: no node", ev.Kind)
	}
	b, err := json.Marshal(payload{
		EventID: ev.ID.String(),
		Ref:     n.Ref,
		GUID:    n.GUID,
		Parent:  n.Parent,
		Shape:   n.Shape,
		Name:    n.Name,
		Time:    ev.Time,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	return kafka.Message{
		Key:   []byte(n.GUID.String()),
		Value: b,
		Headers: []kafka.Header{
			{Key: headerOrigin, Value: []byte(origin)},
			{Key: headerKind, Value: []byte(ev.Kind.String())},
		},
	}, nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func decodeNode(m kafka.Message) (*content.Node, error) {
	var p payload
	if err := json.Unmarshal(m.Value, &p); err != nil {
		return nil, fmt.Errorf("decode event at offset %d: %w", m.Offset, err)
	}
	if p.Ref.IsEmpty() {
		return nil, fmt.Errorf("decode event at offset %d: empty node ref", m.Offset)
	}
	return &content.Node{
		Ref:    p.Ref,
		GUID:   p.GUID,
		Parent: p.Parent,
		Shape:  p.Shape,
		Name:   p.Name,
		Status: content.StatusPublished,
	}, nil
}
