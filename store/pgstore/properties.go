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

package pgstore

import (
	"encoding/json"
	"fmt"

	"github.com/cardinalhq/nodesettings/content"
)

// refKey marks a JSON object that stands for a content.NodeRef.
const refKey = "$noderef"

// encodeProperties renders node properties as JSON. NodeRef values, which
// are associations, become {"$noderef": "<ref>"} so they survive the round
// trip as references rather than strings.
func encodeProperties(props map[string]any) ([]byte, error) {
	if len(props) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(encodeValue(props))
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}
	return b, nil
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case content.NodeRef:
		return map[string]any{refKey: x.String()}
	case *content.NodeRef:
		if x == nil {
			return nil
		}
		return map[string]any{refKey: x.String()}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = encodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = encodeValue(e)
		}
		return out
	case []content.NodeRef:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = encodeValue(e)
		}
		return out
	default:
		return v
	}
}

func decodeProperties(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var props map[string]any
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	if props == nil {
		return map[string]any{}, nil
	}
	for k, v := range props {
		props[k] = decodeValue(v)
	}
	return props, nil
}

func decodeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if s, ok := x[refKey].(string); ok && len(x) == 1 {
			if ref, err := content.ParseNodeRef(s); err == nil {
				return ref
			}
		}
		for k, e := range x {
			x[k] = decodeValue(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = decodeValue(e)
		}
		return x
	default:
		return v
	}
}
