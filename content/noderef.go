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

package content

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NodeRef identifies a node in the content tree. WorkID selects a specific
// working version; zero means "the current version". Provider is empty for
// nodes owned by the default store.
type NodeRef struct {
	ID       int64
	WorkID   int64
	Provider string
}

var (
	// EmptyRef is the zero reference; it points nowhere.
	EmptyRef = NodeRef{}
	// RootRef is the absolute root of the tree.
	RootRef = NodeRef{ID: 1}
	// WasteBasketRef is where deleted nodes are moved to.
	WasteBasketRef = NodeRef{ID: 2}
)

var errInvalidRef = errors.New("invalid node reference")

// IsEmpty reports whether r points nowhere.
func (r NodeRef) IsEmpty() bool {
	return r.ID <= 0
}

// Logical returns r with the work id cleared.
func (r NodeRef) Logical() NodeRef {
	r.WorkID = 0
	return r
}

// EqualIgnoreWork compares two references by logical identity, ignoring the
// working version.
func (r NodeRef) EqualIgnoreWork(o NodeRef) bool {
	return r.ID == o.ID && r.Provider == o.Provider
}

// String renders r as "id", "id_work", "id__provider" or "id_work_provider".
func (r NodeRef) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(r.ID, 10))
	if r.WorkID != 0 || r.Provider != "" {
		b.WriteByte('_')
		if r.WorkID != 0 {
			b.WriteString(strconv.FormatInt(r.WorkID, 10))
		}
	}
	if r.Provider != "" {
		b.WriteByte('_')
		b.WriteString(r.Provider)
	}
	return b.String()
}

// ParseNodeRef parses the String form of a NodeRef.
func ParseNodeRef(s string) (NodeRef, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "_", 3)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id < 0 {
		return EmptyRef, fmt.Errorf("%w: %q", errInvalidRef, s)
	}
	ref := NodeRef{ID: id}
	if len(parts) > 1 && parts[1] != "" {
		work, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || work < 0 {
			return EmptyRef, fmt.Errorf("%w: %q", errInvalidRef, s)
		}
		ref.WorkID = work
	}
	if len(parts) > 2 {
		ref.Provider = parts[2]
	}
	return ref, nil
}

// MarshalText implements encoding.TextMarshaler.
func (r NodeRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *NodeRef) UnmarshalText(b []byte) error {
	ref, err := ParseNodeRef(string(b))
	if err != nil {
		return err
	}
	*r = ref
	return nil
}
