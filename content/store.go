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
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a reference or identity resolves to no node.
	ErrNotFound = errors.New("content: node not found")
	// ErrDuplicateGUID is returned by Save when another node already owns the GUID.
	ErrDuplicateGUID = errors.New("content: duplicate node guid")
	// ErrRootConflict is returned when a root name is already bound to a
	// different identity.
	ErrRootConflict = errors.New("content: root name registered with a different identity")
)

// SaveAction selects what Save does with the version being written.
type SaveAction int

const (
	// SaveDraft stores the version without publishing it.
	SaveDraft SaveAction = iota
	// SavePublish stores and publishes the version.
	SavePublish
)

// SaveOptions controls a Save call.
type SaveOptions struct {
	Action SaveAction
	// Access is the default access level for a newly created node.
	Access AccessLevel
}

// Loader reads nodes from the tree.
type Loader interface {
	// Get loads the node at ref. It returns ErrNotFound when nothing is there.
	Get(ctx context.Context, ref NodeRef) (*Node, error)
	// GetByGUID loads the node with the given identity.
	GetByGUID(ctx context.Context, id uuid.UUID) (*Node, error)
	// Children loads the direct children of ref.
	Children(ctx context.Context, ref NodeRef) ([]*Node, error)
	// Descendants returns references to every node below ref, in no
	// particular order.
	Descendants(ctx context.Context, ref NodeRef) ([]NodeRef, error)
}

// Writer creates and persists nodes.
type Writer interface {
	// GetDefault returns an unsaved node of the given shape under parent,
	// with the shape's default property values.
	GetDefault(ctx context.Context, parent NodeRef, shape string) (*Node, error)
	// Save persists n and returns its reference. A GUID already owned by a
	// different node yields ErrDuplicateGUID.
	Save(ctx context.Context, n *Node, opts SaveOptions) (NodeRef, error)
}

// Store is the full tree store consumed by the settings engine.
type Store interface {
	Loader
	Writer
}

// AncestorWalker lists the ancestors of a node, nearest first, excluding
// the node itself.
type AncestorWalker interface {
	Ancestors(ctx context.Context, ref NodeRef) ([]NodeRef, error)
}

// RootSpec describes a well-known root folder.
type RootSpec struct {
	Name   string
	ID     uuid.UUID
	Parent NodeRef
	Shape  string
}

// RootRegistry binds well-known root names to nodes with fixed identities.
type RootRegistry interface {
	// Register makes sure a root named spec.Name exists with identity
	// spec.ID and returns its reference. If the name is already bound to
	// another identity it returns ErrRootConflict.
	Register(ctx context.Context, spec RootSpec) (NodeRef, error)
	// Root returns the reference bound to name, or ErrNotFound.
	Root(ctx context.Context, name string) (NodeRef, error)
}

// TryGet loads ref and reports whether it succeeded. Every failure,
// including transient ones, is reported as false.
func TryGet(ctx context.Context, l Loader, ref NodeRef) (*Node, bool) {
	if ref.IsEmpty() {
		return nil, false
	}
	n, err := l.Get(ctx, ref)
	if err != nil || n == nil {
		return nil, false
	}
	return n, true
}
