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

// Package memstore is an in-process content tree. It backs tests and the
// CLI when no database is configured.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/cardinalhq/nodesettings/changes"
	"github.com/cardinalhq/nodesettings/content"
)

// Store keeps the whole tree in memory. Every node handed out is a copy.
type Store struct {
	mu       sync.RWMutex
	nodes    map[int64]*content.Node
	children map[int64][]int64
	byGUID   map[uuid.UUID]int64
	roots    map[string]int64
	sites    []content.Site
	defaults map[string]map[string]any
	nextID   int64

	notifier changes.Notifier
}

var (
	_ content.Store          = (*Store)(nil)
	_ content.AncestorWalker = (*Store)(nil)
	_ content.RootRegistry   = (*Store)(nil)
	_ content.SiteDirectory  = (*Store)(nil)
)

type Option func(*Store)

// WithNotifier makes the store report publishes, moves and deletes to n.
func WithNotifier(n changes.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithShapeDefaults sets the property values GetDefault gives new nodes of
// shape.
func WithShapeDefaults(shape string, props map[string]any) Option {
	return func(s *Store) { s.defaults[shape] = maps.Clone(props) }
}

// New returns a store holding only the tree root and the waste basket.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:    make(map[int64]*content.Node),
		children: make(map[int64][]int64),
		byGUID:   make(map[uuid.UUID]int64),
		roots:    make(map[string]int64),
		defaults: make(map[string]map[string]any),
		nextID:   content.WasteBasketRef.ID + 1,
	}
	for _, o := range opts {
		o(s)
	}

	root := &content.Node{
		Ref:    content.RootRef,
		GUID:   uuid.New(),
		Name:   "Root",
		Shape:  content.FolderShape,
		Status: content.StatusPublished,
		Access: content.AccessFull,
	}
	basket := &content.Node{
		Ref:    content.WasteBasketRef,
		GUID:   uuid.New(),
		Parent: content.RootRef,
		Name:   "Waste Basket",
		Shape:  content.FolderShape,
		Status: content.StatusPublished,
		Access: content.AccessFull,
	}
	s.insertLocked(root)
	s.insertLocked(basket)
	return s
}

func (s *Store) insertLocked(n *content.Node) {
	s.nodes[n.Ref.ID] = n
	s.byGUID[n.GUID] = n.Ref.ID
	if !n.Parent.IsEmpty() {
		s.children[n.Parent.ID] = append(s.children[n.Parent.ID], n.Ref.ID)
	}
}

func (s *Store) Get(_ context.Context, ref content.NodeRef) (*content.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[ref.ID]
	if !ok || ref.Provider != "" {
		return nil, fmt.Errorf("node %s: %w", ref, content.ErrNotFound)
	}
	return n.Clone(), nil
}

func (s *Store) GetByGUID(_ context.Context, id uuid.UUID) (*content.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nid, ok := s.byGUID[id]
	if !ok {
		return nil, fmt.Errorf("node with guid %s: %w", id, content.ErrNotFound)
	}
	return s.nodes[nid].Clone(), nil
}

func (s *Store) Children(_ context.Context, ref content.NodeRef) ([]*content.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[ref.ID]; !ok {
		return nil, fmt.Errorf("node %s: %w", ref, content.ErrNotFound)
	}
	ids := s.children[ref.ID]
	out := make([]*content.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.nodes[id].Clone())
	}
	return out, nil
}

func (s *Store) Descendants(_ context.Context, ref content.NodeRef) ([]content.NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[ref.ID]; !ok {
		return nil, fmt.Errorf("node %s: %w", ref, content.ErrNotFound)
	}
	var out []content.NodeRef
	queue := slices.Clone(s.children[ref.ID])
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, s.nodes[id].Ref)
		queue = append(queue, s.children[id]...)
	}
	return out, nil
}

// Ancestors returns the parent chain of ref, nearest first, ending with the
// tree root.
func (s *Store) Ancestors(_ context.Context, ref content.NodeRef) ([]content.NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[ref.ID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", ref, content.ErrNotFound)
	}
	var out []content.NodeRef
	for p := n.Parent; !p.IsEmpty(); {
		parent, ok := s.nodes[p.ID]
		if !ok {
			break
		}
		out = append(out, parent.Ref)
		p = parent.Parent
	}
	return out, nil
}

func (s *Store) GetDefault(_ context.Context, parent content.NodeRef, shape string) (*content.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[parent.ID]; !ok {
		return nil, fmt.Errorf("parent %s: %w", parent, content.ErrNotFound)
	}
	props := maps.Clone(s.defaults[shape])
	if props == nil {
		props = make(map[string]any)
	}
	return &content.Node{
		Parent:     parent.Logical(),
		Shape:      shape,
		Properties: props,
		Status:     content.StatusNotCreated,
	}, nil
}

// Save inserts n when its Ref is empty and updates the existing node
// otherwise. Each save bumps the work id of the returned reference. Saving
// with SavePublish notifies a Published event after the write.
func (s *Store) Save(ctx context.Context, n *content.Node, opts content.SaveOptions) (content.NodeRef, error) {
	if n == nil {
		return content.EmptyRef, fmt.Errorf("save: nil node")
	}
	stored := n.Clone()
	if opts.Action == content.SavePublish {
		stored.Status = content.StatusPublished
	} else {
		stored.Status = content.StatusCheckedOut
	}

	s.mu.Lock()
	if stored.Ref.IsEmpty() {
		if err := s.createLocked(stored, opts); err != nil {
			s.mu.Unlock()
			return content.EmptyRef, err
		}
	} else if err := s.updateLocked(stored); err != nil {
		s.mu.Unlock()
		return content.EmptyRef, err
	}
	ref := stored.Ref
	published := stored.Clone()
	s.mu.Unlock()

	if opts.Action == content.SavePublish && s.notifier != nil {
		s.notifier.Publish(ctx, changes.Event{Kind: changes.Published, Node: published})
	}
	return ref, nil
}

func (s *Store) createLocked(n *content.Node, opts content.SaveOptions) error {
	if n.Parent.IsEmpty() {
		return fmt.Errorf("save %q: node has no parent", n.Name)
	}
	if _, ok := s.nodes[n.Parent.ID]; !ok {
		return fmt.Errorf("save %q: parent %s: %w", n.Name, n.Parent, content.ErrNotFound)
	}
	if n.GUID == uuid.Nil {
		n.GUID = uuid.New()
	} else if _, taken := s.byGUID[n.GUID]; taken {
		return fmt.Errorf("save %q: guid %s: %w", n.Name, n.GUID, content.ErrDuplicateGUID)
	}
	n.Ref = content.NodeRef{ID: s.nextID, WorkID: 1}
	n.Parent = n.Parent.Logical()
	n.Access = opts.Access
	s.nextID++
	s.insertLocked(n)
	return nil
}

func (s *Store) updateLocked(n *content.Node) error {
	cur, ok := s.nodes[n.Ref.ID]
	if !ok {
		return fmt.Errorf("save %s: %w", n.Ref, content.ErrNotFound)
	}
	if n.GUID == uuid.Nil {
		n.GUID = cur.GUID
	}
	if n.GUID != cur.GUID {
		if _, taken := s.byGUID[n.GUID]; taken {
			return fmt.Errorf("save %s: guid %s: %w", n.Ref, n.GUID, content.ErrDuplicateGUID)
		}
		delete(s.byGUID, cur.GUID)
		s.byGUID[n.GUID] = cur.Ref.ID
	}
	// Parent changes go through Move.
	n.Parent = cur.Parent
	n.Ref = content.NodeRef{ID: cur.Ref.ID, WorkID: cur.Ref.WorkID + 1}
	s.nodes[n.Ref.ID] = n
	return nil
}

// Move reparents ref under target after asking the notifier. A cancelled
// move returns a *changes.CancelledError.
func (s *Store) Move(ctx context.Context, ref, target content.NodeRef) error {
	n, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	if ref.EqualIgnoreWork(content.RootRef) || ref.EqualIgnoreWork(content.WasteBasketRef) {
		return fmt.Errorf("move %s: system nodes cannot be moved", ref)
	}
	if _, err := s.Get(ctx, target); err != nil {
		return fmt.Errorf("move %s: target: %w", ref, err)
	}
	if s.notifier != nil {
		if d := s.notifier.Publish(ctx, changes.Event{Kind: changes.Moving, Node: n, Target: target.Logical()}); d.Cancel {
			return &changes.CancelledError{Kind: changes.Moving, Ref: n.Ref, Reason: d.Reason}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.nodes[ref.ID]
	if !ok {
		return fmt.Errorf("move %s: %w", ref, content.ErrNotFound)
	}
	if _, ok := s.nodes[target.ID]; !ok {
		return fmt.Errorf("move %s: target %s: %w", ref, target, content.ErrNotFound)
	}
	for p := target.ID; p != 0; {
		if p == ref.ID {
			return fmt.Errorf("move %s: target %s is inside the moved subtree", ref, target)
		}
		parent, ok := s.nodes[p]
		if !ok {
			break
		}
		p = parent.Parent.ID
	}
	old := cur.Parent.ID
	s.children[old] = slices.DeleteFunc(s.children[old], func(id int64) bool { return id == ref.ID })
	cur.Parent = target.Logical()
	s.children[target.ID] = append(s.children[target.ID], ref.ID)
	return nil
}

// MoveToWasteBasket moves ref to the waste basket.
func (s *Store) MoveToWasteBasket(ctx context.Context, ref content.NodeRef) error {
	return s.Move(ctx, ref, content.WasteBasketRef)
}

// Delete permanently removes ref and its subtree after asking the notifier.
// A cancelled delete returns a *changes.CancelledError.
func (s *Store) Delete(ctx context.Context, ref content.NodeRef) error {
	n, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	if ref.EqualIgnoreWork(content.RootRef) || ref.EqualIgnoreWork(content.WasteBasketRef) {
		return fmt.Errorf("delete %s: system nodes cannot be deleted", ref)
	}
	if s.notifier != nil {
		if d := s.notifier.Publish(ctx, changes.Event{Kind: changes.Deleting, Node: n}); d.Cancel {
			return &changes.CancelledError{Kind: changes.Deleting, Ref: n.Ref, Reason: d.Reason}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.nodes[ref.ID]
	if !ok {
		return nil
	}
	parent := cur.Parent.ID
	s.children[parent] = slices.DeleteFunc(s.children[parent], func(id int64) bool { return id == ref.ID })
	s.removeLocked(ref.ID)
	return nil
}

func (s *Store) removeLocked(id int64) {
	for _, c := range s.children[id] {
		s.removeLocked(c)
	}
	delete(s.children, id)
	if n, ok := s.nodes[id]; ok {
		delete(s.byGUID, n.GUID)
		delete(s.nodes, id)
	}
	for name, rid := range s.roots {
		if rid == id {
			delete(s.roots, name)
		}
	}
}

// Register binds spec.Name to a folder with identity spec.ID, creating the
// folder when no node has that identity yet.
func (s *Store) Register(_ context.Context, spec content.RootSpec) (content.NodeRef, error) {
	if spec.Name == "" || spec.ID == uuid.Nil {
		return content.EmptyRef, fmt.Errorf("register root: name and id are required")
	}
	parent := spec.Parent
	if parent.IsEmpty() {
		parent = content.RootRef
	}
	shape := spec.Shape
	if shape == "" {
		shape = content.FolderShape
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.roots[spec.Name]; ok {
		n := s.nodes[id]
		if n.GUID != spec.ID {
			return content.EmptyRef, fmt.Errorf("root %q is %s, want %s: %w", spec.Name, n.GUID, spec.ID, content.ErrRootConflict)
		}
		return n.Ref.Logical(), nil
	}
	if id, ok := s.byGUID[spec.ID]; ok {
		s.roots[spec.Name] = id
		return s.nodes[id].Ref.Logical(), nil
	}
	if _, ok := s.nodes[parent.ID]; !ok {
		return content.EmptyRef, fmt.Errorf("register root %q: parent %s: %w", spec.Name, parent, content.ErrNotFound)
	}

	n := &content.Node{
		Ref:    content.NodeRef{ID: s.nextID, WorkID: 1},
		GUID:   spec.ID,
		Parent: parent.Logical(),
		Name:   spec.Name,
		Shape:  shape,
		Status: content.StatusPublished,
		Access: content.AccessFull,
	}
	s.nextID++
	s.insertLocked(n)
	s.roots[spec.Name] = n.Ref.ID
	return n.Ref.Logical(), nil
}

func (s *Store) Root(_ context.Context, name string) (content.NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roots[name]
	if !ok {
		return content.EmptyRef, fmt.Errorf("root %q: %w", name, content.ErrNotFound)
	}
	return s.nodes[id].Ref.Logical(), nil
}

// AddSite adds or replaces a site definition.
func (s *Store) AddSite(site content.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.sites, func(o content.Site) bool { return o.ID == site.ID })
	if i >= 0 {
		s.sites[i] = site
		return
	}
	s.sites = append(s.sites, site)
}

func (s *Store) ListSites(context.Context) ([]content.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sites), nil
}

// Len returns the number of nodes, including the root and waste basket.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
