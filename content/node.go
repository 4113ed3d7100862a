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
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Shapes known to the engine. Any other shape name is defined by the
// settings catalog or by the hosting application.
const (
	// FolderShape is used for the well-known settings roots.
	FolderShape = "ContentFolder"
	// SettingsBaseShape is the fallback shape of a settings node whose
	// concrete type is no longer declared. Such nodes are never treated as
	// genuine settings instances.
	SettingsBaseShape = "SettingsBase"
)

// VersionStatus is the publishing state of a node version.
type VersionStatus int

const (
	StatusNotCreated VersionStatus = iota
	StatusRejected
	StatusCheckedOut
	StatusCheckedIn
	StatusPublished
	StatusPreviouslyPublished
	StatusDelayedPublish
	StatusAwaitingApproval
)

func (s VersionStatus) String() string {
	switch s {
	case StatusNotCreated:
		return "not_created"
	case StatusRejected:
		return "rejected"
	case StatusCheckedOut:
		return "checked_out"
	case StatusCheckedIn:
		return "checked_in"
	case StatusPublished:
		return "published"
	case StatusPreviouslyPublished:
		return "previously_published"
	case StatusDelayedPublish:
		return "delayed_publish"
	case StatusAwaitingApproval:
		return "awaiting_approval"
	default:
		return "unknown"
	}
}

// AccessLevel is the default access granted to everyone on a node.
type AccessLevel int

const (
	AccessNoAccess AccessLevel = 0
	AccessRead     AccessLevel = 1
	AccessEdit     AccessLevel = 2
	AccessPublish  AccessLevel = 4
	AccessFull     AccessLevel = 63
)

// Localization describes the language variants of a localizable node.
type Localization struct {
	Existing []language.Tag
	Language language.Tag
	Master   language.Tag
}

// Versioning carries the scheduling part of a versionable node.
type Versioning struct {
	StartPublish     *time.Time
	StopPublish      *time.Time
	IsPendingPublish bool
}

// Localizable is implemented by values that expose a language facet.
type Localizable interface {
	Localized() (*Localization, bool)
}

// Versionable is implemented by values that expose a publishing state.
type Versionable interface {
	VersionStatus() VersionStatus
}

// Node is one entry in the content tree: a page, a folder, or a settings
// instance. Properties hold the node's own values; a property whose value
// is a NodeRef is an association to another node.
type Node struct {
	Ref          NodeRef
	GUID         uuid.UUID
	Parent       NodeRef
	Name         string
	Shape        string
	Properties   map[string]any
	Status       VersionStatus
	Access       AccessLevel
	Localization *Localization
	Versioning   *Versioning
}

var (
	_ Localizable = (*Node)(nil)
	_ Versionable = (*Node)(nil)
)

// Localized returns the language facet, if the node has one.
func (n *Node) Localized() (*Localization, bool) {
	return n.Localization, n.Localization != nil
}

// VersionStatus returns the publishing state of this version.
func (n *Node) VersionStatus() VersionStatus {
	return n.Status
}

// Property returns the named property and whether it is set to a non-nil
// value.
func (n *Node) Property(name string) (any, bool) {
	v, ok := n.Properties[name]
	return v, ok && v != nil
}

// Clone returns a copy of n that shares no maps or slices with it.
// Property values themselves are copied shallowly.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Properties = maps.Clone(n.Properties)
	if n.Localization != nil {
		l := *n.Localization
		l.Existing = slices.Clone(n.Localization.Existing)
		c.Localization = &l
	}
	if n.Versioning != nil {
		v := *n.Versioning
		c.Versioning = &v
	}
	return &c
}
