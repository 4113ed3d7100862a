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

// Package catalog is the registry of settings types. Each type is declared
// once, at startup, with a stable instance identity and a display name.
// The catalog maps a type name to a materializer that turns a content node
// into the concrete Go value, so callers look types up by name instead of
// reflecting at resolution time.
package catalog

import (
	"github.com/google/uuid"

	"github.com/cardinalhq/nodesettings/content"
)

// Settings is implemented by every settings value. Go settings types get it
// by embedding Instance.
type Settings interface {
	SettingsInstance() *Instance
}

// Instance describes the content node a settings value was loaded from.
type Instance struct {
	Ref          content.NodeRef
	GUID         uuid.UUID
	Type         string
	Parent       content.NodeRef
	DisplayName  string
	Status       content.VersionStatus
	Localization *content.Localization
}

var (
	_ Settings            = (*Instance)(nil)
	_ content.Localizable = (*Instance)(nil)
	_ content.Versionable = (*Instance)(nil)
)

func (i *Instance) SettingsInstance() *Instance {
	return i
}

func (i *Instance) Localized() (*content.Localization, bool) {
	return i.Localization, i.Localization != nil
}

func (i *Instance) VersionStatus() content.VersionStatus {
	return i.Status
}

// Dynamic is the value type of settings declared at runtime (for example
// from a YAML file) rather than as a Go struct.
type Dynamic struct {
	Instance
	Values map[string]any
}
