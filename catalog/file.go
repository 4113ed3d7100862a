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

package catalog

import (
	"bytes"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const SupportedFileVersion = 1

// File is the YAML form of a set of dynamic settings type declarations:
//
//	version: 1
//	types:
//	  - name: NavigationSettings
//	    instance_id: 2f1f3a1e-1111-4c3b-9a43-5f7b8c0d2e10
//	    display_name: Navigation
type File struct {
	Version int        `yaml:"version"`
	Types   []FileType `yaml:"types"`
}

type FileType struct {
	Name        string `yaml:"name"`
	InstanceID  string `yaml:"instance_id"`
	DisplayName string `yaml:"display_name,omitempty"`
	Shape       string `yaml:"shape,omitempty"`
}

// LoadFile reads and parses a declarations file.
func LoadFile(path string) (*File, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return ParseFile(contents)
}

// ParseFile parses declarations from YAML.
func ParseFile(contents []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(false)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	if f.Version != SupportedFileVersion {
		return nil, fmt.Errorf("unsupported settings types version %d, expected %d", f.Version, SupportedFileVersion)
	}
	return &f, nil
}

// RegisterFile registers every type in f as a dynamic type. An empty
// instance_id is accepted here and reported by bootstrap; a malformed one
// is an error.
func (c *Catalog) RegisterFile(f *File) error {
	for _, ft := range f.Types {
		var id uuid.UUID
		if ft.InstanceID != "" {
			parsed, err := uuid.Parse(ft.InstanceID)
			if err != nil {
				return fmt.Errorf("settings type %s: invalid instance_id: %w", ft.Name, err)
			}
			id = parsed
		}
		if _, err := c.RegisterDynamic(TypeInfo{
			Name:        ft.Name,
			InstanceID:  id,
			DisplayName: ft.DisplayName,
			Shape:       ft.Shape,
		}); err != nil {
			return err
		}
	}
	return nil
}
