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
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"

	"github.com/cardinalhq/nodesettings/content"
)

var (
	ErrInvalidType   = errors.New("catalog: invalid settings type")
	ErrDuplicateType = errors.New("catalog: settings type already registered")
)

// TypeInfo is the declaration of a settings type.
type TypeInfo struct {
	// Name is the type name. It is also the property name a node uses to
	// associate an instance of this type. Defaults to the Go type name.
	Name string
	// InstanceID is the identity of the single global instance. It must be
	// set; bootstrap refuses types without one.
	InstanceID uuid.UUID
	// DisplayName is the name given to the global instance when it is created.
	DisplayName string
	// Shape is the content shape of instances. Defaults to Name.
	Shape string
}

// Type is a registered settings type.
type Type struct {
	TypeInfo
	goType   reflect.Type
	newValue func() Settings
}

// GoType returns the Go type values of this type are decoded into.
func (t *Type) GoType() reflect.Type {
	return t.goType
}

// Materialize decodes n into a new value of this type. Node properties are
// matched to struct fields through the `settings` tag, or the field name.
func (t *Type) Materialize(n *content.Node) (Settings, error) {
	if n == nil {
		return nil, fmt.Errorf("materialize %s: nil node", t.Name)
	}
	v := t.newValue()

	if d, ok := v.(*Dynamic); ok {
		d.Values = maps.Clone(n.Properties)
	} else if len(n.Properties) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           v,
			TagName:          "settings",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
		})
		if err != nil {
			return nil, fmt.Errorf("materialize %s: %w", t.Name, err)
		}
		if err := dec.Decode(n.Properties); err != nil {
			return nil, fmt.Errorf("materialize %s from node %s: %w", t.Name, n.Ref, err)
		}
	}

	*v.SettingsInstance() = Instance{
		Ref:          n.Ref,
		GUID:         n.GUID,
		Type:         t.Name,
		Parent:       n.Parent,
		DisplayName:  n.Name,
		Status:       n.Status,
		Localization: n.Localization,
	}
	return v, nil
}

// Catalog holds the registered settings types. Registration normally
// happens once at startup; lookups are safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	byName   map[string]*Type
	byShape  map[string]*Type
	byGoType map[reflect.Type]*Type
}

func New() *Catalog {
	return &Catalog{
		byName:   make(map[string]*Type),
		byShape:  make(map[string]*Type),
		byGoType: make(map[reflect.Type]*Type),
	}
}

// Register declares the Go struct S as a settings type. *S must implement
// Settings, normally by embedding Instance. Registering the same type with
// the same declaration again returns the existing entry.
func Register[S any, PS interface {
	*S
	Settings
}](c *Catalog, info TypeInfo) (*Type, error) {
	gt := reflect.TypeFor[S]()
	if info.Name == "" {
		info.Name = gt.Name()
	}
	return c.add(info, gt, func() Settings { return PS(new(S)) })
}

// MustRegister is Register that panics on error, for use in package init.
func MustRegister[S any, PS interface {
	*S
	Settings
}](c *Catalog, info TypeInfo) *Type {
	t, err := Register[S, PS](c, info)
	if err != nil {
		panic(err)
	}
	return t
}

// RegisterDynamic declares a settings type whose values are *Dynamic.
func (c *Catalog) RegisterDynamic(info TypeInfo) (*Type, error) {
	return c.add(info, reflect.TypeFor[Dynamic](), func() Settings { return new(Dynamic) })
}

func (c *Catalog) add(info TypeInfo, gt reflect.Type, newValue func() Settings) (*Type, error) {
	if info.Name == "" {
		return nil, fmt.Errorf("%w: empty name for %s", ErrInvalidType, gt)
	}
	if info.Shape == "" {
		info.Shape = info.Name
	}
	if info.Shape == content.SettingsBaseShape || info.Shape == content.FolderShape {
		return nil, fmt.Errorf("%w: %s uses reserved shape %q", ErrInvalidType, info.Name, info.Shape)
	}
	if info.DisplayName == "" {
		info.DisplayName = info.Name
	}
	dynamic := gt == reflect.TypeFor[Dynamic]()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byName[info.Name]; ok {
		if existing.goType == gt && existing.TypeInfo == info {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrDuplicateType, info.Name)
	}
	if _, ok := c.byShape[info.Shape]; ok {
		return nil, fmt.Errorf("%w: shape %s", ErrDuplicateType, info.Shape)
	}
	if !dynamic {
		if other, ok := c.byGoType[gt]; ok {
			return nil, fmt.Errorf("%w: %s is already registered as %s", ErrDuplicateType, gt, other.Name)
		}
	}

	t := &Type{TypeInfo: info, goType: gt, newValue: newValue}
	c.byName[info.Name] = t
	c.byShape[info.Shape] = t
	if !dynamic {
		c.byGoType[gt] = t
	}
	return t, nil
}

// Lookup returns the type registered under name.
func (c *Catalog) Lookup(name string) (*Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byName[name]
	return t, ok
}

// ByShape returns the type whose instances have the given content shape.
func (c *Catalog) ByShape(shape string) (*Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byShape[shape]
	return t, ok
}

// TypeOf returns the type registered for the Go struct S.
func TypeOf[S any](c *Catalog) (*Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byGoType[reflect.TypeFor[S]()]
	return t, ok
}

// IsGenuine reports whether n is an instance of a registered settings type.
// Nodes of the fallback SettingsBase shape are not.
func (c *Catalog) IsGenuine(n *content.Node) bool {
	if n == nil || n.Shape == content.SettingsBaseShape {
		return false
	}
	_, ok := c.ByShape(n.Shape)
	return ok
}

// Types returns every registered type ordered by name.
func (c *Catalog) Types() []*Type {
	c.mu.RLock()
	out := slices.Collect(maps.Values(c.byName))
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Type) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Len returns the number of registered types.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

// As converts a settings value to the concrete pointer type *S.
func As[S any, PS interface {
	*S
	Settings
}](s Settings) (PS, bool) {
	ps, ok := s.(PS)
	return ps, ok
}
