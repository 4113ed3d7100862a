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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/nodesettings/catalog"
	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/settings"
)

var (
	resolveNode string
	resolveSite string
	resolveAll  bool
)

func init() {
	resolveCmd.Flags().StringVar(&resolveNode, "node", "", "Node reference to resolve from; empty resolves the global instance")
	resolveCmd.Flags().StringVar(&resolveSite, "site", "", "Site id whose start page joins the ancestor walk")
	resolveCmd.Flags().BoolVar(&resolveAll, "all", false, "List every instance on the walk, nearest first")
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve TYPE",
	Short: "Show the settings instance that applies to a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return runCommand("resolve", func(ctx context.Context) error {
			a, err := initialized(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			typeName := args[0]
			if _, ok := a.svc.Catalog().Lookup(typeName); !ok {
				return fmt.Errorf("unknown settings type %q", typeName)
			}
			if ctx, err = withSite(ctx, a.store, resolveSite); err != nil {
				return err
			}

			if resolveNode == "" {
				s, ok := a.svc.ResolveGlobal(ctx, typeName)
				return printResolved(c.OutOrStdout(), s, ok)
			}
			ref, err := content.ParseNodeRef(resolveNode)
			if err != nil {
				return err
			}
			if !resolveAll {
				s, ok := a.svc.Resolve(ctx, typeName, ref)
				return printResolved(c.OutOrStdout(), s, ok)
			}
			var out []resolvedSettings
			for s := range a.svc.ResolveAll(ctx, typeName, ref) {
				out = append(out, describe(s))
			}
			return yaml.NewEncoder(c.OutOrStdout()).Encode(out)
		})
	},
}

func withSite(ctx context.Context, sites content.SiteDirectory, id string) (context.Context, error) {
	if id == "" {
		return ctx, nil
	}
	siteID, err := uuid.Parse(id)
	if err != nil {
		return ctx, fmt.Errorf("site: %w", err)
	}
	all, err := sites.ListSites(ctx)
	if err != nil {
		return ctx, err
	}
	for _, s := range all {
		if s.ID == siteID {
			return settings.WithSite(ctx, s), nil
		}
	}
	return ctx, fmt.Errorf("site %s: %w", siteID, content.ErrNotFound)
}

type resolvedSettings struct {
	Type   string         `yaml:"type"`
	Ref    string         `yaml:"ref"`
	Name   string         `yaml:"name"`
	Status string         `yaml:"status"`
	Values map[string]any `yaml:"values,omitempty"`
}

var errNotResolved = errors.New("no settings instance applies")

func describe(s catalog.Settings) resolvedSettings {
	inst := s.SettingsInstance()
	out := resolvedSettings{
		Type:   inst.Type,
		Ref:    inst.Ref.String(),
		Name:   inst.DisplayName,
		Status: inst.Status.String(),
	}
	if d, ok := s.(*catalog.Dynamic); ok {
		out.Values = d.Values
	}
	return out
}

func printResolved(w io.Writer, s catalog.Settings, ok bool) error {
	if !ok {
		return errNotResolved
	}
	return yaml.NewEncoder(w).Encode(describe(s))
}
