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
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(bootstrapCmd)
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the settings roots and global settings instances",
	Long: `Create the global settings root, the settings root, one global instance per
declared settings type and a settings root for every site with its own assets.
Running it again changes nothing.`,
	RunE: func(c *cobra.Command, _ []string) error {
		return runCommand("bootstrap", func(ctx context.Context) error {
			a, err := initialized(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report := bootstrapReport{
				GlobalSettingsRoot: a.svc.GlobalSettingsRoot().String(),
				SettingsRoot:       a.svc.SettingsRoot().String(),
				Globals:            map[string]string{},
				Sites:              map[string]string{},
			}
			for name, ref := range a.svc.GlobalSettings(ctx) {
				report.Globals[name] = ref.String()
			}
			sites, err := a.store.ListSites(ctx)
			if err != nil {
				return err
			}
			for _, site := range sites {
				ref, err := a.svc.ValidateOrCreateSiteSettingsRoot(ctx, site)
				if err != nil {
					return fmt.Errorf("site %s: %w", site.Name, err)
				}
				report.Sites[site.Name] = ref.String()
			}

			enc := yaml.NewEncoder(c.OutOrStdout())
			defer enc.Close()
			return enc.Encode(report)
		})
	},
}

type bootstrapReport struct {
	GlobalSettingsRoot string            `yaml:"global_settings_root"`
	SettingsRoot       string            `yaml:"settings_root"`
	Globals            map[string]string `yaml:"globals"`
	Sites              map[string]string `yaml:"sites,omitempty"`
}
