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

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/nodesettings/content"
	"github.com/cardinalhq/nodesettings/internal/dbopen"
)

var (
	siteID               string
	siteName             string
	siteStartPage        string
	siteAssetsRoot       string
	siteGlobalAssetsRoot string
)

func init() {
	siteSetCmd.Flags().StringVar(&siteID, "id", "", "Site id (generated when empty)")
	siteSetCmd.Flags().StringVar(&siteName, "name", "", "Site name")
	siteSetCmd.Flags().StringVar(&siteStartPage, "start-page", "", "Start page node reference")
	siteSetCmd.Flags().StringVar(&siteAssetsRoot, "assets-root", "", "Site assets root; empty shares the global assets root")
	siteSetCmd.Flags().StringVar(&siteGlobalAssetsRoot, "global-assets-root", "", "Global assets root node reference")
	_ = siteSetCmd.MarkFlagRequired("name")

	siteCmd.AddCommand(siteSetCmd, siteListCmd)
	rootCmd.AddCommand(siteCmd)
}

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage the sites hosted by the content tree",
}

var siteSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Add or replace a site definition",
	RunE: func(c *cobra.Command, _ []string) error {
		return runCommand("site-set", func(ctx context.Context) error {
			site, err := siteFromFlags()
			if err != nil {
				return err
			}
			a, err := openApp(ctx, dbopen.WaitForMigrations())
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.store.UpsertSite(ctx, site); err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), site.ID)
			return nil
		})
	},
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sites",
	RunE: func(c *cobra.Command, _ []string) error {
		return runCommand("site-list", func(ctx context.Context) error {
			a, err := openApp(ctx, dbopen.WarnOnMigrationMismatch())
			if err != nil {
				return err
			}
			defer a.close()
			sites, err := a.store.ListSites(ctx)
			if err != nil {
				return err
			}
			for _, s := range sites {
				fmt.Fprintf(c.OutOrStdout(), "%s\t%s\tstart=%s\tshared-assets=%t\n",
					s.ID, s.Name, s.StartPage, s.SharesGlobalAssets())
			}
			return nil
		})
	},
}

func siteFromFlags() (content.Site, error) {
	site := content.Site{ID: uuid.New(), Name: siteName}
	if siteID != "" {
		id, err := uuid.Parse(siteID)
		if err != nil {
			return site, fmt.Errorf("--id: %w", err)
		}
		site.ID = id
	}
	refs := []struct {
		value string
		dst   *content.NodeRef
	}{
		{siteStartPage, &site.StartPage},
		{siteAssetsRoot, &site.SiteAssetsRoot},
		{siteGlobalAssetsRoot, &site.GlobalAssetsRoot},
	}
	for _, r := range refs {
		if r.value == "" {
			continue
		}
		ref, err := content.ParseNodeRef(r.value)
		if err != nil {
			return site, err
		}
		*r.dst = ref
	}
	return site, nil
}
