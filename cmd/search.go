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
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum number of hits; 0 for no limit")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Find settings instances by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return runCommand("search", func(ctx context.Context) error {
			a, err := initialized(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			for _, hit := range a.svc.Search(ctx, strings.Join(args, " "), searchLimit) {
				scope := "local"
				if hit.Global {
					scope = "global"
				}
				fmt.Fprintf(c.OutOrStdout(), "%s\t%s\t%s\t%s\n", hit.Ref, hit.Type, scope, hit.Name)
			}
			return nil
		})
	},
}
