// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Conductor Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := builtinTools()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATEGORY\tTIMEOUT\tDESCRIPTION")
			for _, name := range reg.Names() {
				t, ok := reg.Lookup(name)
				if !ok {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					name, reg.CategoryOf(name), reg.TimeoutFor(name), t.Description())
			}
			return w.Flush()
		},
	}
}
