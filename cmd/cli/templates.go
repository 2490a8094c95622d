// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adiadia/agent-progress/cmd/cli/ui"
	"github.com/adiadia/agent-progress/internal/plantemplate"
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Work with plan template files",
	}
	cmd.AddCommand(templatesLintCmd())
	return cmd
}

func templatesLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <file>",
		Short: "Validate a plan template file before deploying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			// Load treats a missing file as "builtin defaults only", which
			// is the wrong call for an explicit lint target.
			if _, err := os.Stat(path); err != nil {
				return err
			}

			reg, err := plantemplate.Load(path)
			if err != nil {
				fmt.Println(ui.ErrorMsg("%v", err))
				return fmt.Errorf("%s failed validation", filepath.Base(path))
			}

			names := reg.Names()
			if len(names) == 1 && names[0] == plantemplate.DefaultName {
				fmt.Println(ui.WarnMsg("%s defines no templates beyond the built-in default", path))
			} else {
				fmt.Println(ui.SuccessMsg("%s: templates are valid", path))
			}

			pairs := make([]ui.Pair, 0, len(names))
			for _, name := range names {
				tpl, _ := reg.Get(name)
				pairs = append(pairs, ui.KV(name, ui.Muted(fmt.Sprintf("%d steps", len(tpl.Plan())))))
			}
			fmt.Print(ui.KeyValues("  ", pairs...))
			return nil
		},
	}
}
