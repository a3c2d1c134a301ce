package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"liftlore/internal/backend"
	"liftlore/internal/payload"
)

func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "backends",
		Short:       "List the available backend profiles",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			labels := make([]string, 0, len(payload.RequiredLanguages))
			for _, code := range payload.RequiredLanguages {
				labels = append(labels, backend.LanguageLabel(code))
			}
			fmt.Fprintf(out, "All profiles produce translations in %s.\n\n", strings.Join(labels, " and "))

			rows := make([][]string, 0, 8)
			for _, profile := range backend.Profiles() {
				credential := profile.CredentialEnv
				if profile.Local {
					credential = "(none, local server)"
				}
				rows = append(rows, []string{
					string(profile.Name),
					profile.Model,
					string(profile.MuscleSchema),
					credential,
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"Profile", "Model", "Muscle schema", "Credential"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
			return nil
		},
	}
}
