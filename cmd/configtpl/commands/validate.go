package commands

import (
	"errors"
	"fmt"

	"github.com/openfroyo/configtpl/pkg/config"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "validate --schema <schema.cue> [paths...]",
		Short: "Build configuration and check it against a CUE schema",
		Long: `Build configuration exactly like render, then unify the result with a
CUE schema. If the schema declares #Config, that definition is used.

Every violation is listed with its position when CUE reports one.`,
		Example: `  configtpl validate --schema schema.cue base.yaml prod.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.schemaFile == "" {
				return fmt.Errorf("--schema is required")
			}

			b, h, buildArgs, err := prepareBuild(cmd.Context(), &flags, args)
			if err != nil {
				return err
			}

			if _, err := b.Build(cmd.Context(), h, buildArgs); err != nil {
				var verrs config.ValidationErrors
				if errors.As(err, &verrs) {
					for _, verr := range verrs {
						fmt.Fprintln(cmd.ErrOrStderr(), verr.Error())
					}
					return fmt.Errorf("configuration is invalid: %d error(s)", len(verrs))
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}
