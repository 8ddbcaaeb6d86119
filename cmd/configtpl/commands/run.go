package commands

import (
	"fmt"

	"github.com/openfroyo/configtpl/pkg/bridge"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var arena bool

	cmd := &cobra.Command{
		Use:   "run <script.star>",
		Short: "Run a Starlark script with the ConfigBuilder API",
		Long: `Run a Starlark script that drives builds through the ConfigBuilder
constructor. The json module is predeclared and print writes to stdout.`,
		Example: `  # script.star:
  #   b = ConfigBuilder(env_var_prefix = "APP")
  #   cfg = b.render(["base.yaml", "prod.yaml"])
  #   print(json.encode(cfg))
  configtpl run script.star

  # Allow builders to be released with b.close()
  configtpl run --arena script.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []bridge.Option{bridge.WithTelemetry(tel)}
			if arena {
				opts = append(opts, bridge.WithArena())
			}
			b := bridge.New(opts...)
			defer b.Close()

			log.Debug().Str("script", args[0]).Bool("arena", arena).Msg("Running script")

			out := cmd.OutOrStdout()
			_, err := b.ExecFile(cmd.Context(), args[0], nil, func(msg string) {
				fmt.Fprintln(out, msg)
			})
			return err
		},
	}

	cmd.Flags().BoolVar(&arena, "arena", false, "use a releasing builder table so close() is available")

	return cmd
}
