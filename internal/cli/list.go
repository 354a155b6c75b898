package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/partkit/library"
	"github.com/randalmurphal/partkit/tool"
)

func newListCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List components in the local library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			logger := cfg.NewLogger(cmd.ErrOrStderr())
			store := library.NewStore(cfg.LibraryOptions(logger)...)

			comps, err := store.List()
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), tool.ListOutput{Dir: store.Dir(), Components: comps})
			}
			printComponents(cmd.OutOrStdout(), store.Dir(), comps)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the listing as JSON")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the tool definitions as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), tool.Definitions())
		},
	}
}

func newCallCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [arguments-json]",
		Short: "Invoke a tool with JSON arguments",
		Long: `Call runs one tool the way an external dispatcher would and prints its
JSON result. Sessions do not outlive the command, so a selection_required
result cannot be answered by a second call.`,
		Example: `  partkit call resolve_component '{"query":"resistor"}'
  partkit call list_local_components`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			defer closeApp()

			var raw json.RawMessage
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
			}
			out, err := tool.NewHandler(a.resolver, a.library).Call(cmd.Context(), args[0], raw)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
}
