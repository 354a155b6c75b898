package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/partkit/resolver"
)

var errNoSelection = errors.New("no selection made")

func newResolveCmd(v *viper.Viper) *cobra.Command {
	var (
		depth    string
		asJSON   bool
		noPrompt bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <query>",
		Short: "Resolve a component, prompting when several match",
		Long: `Resolve looks the query up in the local library first. On a miss it starts
the resolver; when more than one component matches you are asked to pick one,
which is then imported.

With --json or --no-prompt the candidates are printed and nothing is imported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := resolver.ParseDepth(depth)
			if err != nil {
				return err
			}
			a, closeApp, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			defer closeApp()

			ctx := cmd.Context()
			res := a.resolver.Resolve(ctx, args[0], d)
			if res.Status == resolver.StatusSelectionRequired && !asJSON && !noPrompt {
				printResult(cmd.OutOrStdout(), res)
				choice, err := promptSelection(cmd.InOrStdin(), cmd.OutOrStdout(), res.Options)
				if err != nil {
					return err
				}
				res = a.resolver.Select(ctx, choice)
			}
			return finish(cmd, res, asJSON)
		},
	}

	cmd.Flags().StringVar(&depth, "depth", string(resolver.DepthSurface), "search depth: surface or deep")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "print candidates instead of asking")
	return cmd
}

func newSelectCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "select <query> <component>",
		Short: "Search for query and import the named candidate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, choice := args[0], args[1]

			a, closeApp, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			defer closeApp()

			ctx := cmd.Context()
			res := a.resolver.Resolve(ctx, query, resolver.DepthSurface)
			if res.Status == resolver.StatusSelectionRequired {
				res = a.resolver.Select(ctx, choice)
			}
			return finish(cmd, res, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

// finish prints res and turns an error result into a command error.
func finish(cmd *cobra.Command, res resolver.Result, asJSON bool) error {
	if asJSON {
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else if res.Status != resolver.StatusError {
		printResult(cmd.OutOrStdout(), res)
	}
	if res.Status == resolver.StatusError {
		return errors.New(res.Message)
	}
	return nil
}

// promptSelection asks for one of options by number or name.
func promptSelection(in io.Reader, out io.Writer, options []string) (string, error) {
	fmt.Fprintf(out, "Select [1-%d]: ", len(options))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read selection: %w", err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return "", errNoSelection
	}

	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(options) {
			return "", fmt.Errorf("selection %d out of range 1-%d", n, len(options))
		}
		return options[n-1], nil
	}
	if !slices.Contains(options, answer) {
		return "", fmt.Errorf("%q is not one of the listed components", answer)
	}
	return answer, nil
}
