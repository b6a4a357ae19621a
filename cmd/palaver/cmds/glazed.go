package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/middlewares"
	"github.com/spf13/cobra"
)

// NewHistoryCobraCommand and NewHealthCobraCommand expose the structured
// output commands, which take the usual glazed flags (--output, --fields, ...).
func NewHistoryCobraCommand() (*cobra.Command, error) {
	historyCmd, err := NewHistoryCommand()
	if err != nil {
		return nil, err
	}
	return buildGlazedCommand(historyCmd)
}

func NewHealthCobraCommand() (*cobra.Command, error) {
	healthCmd, err := NewHealthCommand()
	if err != nil {
		return nil, err
	}
	return buildGlazedCommand(healthCmd)
}

func buildGlazedCommand(c cmds.GlazeCommand) (*cobra.Command, error) {
	return cli.BuildCobraCommandFromGlazeCommand(c,
		cli.WithCobraMiddlewaresFunc(getMiddlewares),
	)
}

// connection settings stay with viper, the glazed layers only carry output options
func getMiddlewares(
	_ *cli.GlazedCommandSettings,
	cmd *cobra.Command,
	args []string,
) ([]middlewares.Middleware, error) {
	return []middlewares.Middleware{
		middlewares.ParseFromCobraCommand(cmd),
		middlewares.GatherArguments(args),
		middlewares.SetFromDefaults(),
	}, nil
}
