package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/palaver/pkg/backend"
)

type HealthCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*HealthCommand)(nil)

func NewHealthCommand() (*HealthCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, fmt.Errorf("could not create Glazed parameter layer: %w", err)
	}

	return &HealthCommand{
		CommandDescription: cmds.NewCommandDescription(
			"health",
			cmds.WithShort("Check that the backend is reachable"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *HealthCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	status, err := ctrl.Health(ctx)
	if err != nil {
		return err
	}

	for _, row := range healthRows(status) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func healthRows(status *backend.HealthStatus) []types.Row {
	return []types.Row{
		types.NewRow(types.MRP("field", "status"), types.MRP("value", status.Status)),
		types.NewRow(types.MRP("field", "mode"), types.MRP("value", status.Mode)),
		types.NewRow(types.MRP("field", "api_configured"), types.MRP("value", status.APIConfigured)),
	}
}
