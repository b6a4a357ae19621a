package cmds

import (
	"context"
	"fmt"
	"os"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/palaver/pkg/conversation"
)

const emptyHistory = "No messages yet."

type HistoryCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*HistoryCommand)(nil)

func NewHistoryCommand() (*HistoryCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, fmt.Errorf("could not create Glazed parameter layer: %w", err)
	}

	return &HistoryCommand{
		CommandDescription: cmds.NewCommandDescription(
			"history",
			cmds.WithShort("Print the conversation so far"),
			cmds.WithLong("Print one row per message of the conversation, oldest first."),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *HistoryCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.LoadHistory(ctx)
	msgs := ctrl.Snapshot().Messages
	if len(msgs) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, emptyHistory)
		return nil
	}

	for _, row := range messageRows(msgs) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func messageRows(msgs []conversation.Message) []types.Row {
	ret := make([]types.Row, 0, len(msgs))
	for _, m := range msgs {
		ret = append(ret, types.NewRow(
			types.MRP("role", string(m.Role)),
			types.MRP("content", m.Content),
			types.MRP("timestamp", m.Timestamp),
		))
	}
	return ret
}
