package cmds

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the conversation on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newController()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := c.ClearConversation(ctx); err != nil {
				return err
			}

			_, err = fmt.Fprintln(os.Stdout, color.GreenString("Cleared conversation %s", c.ConversationID()))
			return err
		},
	}
}
