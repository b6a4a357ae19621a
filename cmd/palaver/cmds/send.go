package cmds

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/go-go-golems/palaver/pkg/controller"
	"github.com/go-go-golems/palaver/pkg/conversation"
	"github.com/go-go-golems/palaver/pkg/events"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <message>...",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printEvents, err := cmd.Flags().GetBool("print-events")
			if err != nil {
				return err
			}

			c, err := newController()
			if err != nil {
				return err
			}
			defer c.Close()

			text := strings.Join(args, " ")
			if !printEvents {
				return sendAndPrint(cmd.Context(), c, text)
			}
			return withEventPrinter(cmd.Context(), c, func(ctx context.Context) error {
				return sendAndPrint(ctx, c, text)
			})
		},
	}
	cmd.Flags().Bool("print-events", false, "Print conversation change events to stderr")

	return cmd
}

func sendAndPrint(ctx context.Context, c *controller.Controller, text string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.SendMessage(ctx, text); err != nil {
		return err
	}

	last, ok := c.Snapshot().Last()
	if !ok || last.Role != conversation.RoleAssistant {
		return nil
	}
	_, err := fmt.Fprintln(os.Stdout, formatMessage(last))
	return err
}

// withEventPrinter runs f while every store change is printed to stderr.
func withEventPrinter(ctx context.Context, c *controller.Controller, f func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	router.AddHandler("printer", events.TopicConversation, events.PrintEventsFunc(os.Stderr))
	unsubscribe := c.Subscribe(events.PublishChanges(router.Publisher, events.TopicConversation))
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		return f(ctx)
	})

	return eg.Wait()
}

var (
	userPrefix      = color.New(color.FgCyan, color.Bold).SprintFunc()
	assistantPrefix = color.New(color.FgMagenta, color.Bold).SprintFunc()
)

func formatMessage(m conversation.Message) string {
	prefix := assistantPrefix("ai:")
	if m.Role == conversation.RoleUser {
		prefix = userPrefix("you:")
	}
	return fmt.Sprintf("%s %s", prefix, m.Content)
}
