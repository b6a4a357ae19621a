package cmds

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/palaver/pkg/events"
	"github.com/go-go-golems/palaver/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const ChatCommandName = "chat"

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   ChatCommandName,
		Short: "Open the interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
				return errors.New("chat needs an interactive terminal, use send or history instead")
			}

			markdown, err := cmd.Flags().GetBool("markdown")
			if err != nil {
				return err
			}

			return runChat(cmd.Context(), markdown)
		},
	}
	cmd.Flags().Bool("markdown", false, "Render replies as markdown")

	return cmd
}

func runChat(ctx context.Context, markdown bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := newController()
	if err != nil {
		return err
	}
	defer c.Close()

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	unsubscribe := c.Subscribe(events.PublishChanges(router.Publisher, events.TopicConversation))
	defer unsubscribe()

	model := ui.NewModel(c, ui.WithContext(ctx), ui.WithMarkdown(markdown))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	router.AddHandler("ui-forward", events.TopicConversation, ui.ForwardChangesFunc(p))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-ctx.Done():
			return nil
		}
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	return eg.Wait()
}
