package ui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/palaver/pkg/conversation"
	"github.com/go-go-golems/palaver/pkg/events"
)

// ChangedMsg tells the model the store moved on. The model re-reads the
// snapshot rather than trusting the event payload.
type ChangedMsg struct {
	Kind    conversation.ChangeKind
	Version uint64
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// ForwardChangesFunc is an event router handler turning conversation events
// into ChangedMsg for the program.
func ForwardChangesFunc(p Sender) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		e, err := events.NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		// the program may be blocked on a store mutation that waits for this
		// delivery, so Send must not run on the handler goroutine
		go p.Send(ChangedMsg{Kind: e.Kind, Version: e.Version})
		return nil
	}
}
