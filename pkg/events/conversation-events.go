package events

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/palaver/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicConversation carries one ConversationEvent per store change.
const TopicConversation = "conversation"

// ConversationEvent is the wire form of a conversation.Change. Only the tail
// of the thread travels: Message is set for appended changes.
type ConversationEvent struct {
	Kind           conversation.ChangeKind `json:"kind"`
	ConversationID string                  `json:"conversation_id"`
	Version        uint64                  `json:"version"`
	Sending        bool                    `json:"sending"`
	Length         int                     `json:"length"`
	Message        *conversation.Message   `json:"message,omitempty"`
}

func NewConversationEvent(c conversation.Change) ConversationEvent {
	ret := ConversationEvent{
		Kind:           c.Kind,
		ConversationID: c.Snapshot.ConversationID,
		Version:        c.Snapshot.Version,
		Sending:        c.Snapshot.Sending,
		Length:         c.Snapshot.Len(),
	}
	if c.Kind == conversation.ChangeAppended {
		if last, ok := c.Snapshot.Last(); ok {
			ret.Message = &last
		}
	}
	return ret
}

func NewEventFromJson(b []byte) (*ConversationEvent, error) {
	var e ConversationEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "could not decode conversation event")
	}
	if e.Kind == "" {
		return nil, errors.New("conversation event has no kind")
	}
	return &e, nil
}

// PublishChanges returns a store listener forwarding every change to topic.
// Draft changes are skipped: they fire per keystroke and carry no thread state.
func PublishChanges(pub message.Publisher, topic string) conversation.Listener {
	return func(c conversation.Change) {
		if c.Kind == conversation.ChangeDraft {
			return
		}

		b, err := json.Marshal(NewConversationEvent(c))
		if err != nil {
			log.Warn().Err(err).Msg("failed to encode conversation event")
			return
		}

		msg := message.NewMessage(watermill.NewUUID(), b)
		msg.Metadata.Set("version", strconv.FormatUint(c.Snapshot.Version, 10))
		if err := pub.Publish(topic, msg); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("failed to publish conversation event")
		}
	}
}

// PrintEventsFunc writes one line per conversation event to w.
func PrintEventsFunc(w io.Writer) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch e.Kind {
		case conversation.ChangeAppended:
			if e.Message == nil {
				_, err = fmt.Fprintf(w, "[%d] appended\n", e.Version)
				return err
			}
			_, err = fmt.Fprintf(w, "[%d] %s: %s\n", e.Version, e.Message.Role, e.Message.Content)
		case conversation.ChangeSending:
			state := "idle"
			if e.Sending {
				state = "sending"
			}
			_, err = fmt.Fprintf(w, "[%d] %s\n", e.Version, state)
		default:
			_, err = fmt.Fprintf(w, "[%d] %s (%d messages)\n", e.Version, e.Kind, e.Length)
		}
		return err
	}
}
