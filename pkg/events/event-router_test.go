package events

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/palaver/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startRouter(t *testing.T, handlers map[string]func(*message.Message) error) *EventRouter {
	t.Helper()

	router, err := NewEventRouter()
	require.NoError(t, err)
	for name, h := range handlers {
		router.AddHandler(name, TopicConversation, h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- router.Run(ctx)
	}()

	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	t.Cleanup(func() {
		cancel()
		<-done
		_ = router.Close()
	})
	return router
}

func TestConversationEvent_AppendedCarriesMessage(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := conversation.NewStore("c")

	var changes []conversation.Change
	store.Subscribe(func(c conversation.Change) { changes = append(changes, c) })
	store.Append(conversation.NewUserMessage("hi", ts))
	store.Clear()
	require.Len(t, changes, 2)

	e := NewConversationEvent(changes[0])
	require.NotNil(t, e.Message)
	assert.Equal(t, "hi", e.Message.Content)
	assert.Equal(t, 1, e.Length)
	assert.Equal(t, uint64(1), e.Version)

	e = NewConversationEvent(changes[1])
	assert.Nil(t, e.Message)
	assert.Equal(t, conversation.ChangeCleared, e.Kind)
	assert.Equal(t, 0, e.Length)
}

func TestNewEventFromJson(t *testing.T) {
	e, err := NewEventFromJson([]byte(`{"kind":"sending","conversation_id":"c","version":3,"sending":true,"length":1}`))
	require.NoError(t, err)
	assert.Equal(t, conversation.ChangeSending, e.Kind)
	assert.True(t, e.Sending)

	_, err = NewEventFromJson([]byte(`{"version":3}`))
	assert.Error(t, err)

	_, err = NewEventFromJson([]byte(`nope`))
	assert.Error(t, err)
}

func TestPrintEventsFunc_FollowsStoreOrder(t *testing.T) {
	var out syncBuffer
	router := startRouter(t, map[string]func(*message.Message) error{
		"printer": PrintEventsFunc(&out),
	})

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := conversation.NewStore("c")
	store.Subscribe(PublishChanges(router.Publisher, TopicConversation))

	require.True(t, store.BeginTurn(conversation.NewUserMessage("hi", ts)))
	store.Append(conversation.NewAssistantMessage("hello", ts))
	store.SetSending(false)
	store.SetDraft("typing")
	store.Clear()

	expected := "[2] user: hi\n" +
		"[3] sending\n" +
		"[4] assistant: hello\n" +
		"[5] idle\n" +
		"[7] cleared (0 messages)\n"
	assert.Eventually(t, func() bool { return out.String() == expected }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, expected, out.String())
}

func TestPublishChanges_SetsVersionMetadata(t *testing.T) {
	versions := make(chan string, 4)
	router := startRouter(t, map[string]func(*message.Message) error{
		"versions": func(msg *message.Message) error {
			msg.Ack()
			versions <- msg.Metadata.Get("version")
			return nil
		},
	})

	store := conversation.NewStore("c")
	store.Subscribe(PublishChanges(router.Publisher, TopicConversation))
	store.ReplaceAll([]conversation.Message{conversation.NewUserMessage("a", time.Now())})
	store.SetSending(true)

	assert.Equal(t, "1", <-versions)
	assert.Equal(t, "2", <-versions)
}

func TestPrintEventsFunc_RejectsGarbage(t *testing.T) {
	var out syncBuffer
	err := PrintEventsFunc(&out)(message.NewMessage(watermill.NewUUID(), []byte("{")))
	assert.Error(t, err)
	assert.Empty(t, out.String())
}
