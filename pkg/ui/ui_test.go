package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/palaver/pkg/backend"
	"github.com/go-go-golems/palaver/pkg/backend/backendtest"
	"github.com/go-go-golems/palaver/pkg/controller"
	"github.com/go-go-golems/palaver/pkg/conversation"
	"github.com/go-go-golems/palaver/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spinnerFirstFrame = "∙∙∙"

func newTestController(t *testing.T, srv *backendtest.Server) *controller.Controller {
	t.Helper()
	client, err := backend.NewHTTPClient(srv.URL)
	require.NoError(t, err)
	c, err := controller.New(client, "default")
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	ret, ok := next.(Model)
	require.True(t, ok)
	return ret, cmd
}

func loaded(t *testing.T, c *controller.Controller, options ...ModelOption) Model {
	t.Helper()
	m := NewModel(c, options...)
	m, _ = update(t, m, m.loadHistory()())
	return m
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func TestModel_LoadingDisablesInput(t *testing.T) {
	srv := backendtest.New(t)
	c := newTestController(t, srv)

	m := NewModel(c)
	assert.Contains(t, m.View(), loadingPlaceholder)

	m = typeText(t, m, "early")
	assert.Equal(t, "", m.input.Value())
	assert.Equal(t, "", c.Snapshot().Draft)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, 0, srv.CountRequests(backendtest.RouteChat))
}

func TestModel_EmptyPlaceholder(t *testing.T) {
	srv := backendtest.New(t)
	m := loaded(t, newTestController(t, srv))

	v := m.View()
	assert.Contains(t, v, "Start chatting with me below!")
	assert.NotContains(t, v, loadingPlaceholder)
	assert.Contains(t, v, headerTitle)
	assert.True(t, m.inputEnabled())
}

func TestModel_RendersHistory(t *testing.T) {
	srv := backendtest.New(t)
	srv.Seed("default",
		conversation.NewUserMessage("prior question", time.Now()),
		conversation.NewAssistantMessage("prior answer", time.Now()),
	)

	m := loaded(t, newTestController(t, srv))

	v := m.View()
	assert.Contains(t, v, "prior question")
	assert.Contains(t, v, "prior answer")
	assert.NotContains(t, v, "Start chatting with me below!")
}

func TestModel_SubmitShowsTypingIndicatorUntilReply(t *testing.T) {
	srv := backendtest.New(t)
	release := srv.HoldReplies()
	c := newTestController(t, srv)
	m := loaded(t, c)

	m = typeText(t, m, "hi")
	assert.Equal(t, "hi", c.Snapshot().Draft)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, "", m.input.Value())

	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	require.Eventually(t, func() bool { return c.Snapshot().Sending }, 5*time.Second, 5*time.Millisecond)
	m, _ = update(t, m, ChangedMsg{Kind: conversation.ChangeSending})

	v := m.View()
	assert.Contains(t, v, "hi")
	assert.Contains(t, v, spinnerFirstFrame)
	assert.False(t, m.inputEnabled())
	assert.Equal(t, "", c.Snapshot().Draft)

	m = typeText(t, m, "more")
	assert.Equal(t, "", m.input.Value())

	release()
	select {
	case msg := <-done:
		m, _ = update(t, m, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("send did not settle")
	}

	v = m.View()
	assert.Contains(t, v, "echo: hi")
	assert.NotContains(t, v, spinnerFirstFrame)
	assert.True(t, m.inputEnabled())
}

func TestModel_BlankSubmitIsIgnored(t *testing.T) {
	srv := backendtest.New(t)
	m := loaded(t, newTestController(t, srv))

	m = typeText(t, m, "   ")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestModel_SendFailureShowsFallback(t *testing.T) {
	srv := backendtest.New(t)
	srv.FailWith(backendtest.RouteChat, http.StatusInternalServerError)
	m := loaded(t, newTestController(t, srv))

	m = typeText(t, m, "hello")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	v := m.View()
	assert.Contains(t, v, "hello")
	assert.Contains(t, v, "Sorry, I couldn't process that.")
}

func TestModel_ClearEmptiesThread(t *testing.T) {
	srv := backendtest.New(t)
	srv.Seed("default", conversation.NewUserMessage("old", time.Now()))
	m := loaded(t, newTestController(t, srv))
	require.Contains(t, m.View(), "old")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	v := m.View()
	assert.NotContains(t, v, "old")
	assert.Contains(t, v, "Start chatting with me below!")
}

func TestModel_ClearFailureKeepsThread(t *testing.T) {
	srv := backendtest.New(t)
	srv.Seed("default", conversation.NewUserMessage("keep me", time.Now()))
	srv.FailWith(backendtest.RouteClear, http.StatusServiceUnavailable)
	m := loaded(t, newTestController(t, srv))

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	v := m.View()
	assert.Contains(t, v, "keep me")
	assert.Contains(t, v, "could not clear conversation")
}

func TestModel_QuitClosesController(t *testing.T) {
	srv := backendtest.New(t)
	c := newTestController(t, srv)
	m := loaded(t, c)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)

	assert.ErrorIs(t, c.SendMessage(context.Background(), "late"), controller.ErrClosed)
}

func TestModel_ScrollsToNewestOnGrowth(t *testing.T) {
	srv := backendtest.New(t)
	var msgs []conversation.Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs, conversation.NewUserMessage(fmt.Sprintf("message %d", i), time.Now()))
	}
	srv.Seed("default", msgs...)
	m := loaded(t, newTestController(t, srv))
	assert.True(t, m.viewport.AtBottom())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyPgUp})
	assert.False(t, m.viewport.AtBottom())

	// a change that does not grow the thread keeps the scroll position
	m, _ = update(t, m, ChangedMsg{Kind: conversation.ChangeDraft})
	assert.False(t, m.viewport.AtBottom())

	m = typeText(t, m, "new one")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.True(t, m.viewport.AtBottom())
	assert.Contains(t, m.View(), "echo: new one")
}

func TestModel_WindowResize(t *testing.T) {
	srv := backendtest.New(t)
	m := loaded(t, newTestController(t, srv))

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 30})
	assert.Equal(t, 60, m.viewport.Width)
	assert.Greater(t, m.viewport.Height, 1)
	for _, line := range strings.Split(m.View(), "\n") {
		assert.LessOrEqual(t, lipgloss.Width(line), 60)
	}
}

func TestModel_MarkdownReplies(t *testing.T) {
	srv := backendtest.New(t)
	srv.Reply = func(string) string { return "this is **bold**" }
	m := loaded(t, newTestController(t, srv), WithMarkdown(true))
	require.NotNil(t, m.renderer)

	m = typeText(t, m, "format please")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	v := m.View()
	assert.Contains(t, v, "bold")
	assert.NotContains(t, v, "**bold**")
}

type recordingSender struct {
	msgs chan tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.msgs <- msg
}

func TestForwardChangesFunc(t *testing.T) {
	sender := &recordingSender{msgs: make(chan tea.Msg, 1)}
	handler := ForwardChangesFunc(sender)

	b, err := json.Marshal(events.ConversationEvent{
		Kind:           conversation.ChangeCleared,
		ConversationID: "default",
		Version:        7,
	})
	require.NoError(t, err)

	require.NoError(t, handler(message.NewMessage(watermill.NewUUID(), b)))
	select {
	case msg := <-sender.msgs:
		assert.Equal(t, ChangedMsg{Kind: conversation.ChangeCleared, Version: 7}, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no message forwarded")
	}

	assert.Error(t, handler(message.NewMessage(watermill.NewUUID(), []byte("garbage"))))
}
