package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/palaver/pkg/controller"
	"github.com/go-go-golems/palaver/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ConversationController is what the model drives. *controller.Controller
// implements it.
type ConversationController interface {
	ConversationID() string
	Snapshot() conversation.Snapshot
	LoadHistory(ctx context.Context) bool
	SendMessage(ctx context.Context, text string) error
	ClearConversation(ctx context.Context) error
	SetDraft(text string)
	Close()
}

var _ ConversationController = (*controller.Controller)(nil)

const (
	defaultWidth  = 80
	defaultHeight = 24

	headerTitle        = "AI Friend Chat"
	headerSubtitle     = "Always here to chat with you!"
	inputPlaceholder   = "Type your message..."
	emptyPlaceholder   = "Hey! I'm your AI friend\nStart chatting with me below!"
	loadingPlaceholder = "Loading conversation..."
)

type historyLoadedMsg struct{}

type sendDoneMsg struct {
	err error
}

type clearDoneMsg struct {
	err error
}

type Model struct {
	ctx        context.Context
	controller ConversationController

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keyMap   KeyMap
	style    *Style

	markdown bool
	renderer *glamour.TermRenderer

	snapshot conversation.Snapshot
	loading  bool
	err      error

	width  int
	height int
}

type ModelOption func(*Model)

func WithContext(ctx context.Context) ModelOption {
	return func(m *Model) {
		m.ctx = ctx
	}
}

// WithMarkdown renders assistant replies through glamour.
func WithMarkdown(markdown bool) ModelOption {
	return func(m *Model) {
		m.markdown = markdown
	}
}

func WithStyle(style *Style) ModelOption {
	return func(m *Model) {
		m.style = style
	}
}

func NewModel(c ConversationController, options ...ModelOption) Model {
	ret := Model{
		ctx:        context.Background(),
		controller: c,
		viewport:   viewport.New(defaultWidth, defaultHeight),
		help:       help.New(),
		keyMap:     DefaultKeyMap,
		style:      DefaultStyles(),
		loading:    true,
		width:      defaultWidth,
		height:     defaultHeight,
	}
	for _, o := range options {
		o(&ret)
	}

	ret.input = textinput.New()
	ret.input.Placeholder = inputPlaceholder
	ret.input.Prompt = "> "
	ret.spinner = spinner.New(spinner.WithSpinner(spinner.Points))

	ret.snapshot = c.Snapshot()
	if ret.markdown {
		ret.renderer = newRenderer(ret.textWidth(ret.style.AssistantMessage))
	}
	ret.updateInput()
	ret.recomputeSize()

	return ret
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistory())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			m.controller.Close()
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.SubmitMessage):
			if !m.inputEnabled() {
				return m, nil
			}
			text := m.input.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.input.Reset()
			m.err = nil
			return m, m.send(text)

		case key.Matches(msg, m.keyMap.ClearConversation):
			if m.loading {
				return m, nil
			}
			m.err = nil
			return m, m.clear()

		case key.Matches(msg, m.keyMap.ScrollUp):
			m.viewport.ViewUp()
			return m, nil

		case key.Matches(msg, m.keyMap.ScrollDown):
			m.viewport.ViewDown()
			return m, nil

		default:
			if !m.inputEnabled() {
				return m, nil
			}
			m.input, cmd = m.input.Update(msg)
			m.controller.SetDraft(m.input.Value())
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.markdown {
			m.renderer = newRenderer(m.textWidth(m.style.AssistantMessage))
		}
		m.recomputeSize()
		return m, nil

	case historyLoadedMsg:
		m.loading = false
		return m, m.refresh()

	case sendDoneMsg:
		if msg.err != nil {
			log.Debug().Err(msg.err).Msg("submit dropped")
		}
		return m, m.refresh()

	case clearDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, controller.ErrClosed) {
			m.err = msg.err
		}
		return m, m.refresh()

	case ChangedMsg:
		return m, m.refresh()

	case spinner.TickMsg:
		if !m.snapshot.Sending {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.viewport.SetContent(m.messageView())
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	return strings.Join([]string{
		m.headerView(),
		m.viewport.View(),
		m.inputView(),
		m.statusView(),
		m.help.View(m.keyMap),
	}, "\n")
}

func (m Model) loadHistory() tea.Cmd {
	c, ctx := m.controller, m.ctx
	return func() tea.Msg {
		c.LoadHistory(ctx)
		return historyLoadedMsg{}
	}
}

func (m Model) send(text string) tea.Cmd {
	c, ctx := m.controller, m.ctx
	return func() tea.Msg {
		return sendDoneMsg{err: c.SendMessage(ctx, text)}
	}
}

func (m Model) clear() tea.Cmd {
	c, ctx := m.controller, m.ctx
	return func() tea.Msg {
		return clearDoneMsg{err: c.ClearConversation(ctx)}
	}
}

// refresh re-reads the snapshot. The newest entry is scrolled into view
// whenever the thread grew or a reply started loading.
func (m *Model) refresh() tea.Cmd {
	prev := m.snapshot
	m.snapshot = m.controller.Snapshot()

	m.viewport.SetContent(m.messageView())
	startedSending := m.snapshot.Sending && !prev.Sending
	if m.snapshot.Len() > prev.Len() || startedSending {
		m.viewport.GotoBottom()
	}

	cmds := []tea.Cmd{m.updateInput()}
	if startedSending {
		cmds = append(cmds, m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

func (m Model) inputEnabled() bool {
	return !m.loading && !m.snapshot.Sending
}

func (m *Model) updateInput() tea.Cmd {
	if !m.inputEnabled() {
		m.input.Blur()
		return nil
	}
	if m.input.Focused() {
		return nil
	}
	return m.input.Focus()
}

func (m *Model) recomputeSize() {
	headerHeight := lipgloss.Height(m.headerView())
	inputHeight := lipgloss.Height(m.inputView())
	statusHeight := lipgloss.Height(m.statusView())
	helpHeight := lipgloss.Height(m.help.View(m.keyMap))

	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-headerHeight-inputHeight-statusHeight-helpHeight, 1)
	m.input.Width = max(m.width-m.style.FocusedInput.GetHorizontalFrameSize()-lipgloss.Width(m.input.Prompt)-1, 1)
	m.help.Width = m.width

	m.viewport.SetContent(m.messageView())
	m.viewport.GotoBottom()
}

func (m Model) headerView() string {
	return m.style.Header.Render(headerTitle) + "\n" + m.style.Subtitle.Render(headerSubtitle)
}

func (m Model) messageView() string {
	if m.loading && m.snapshot.Len() == 0 {
		return m.style.Placeholder.Render(loadingPlaceholder)
	}
	if m.snapshot.Idle() {
		return m.style.Placeholder.Render(emptyPlaceholder)
	}

	var b strings.Builder
	for _, msg := range m.snapshot.Messages {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	if m.snapshot.Sending {
		b.WriteString(m.style.Typing.Render(m.spinner.View()))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderMessage(msg conversation.Message) string {
	style := m.style.AssistantMessage
	if msg.Role == conversation.RoleUser {
		style = m.style.UserMessage
	}

	content := wrapWords(msg.Content, m.textWidth(style))
	if msg.Role == conversation.RoleAssistant && m.renderer != nil {
		out, err := m.renderer.Render(msg.Content)
		if err != nil {
			log.Debug().Err(err).Msg("could not render reply as markdown")
		} else {
			content = strings.Trim(out, "\n")
		}
	}

	bubble := style.Render(content)
	if msg.Role == conversation.RoleUser {
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, bubble)
	}
	return bubble
}

func (m Model) textWidth(style lipgloss.Style) int {
	return max(m.width*3/4-style.GetHorizontalFrameSize(), 10)
}

func (m Model) inputView() string {
	style := m.style.DisabledInput
	if m.inputEnabled() {
		style = m.style.FocusedInput
	}
	return style.Width(max(m.width-style.GetHorizontalBorderSize(), 1)).Render(m.input.View())
}

func (m Model) statusView() string {
	if m.err != nil {
		text := strings.ReplaceAll("could not clear conversation: "+m.err.Error(), "\n", " ")
		return m.style.Error.MaxWidth(m.width).Render(text)
	}
	return m.style.Status.MaxWidth(m.width).Render("conversation " + m.controller.ConversationID())
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Warn().Err(err).Msg("could not create markdown renderer, showing replies as plain text")
		return nil
	}
	return r
}
