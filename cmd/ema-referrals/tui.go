package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/events"
	"github.com/koscakluka/ema-referrals/internal/config"
)

const (
	eventBufferSize = 256
	// Lines taken by the header and footer around the history viewport.
	chromeHeight = 9
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("78"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	ruleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	stateStyles = map[conversations.State]lipgloss.Style{
		conversations.StateIdle:       lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("240")),
		conversations.StateListening:  lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("160")),
		conversations.StateProcessing: lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("136")),
		conversations.StateResponding: lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("28")),
		conversations.StateError:      lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("88")),
	}
)

// conversation is the part of the orchestrator the terminal client drives.
type conversation interface {
	State() conversations.State
	Mode() conversations.Mode
	SetMode(mode conversations.Mode)
	History() []conversations.Message
	ClearHistory()
	IsSupported() bool
	StartListening()
	StopListening()
	StopConversation()
	Subscribe(handler func(events.Event)) (unsubscribe func())
}

// eventFeed hands conversation events to the program loop. Delivery blocks
// until the loop reads or the feed is closed.
type eventFeed struct {
	events      chan events.Event
	done        chan struct{}
	unsubscribe func()
	closeOnce   sync.Once
}

func newEventFeed(conv conversation) *eventFeed {
	feed := &eventFeed{
		events: make(chan events.Event, eventBufferSize),
		done:   make(chan struct{}),
	}
	feed.unsubscribe = conv.Subscribe(func(event events.Event) {
		select {
		case feed.events <- event:
		case <-feed.done:
		}
	})
	return feed
}

func (f *eventFeed) next() tea.Cmd {
	return func() tea.Msg {
		select {
		case event := <-f.events:
			return eventMsg{event: event}
		case <-f.done:
			return nil
		}
	}
}

func (f *eventFeed) close() {
	f.closeOnce.Do(func() {
		f.unsubscribe()
		close(f.done)
	})
}

type eventMsg struct{ event events.Event }

type modeMsg struct{ mode conversations.Mode }

type model struct {
	conversation conversation
	feed         *eventFeed
	webAddress   string

	state      conversations.State
	mode       conversations.Mode
	supported  bool
	transcript string
	answer     string
	history    []conversations.Message
	lastErr    string

	spinner  spinner.Model
	viewport viewport.Model
	width    int
	ready    bool
}

func newModel(conv conversation, web config.WebConfig) model {
	m := model{
		conversation: conv,
		feed:         newEventFeed(conv),
		state:        conv.State(),
		mode:         conv.Mode(),
		supported:    conv.IsSupported(),
		history:      conv.History(),
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(assistantStyle)),
	}
	if web.Enabled {
		m.webAddress = web.Address
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.feed.next(), m.spinner.Tick)
}

// Conversation calls run as commands because they may publish events that
// only this loop drains.
func control(action func()) tea.Cmd {
	return func() tea.Msg {
		action()
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.feed.close()
			return m, tea.Quit
		case " ":
			return m, m.toggleListening()
		case "h":
			next := conversations.ModeHandsFree
			if m.mode == conversations.ModeHandsFree {
				next = conversations.ModePushToTalk
			}
			return m, func() tea.Msg {
				m.conversation.SetMode(next)
				return modeMsg{mode: m.conversation.Mode()}
			}
		case "s":
			return m, control(m.conversation.StopConversation)
		case "c":
			return m, control(m.conversation.ClearHistory)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-chromeHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refreshHistory()

	case modeMsg:
		m.mode = msg.mode

	case eventMsg:
		m.applyEvent(msg.event)
		return m, m.feed.next()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) toggleListening() tea.Cmd {
	switch m.state {
	case conversations.StateListening:
		return control(m.conversation.StopListening)
	case conversations.StateIdle, conversations.StateError:
		return control(m.conversation.StartListening)
	}
	return nil
}

func (m *model) applyEvent(event events.Event) {
	switch e := event.(type) {
	case events.StateChanged:
		m.state = e.Current
		if e.Current == conversations.StateListening {
			m.lastErr = ""
		}
	case events.UserTranscriptUpdated:
		m.transcript = e.Transcript
	case events.UserMessageSubmitted:
		m.transcript = ""
		m.answer = ""
		m.history = m.conversation.History()
		m.refreshHistory()
	case events.AssistantResponseUpdated:
		m.answer = e.Text
	case events.AssistantResponseFinal:
		m.answer = ""
		m.history = m.conversation.History()
		m.refreshHistory()
	case events.TurnCancelled:
		m.transcript = ""
		m.answer = ""
	case events.HistoryCleared:
		m.history = nil
		m.refreshHistory()
	case events.ConversationError:
		if e.Err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", e.Source, e.Err)
		}
	}
}

func (m *model) refreshHistory() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m model) renderHistory() string {
	if len(m.history) == 0 {
		return dimStyle.Render("Press space and ask for a referral partner.")
	}

	width := max(m.width-2, 10)
	var b strings.Builder
	for i, message := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(speakerLabel(message.Role))
		b.WriteString("\n")
		b.WriteString(wordwrap.String(message.Content, width))
	}
	return b.String()
}

func speakerLabel(role conversations.Role) string {
	if role == conversations.RoleUser {
		return userStyle.Render("You")
	}
	return assistantStyle.Render("Ema")
}

func (m model) View() string {
	if !m.ready {
		return "Starting..."
	}

	width := max(m.width-2, 10)
	rule := ruleStyle.Render(strings.Repeat("─", max(m.width, 1)))

	header := titleStyle.Render("ema referrals") + "  " +
		stateStyles[m.state].Render(string(m.state)) + "  " +
		dimStyle.Render(string(m.mode))
	status := dimStyle.Render("ready")
	switch {
	case !m.supported:
		status = errorStyle.Render("speech is unavailable, check the audio device and DEEPGRAM_API_KEY")
	case m.webAddress != "":
		status = dimStyle.Render("web api on http://" + m.webAddress)
	}

	var live []string
	if m.transcript != "" {
		live = append(live, userStyle.Render("You")+" "+wordwrap.String(m.transcript, width))
	}
	switch {
	case m.answer != "":
		live = append(live, assistantStyle.Render("Ema")+" "+wordwrap.String(m.answer, width))
	case m.state == conversations.StateProcessing:
		live = append(live, m.spinner.View()+" "+dimStyle.Render("looking for partners..."))
	}
	if m.lastErr != "" {
		live = append(live, errorStyle.Render(m.lastErr))
	}

	help := dimStyle.Render("space talk  h hands-free  s stop  c clear  q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		status,
		rule,
		m.viewport.View(),
		rule,
		strings.Join(live, "\n"),
		help,
	)
}
