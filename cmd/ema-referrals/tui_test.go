package main

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/events"
	"github.com/koscakluka/ema-referrals/internal/config"
)

type stubConversation struct {
	mu          sync.Mutex
	state       conversations.State
	mode        conversations.Mode
	history     []conversations.Message
	calls       []string
	subscribers int
}

func newStubConversation() *stubConversation {
	return &stubConversation{state: conversations.StateIdle, mode: conversations.ModePushToTalk}
}

func (s *stubConversation) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubConversation) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubConversation) State() conversations.State { return s.state }
func (s *stubConversation) Mode() conversations.Mode   { return s.mode }
func (s *stubConversation) IsSupported() bool          { return true }

func (s *stubConversation) SetMode(mode conversations.Mode) {
	s.record("set mode " + string(mode))
	s.mode = mode
}

func (s *stubConversation) History() []conversations.Message {
	return append([]conversations.Message(nil), s.history...)
}

func (s *stubConversation) ClearHistory()     { s.record("clear") }
func (s *stubConversation) StartListening()   { s.record("start") }
func (s *stubConversation) StopListening()    { s.record("stop listening") }
func (s *stubConversation) StopConversation() { s.record("stop conversation") }

func (s *stubConversation) Subscribe(func(events.Event)) func() {
	s.subscribers++
	return func() { s.subscribers-- }
}

func readyModel(t *testing.T, conv conversation) model {
	t.Helper()
	next, _ := newModel(conv, config.WebConfig{}).Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(model)
}

func runCmd(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	return cmd()
}

func sendKey(m model, key string) (model, tea.Cmd) {
	var msg tea.KeyMsg
	if key == " " {
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	} else {
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestSpaceTogglesListening(t *testing.T) {
	conv := newStubConversation()
	m := readyModel(t, conv)

	m, cmd := sendKey(m, " ")
	runCmd(cmd)

	next, _ := m.Update(eventMsg{event: events.NewStateChanged(conversations.StateIdle, conversations.StateListening)})
	m = next.(model)
	_, cmd = sendKey(m, " ")
	runCmd(cmd)

	calls := conv.recorded()
	if len(calls) != 2 || calls[0] != "start" || calls[1] != "stop listening" {
		t.Fatalf("expected start then stop listening, got %v", calls)
	}
}

func TestSpaceIsIgnoredWhileProcessing(t *testing.T) {
	conv := newStubConversation()
	m := readyModel(t, conv)
	next, _ := m.Update(eventMsg{event: events.NewStateChanged(conversations.StateListening, conversations.StateProcessing)})

	_, cmd := sendKey(next.(model), " ")
	if cmd != nil {
		t.Fatalf("expected no command while processing")
	}
}

func TestHandsFreeKeyTogglesMode(t *testing.T) {
	conv := newStubConversation()
	m := readyModel(t, conv)

	m, cmd := sendKey(m, "h")
	next, _ := m.Update(runCmd(cmd))
	m = next.(model)

	if m.mode != conversations.ModeHandsFree {
		t.Fatalf("expected hands-free, got %s", m.mode)
	}
	if !strings.Contains(m.View(), "hands-free") {
		t.Fatalf("expected the mode in the view")
	}
}

func TestControlKeys(t *testing.T) {
	conv := newStubConversation()
	m := readyModel(t, conv)

	for _, key := range []string{"s", "c"} {
		var cmd tea.Cmd
		m, cmd = sendKey(m, key)
		runCmd(cmd)
	}

	calls := conv.recorded()
	if len(calls) != 2 || calls[0] != "stop conversation" || calls[1] != "clear" {
		t.Fatalf("expected stop and clear, got %v", calls)
	}
}

func TestQuitClosesFeed(t *testing.T) {
	conv := newStubConversation()
	m := readyModel(t, conv)

	_, cmd := sendKey(m, "q")
	if _, ok := runCmd(cmd).(tea.QuitMsg); !ok {
		t.Fatalf("expected a quit message")
	}
	if conv.subscribers != 0 {
		t.Fatalf("expected the subscription to be released")
	}
	if msg := runCmd(m.feed.next()); msg != nil {
		t.Fatalf("expected a closed feed to yield nothing, got %v", msg)
	}
}

func TestEventsUpdateView(t *testing.T) {
	conv := newStubConversation()
	m := readyModel(t, conv)

	apply := func(event events.Event) {
		next, _ := m.Update(eventMsg{event: event})
		m = next.(model)
	}

	apply(events.NewStateChanged(conversations.StateIdle, conversations.StateListening))
	apply(events.NewUserTranscriptUpdated("find me a cpa", false))
	if !strings.Contains(m.View(), "find me a cpa") {
		t.Fatalf("expected the live transcript in the view")
	}

	conv.history = []conversations.Message{{Role: conversations.RoleUser, Content: "find me a cpa", TurnID: "turn"}}
	apply(events.NewUserMessageSubmitted("turn", "find me a cpa"))
	apply(events.NewAssistantResponseUpdated("turn", "Talk to Nathan"))
	if !strings.Contains(m.View(), "Talk to Nathan") {
		t.Fatalf("expected the streamed answer in the view")
	}

	apply(events.NewConversationError(events.ErrorSourcePlayback, errors.New("device lost"), false))
	if !strings.Contains(m.View(), "playback: device lost") {
		t.Fatalf("expected the error in the view")
	}

	apply(events.NewHistoryCleared())
	if len(m.history) != 0 || !strings.Contains(m.View(), "Press space") {
		t.Fatalf("expected an empty history")
	}
}

func TestPackageLogsReachHandler(t *testing.T) {
	var out bytes.Buffer
	setupLogging(&out, slog.LevelInfo)

	logger := otelslog.NewLogger("github.com/koscakluka/ema-referrals/test")
	logger.Debug("hidden")
	logger.Warn("device lost", "attempt", 2)

	logged := out.String()
	if strings.Contains(logged, "hidden") {
		t.Fatalf("expected debug records to be filtered, got %q", logged)
	}
	for _, fragment := range []string{"level=WARN", `msg="device lost"`, "attempt=2", "scope=github.com/koscakluka/ema-referrals/test"} {
		if !strings.Contains(logged, fragment) {
			t.Fatalf("expected %s in %q", fragment, logged)
		}
	}
}
