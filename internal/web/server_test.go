package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	orchestration "github.com/koscakluka/ema-referrals/core"
	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/events"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
)

type stubConversation struct {
	mu          sync.Mutex
	state       conversations.State
	mode        conversations.Mode
	history     []conversations.Message
	profile     texttospeech.VoiceProfile
	voices      []texttospeech.Voice
	testErr     error
	testedTexts []string
	subscribers []func(events.Event)
}

func newStubConversation() *stubConversation {
	return &stubConversation{
		state:   conversations.StateIdle,
		mode:    conversations.ModePushToTalk,
		profile: texttospeech.DefaultVoiceProfile(),
		voices: []texttospeech.Voice{
			{Name: "aura-2-thalia-en", Locale: "en-US"},
			{Name: "aura-2-helena-en", Locale: "en-US"},
		},
	}
}

func (s *stubConversation) State() conversations.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubConversation) Mode() conversations.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *stubConversation) SetMode(mode conversations.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

func (s *stubConversation) Transcript() string { return "" }

func (s *stubConversation) History() []conversations.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversations.Message(nil), s.history...)
}

func (s *stubConversation) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *stubConversation) IsSupported() bool { return true }

func (s *stubConversation) StartListening() { s.setState(conversations.StateListening) }

func (s *stubConversation) StopListening() { s.setState(conversations.StateProcessing) }

func (s *stubConversation) StopConversation() { s.setState(conversations.StateIdle) }

func (s *stubConversation) setState(state conversations.State) {
	s.mu.Lock()
	previous := s.state
	s.state = state
	subscribers := append([]func(events.Event){}, s.subscribers...)
	s.mu.Unlock()

	for _, subscriber := range subscribers {
		subscriber(events.NewStateChanged(previous, state))
	}
}

func (s *stubConversation) Voices() []texttospeech.Voice { return s.voices }

func (s *stubConversation) VoiceProfile() texttospeech.VoiceProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *stubConversation) SetVoiceProfile(profile texttospeech.VoiceProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
}

func (s *stubConversation) TestVoice(_ context.Context, text string, _ texttospeech.VoiceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.testErr != nil {
		return s.testErr
	}
	s.testedTexts = append(s.testedTexts, text)
	return nil
}

func (s *stubConversation) Subscribe(handler func(events.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, handler)
	return func() {}
}

type stubProfileStore struct {
	saved []texttospeech.VoiceProfile
}

func (s *stubProfileStore) SaveVoiceProfile(profile texttospeech.VoiceProfile) error {
	s.saved = append(s.saved, profile)
	return nil
}

func newTestServer(t *testing.T, conversation Conversation, opts ...ServerOption) *Server {
	t.Helper()
	server, err := NewServer(conversation, opts...)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })
	return server
}

func doRequest(t *testing.T, server *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.app.Test(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp, data
}

func TestNewServerRequiresConversation(t *testing.T) {
	if _, err := NewServer(nil); err == nil {
		t.Fatalf("expected an error without a conversation")
	}
}

func TestGetState(t *testing.T) {
	server := newTestServer(t, newStubConversation())

	resp, body := doRequest(t, server, http.MethodGet, "/api/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var state stateResponse
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if state.State != conversations.StateIdle || state.Mode != conversations.ModePushToTalk || !state.Supported {
		t.Fatalf("expected idle push-to-talk, got %+v", state)
	}
}

func TestListeningControls(t *testing.T) {
	conversation := newStubConversation()
	server := newTestServer(t, conversation)

	testCases := []struct {
		path     string
		expected conversations.State
	}{
		{path: "/api/listening/start", expected: conversations.StateListening},
		{path: "/api/listening/stop", expected: conversations.StateProcessing},
		{path: "/api/conversation/stop", expected: conversations.StateIdle},
	}

	for _, testCase := range testCases {
		resp, body := doRequest(t, server, http.MethodPost, testCase.path, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 from %s, got %d", testCase.path, resp.StatusCode)
		}
		var state stateResponse
		if err := json.Unmarshal(body, &state); err != nil {
			t.Fatalf("failed to decode state: %v", err)
		}
		if state.State != testCase.expected {
			t.Fatalf("expected %s after %s, got %s", testCase.expected, testCase.path, state.State)
		}
	}
}

func TestHistoryEndpoints(t *testing.T) {
	conversation := newStubConversation()
	conversation.history = []conversations.Message{
		{Role: conversations.RoleUser, Content: "find a cpa", TurnID: "turn-1"},
		{Role: conversations.RoleAssistant, Content: "Talk to Nathan Aldrin.", TurnID: "turn-1"},
	}
	server := newTestServer(t, conversation)

	_, body := doRequest(t, server, http.MethodGet, "/api/history", "")
	var history historyResponse
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(history.Messages) != 2 || history.Messages[1].Role != conversations.RoleAssistant {
		t.Fatalf("expected two messages, got %+v", history.Messages)
	}

	resp, _ := doRequest(t, server, http.MethodDelete, "/api/history", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	_, body = doRequest(t, server, http.MethodGet, "/api/history", "")
	if !strings.Contains(string(body), `"messages":[]`) {
		t.Fatalf("expected an empty message list, got %s", body)
	}
}

func TestSetMode(t *testing.T) {
	conversation := newStubConversation()
	server := newTestServer(t, conversation)

	resp, _ := doRequest(t, server, http.MethodPut, "/api/mode", `{"mode":"hands-free"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if mode := conversation.Mode(); mode != conversations.ModeHandsFree {
		t.Fatalf("expected hands-free, got %s", mode)
	}

	resp, body := doRequest(t, server, http.MethodPut, "/api/mode", `{"mode":"walkie-talkie"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "walkie-talkie") {
		t.Fatalf("expected error to name the mode, got %s", body)
	}
	if mode := conversation.Mode(); mode != conversations.ModeHandsFree {
		t.Fatalf("expected mode to be unchanged, got %s", mode)
	}
}

func TestSetVoiceProfile(t *testing.T) {
	conversation := newStubConversation()
	store := &stubProfileStore{}
	server := newTestServer(t, conversation, WithProfileStore(store))

	resp, _ := doRequest(t, server, http.MethodPut, "/api/voice-profile",
		`{"voiceName":"aura-2-helena-en","voiceLocale":"en-us","rate":1.4,"volume":3}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	profile := conversation.VoiceProfile()
	if profile.Voice == nil || profile.Voice.Name != "aura-2-helena-en" {
		t.Fatalf("expected helena voice, got %+v", profile.Voice)
	}
	if profile.Rate != 1.4 || profile.Pitch != 1 || profile.Volume != texttospeech.MaxVolume {
		t.Fatalf("expected merged and clamped profile, got %+v", profile)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected profile to be persisted once, got %d", len(store.saved))
	}
}

func TestSetVoiceProfileKeepsVoiceUnlessCleared(t *testing.T) {
	conversation := newStubConversation()
	server := newTestServer(t, conversation)

	resp, _ := doRequest(t, server, http.MethodPut, "/api/voice-profile", `{"voiceName":"aura-2-helena-en"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, server, http.MethodPut, "/api/voice-profile", `{"rate":0.8}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	profile := conversation.VoiceProfile()
	if profile.Voice == nil || profile.Voice.Name != "aura-2-helena-en" {
		t.Fatalf("expected the voice to be kept, got %+v", profile.Voice)
	}
	if profile.Rate != 0.8 {
		t.Fatalf("expected rate 0.8, got %v", profile.Rate)
	}

	resp, _ = doRequest(t, server, http.MethodPut, "/api/voice-profile", `{"voiceName":""}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if profile := conversation.VoiceProfile(); profile.Voice != nil || profile.Rate != 0.8 {
		t.Fatalf("expected the default voice at rate 0.8, got %+v", profile)
	}
}

func TestSetVoiceProfileRejectsUnknownVoice(t *testing.T) {
	conversation := newStubConversation()
	store := &stubProfileStore{}
	server := newTestServer(t, conversation, WithProfileStore(store))

	resp, _ := doRequest(t, server, http.MethodPut, "/api/voice-profile", `{"voiceName":"hal-9000"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected nothing to be persisted, got %v", store.saved)
	}
}

func TestTestVoice(t *testing.T) {
	conversation := newStubConversation()
	server := newTestServer(t, conversation)

	resp, _ := doRequest(t, server, http.MethodPost, "/api/voice-profile/test", `{"rate":0.8}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if len(conversation.testedTexts) != 1 || conversation.testedTexts[0] != defaultVoiceTestText {
		t.Fatalf("expected the default sample text, got %v", conversation.testedTexts)
	}

	conversation.testErr = fmt.Errorf("conversation is listening: %w", orchestration.ErrConversationBusy)
	resp, _ = doRequest(t, server, http.MethodPost, "/api/voice-profile/test", `{"text":"hello"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while busy, got %d", resp.StatusCode)
	}
}

func TestWebSocketRouteRequiresUpgrade(t *testing.T) {
	server := newTestServer(t, newStubConversation())

	resp, _ := doRequest(t, server, http.MethodGet, "/ws/events", "")
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	conversation := newStubConversation()
	server := newTestServer(t, conversation)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() { _ = server.Serve(ln) }()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/events", nil)
	if err != nil {
		t.Fatalf("websocket dial error: %v", err)
	}
	defer ws.Close()

	// Registration happens on the hub goroutine.
	time.Sleep(50 * time.Millisecond)
	conversation.StartListening()

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}

	var message struct {
		Kind events.Kind `json:"kind"`
		Data struct {
			Previous conversations.State `json:"previous"`
			Current  conversations.State `json:"current"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &message); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if message.Kind != events.KindStateChanged || message.Data.Current != conversations.StateListening {
		t.Fatalf("expected listening state change, got %s", data)
	}
}
