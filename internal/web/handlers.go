package web

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	orchestration "github.com/koscakluka/ema-referrals/core"
	"github.com/koscakluka/ema-referrals/core/conversations"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
	"github.com/koscakluka/ema-referrals/internal/utils"
)

const defaultVoiceTestText = "Hi, this is how I will sound when answering your questions."

func (s *Server) handleGetState(c *fiber.Ctx) error {
	return c.JSON(s.snapshot())
}

func (s *Server) snapshot() stateResponse {
	return stateResponse{
		State:      s.conversation.State(),
		Mode:       s.conversation.Mode(),
		Transcript: s.conversation.Transcript(),
		Supported:  s.conversation.IsSupported(),
	}
}

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	messages := s.conversation.History()
	if messages == nil {
		messages = []conversations.Message{}
	}
	return c.JSON(historyResponse{Messages: messages})
}

func (s *Server) handleClearHistory(c *fiber.Ctx) error {
	s.conversation.ClearHistory()
	return c.SendStatus(fiber.StatusNoContent)
}

// Control calls are ignored by the conversation when they do not apply to
// the current state, so the response always reports the resulting state.
func (s *Server) handleStartListening(c *fiber.Ctx) error {
	s.conversation.StartListening()
	return c.JSON(s.snapshot())
}

func (s *Server) handleStopListening(c *fiber.Ctx) error {
	s.conversation.StopListening()
	return c.JSON(s.snapshot())
}

func (s *Server) handleStopConversation(c *fiber.Ctx) error {
	s.conversation.StopConversation()
	return c.JSON(s.snapshot())
}

func (s *Server) handleSetMode(c *fiber.Ctx) error {
	var req modeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	mode, ok := conversations.ParseMode(req.Mode)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
	}

	s.conversation.SetMode(mode)
	return c.JSON(s.snapshot())
}

func (s *Server) handleGetVoices(c *fiber.Ctx) error {
	voices := s.conversation.Voices()
	if voices == nil {
		voices = []texttospeech.Voice{}
	}
	return c.JSON(voices)
}

func (s *Server) handleGetVoiceProfile(c *fiber.Ctx) error {
	return c.JSON(s.conversation.VoiceProfile())
}

func (s *Server) handleSetVoiceProfile(c *fiber.Ctx) error {
	var req voiceProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	profile, err := s.resolveProfile(req)
	if err != nil {
		return err
	}

	s.conversation.SetVoiceProfile(profile)
	if s.profiles != nil {
		if err := s.profiles.SaveVoiceProfile(profile); err != nil {
			// The profile is applied even when it could not be persisted.
			logger.Warn("failed to save voice profile", "error", err)
		}
	}
	return c.JSON(s.conversation.VoiceProfile())
}

func (s *Server) handleTestVoice(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "test voice")
	defer span.End()

	var req voiceTestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	profile, err := s.resolveProfile(req.voiceProfileRequest)
	if err != nil {
		return err
	}
	text := req.Text
	if text == "" {
		text = defaultVoiceTestText
	}
	span.SetAttributes(attribute.Int("voice_test.text_length", len(text)))

	if err := s.conversation.TestVoice(ctx, text, profile); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "voice test failed")
		if errors.Is(err, orchestration.ErrConversationBusy) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return fmt.Errorf("failed to test voice: %w", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// resolveProfile applies the request on top of the current profile and
// matches the requested voice against the catalog. An empty voice name
// selects the platform default.
func (s *Server) resolveProfile(req voiceProfileRequest) (texttospeech.VoiceProfile, error) {
	profile := s.conversation.VoiceProfile()
	profile.Rate = utils.Deref(req.Rate, profile.Rate)
	profile.Pitch = utils.Deref(req.Pitch, profile.Pitch)
	profile.Volume = utils.Deref(req.Volume, profile.Volume)

	switch name := utils.Deref(req.VoiceName, ""); {
	case req.VoiceName == nil:
	case name == "":
		profile.Voice = nil
	default:
		voice := texttospeech.FindVoice(s.conversation.Voices(), name, req.VoiceLocale)
		if voice == nil {
			return texttospeech.VoiceProfile{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown voice %q", name))
		}
		profile.Voice = voice
	}
	return profile.Normalized(), nil
}
