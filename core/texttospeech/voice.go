package texttospeech

import (
	"strings"

	"github.com/jinzhu/copier"
)

const (
	MinRate   = 0.1
	MaxRate   = 10.0
	MinPitch  = 0.0
	MaxPitch  = 2.0
	MinVolume = 0.0
	MaxVolume = 1.0
)

// Voice is a platform voice. Voices are matched by name and locale because
// handles do not survive restarts.
type Voice struct {
	Name        string `json:"name"`
	Locale      string `json:"locale"`
	DisplayName string `json:"displayName,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// Matches reports whether v is the voice stored under name and locale. An
// empty locale matches any locale.
func (v Voice) Matches(name, locale string) bool {
	if v.Name != name {
		return false
	}
	return locale == "" || strings.EqualFold(v.Locale, locale)
}

// FindVoice resolves a stored name and locale against a catalog.
func FindVoice(voices []Voice, name, locale string) *Voice {
	if name == "" {
		return nil
	}
	for _, voice := range voices {
		if voice.Matches(name, locale) {
			return &voice
		}
	}
	return nil
}

type VoiceProfile struct {
	// Voice is nil when the platform default should be used.
	Voice  *Voice  `json:"voice"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

func DefaultVoiceProfile() VoiceProfile {
	return VoiceProfile{Rate: 1, Pitch: 1, Volume: 1}
}

// Normalized clamps the profile into the ranges every synthesizer accepts.
func (p VoiceProfile) Normalized() VoiceProfile {
	p.Rate = clamp(p.Rate, MinRate, MaxRate)
	p.Pitch = clamp(p.Pitch, MinPitch, MaxPitch)
	p.Volume = clamp(p.Volume, MinVolume, MaxVolume)
	return p
}

// Clone returns a deep copy so callers never share the Voice pointer.
func (p VoiceProfile) Clone() VoiceProfile {
	var clone VoiceProfile
	if err := copier.CopyWithOption(&clone, &p, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to copy voice profile", "error", err)
		clone = p
		if p.Voice != nil {
			voice := *p.Voice
			clone.Voice = &voice
		}
	}
	return clone
}

func clamp(value, lower, upper float64) float64 {
	switch {
	case value < lower:
		return lower
	case value > upper:
		return upper
	}
	return value
}
