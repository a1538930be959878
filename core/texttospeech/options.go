package texttospeech

type SpeakOptions struct {
	Voice  *Voice
	Rate   *float64
	Pitch  *float64
	Volume *float64

	profile *VoiceProfile
}

// SpeakOption overrides the service defaults for a single call.
type SpeakOption func(*SpeakOptions)

func WithVoice(voice *Voice) SpeakOption {
	return func(o *SpeakOptions) { o.Voice = voice }
}

func WithRate(rate float64) SpeakOption {
	return func(o *SpeakOptions) { o.Rate = &rate }
}

func WithPitch(pitch float64) SpeakOption {
	return func(o *SpeakOptions) { o.Pitch = &pitch }
}

func WithVolume(volume float64) SpeakOption {
	return func(o *SpeakOptions) { o.Volume = &volume }
}

// WithProfile replaces every default with profile. Later options still
// override single fields.
func WithProfile(profile VoiceProfile) SpeakOption {
	return func(o *SpeakOptions) {
		o.profile = &profile
		o.Voice, o.Rate, o.Pitch, o.Volume = nil, nil, nil, nil
	}
}

func (o SpeakOptions) apply(defaults VoiceProfile) VoiceProfile {
	profile := defaults
	if o.profile != nil {
		profile = o.profile.Clone()
	}
	if o.Voice != nil {
		voice := *o.Voice
		profile.Voice = &voice
	}
	if o.Rate != nil {
		profile.Rate = *o.Rate
	}
	if o.Pitch != nil {
		profile.Pitch = *o.Pitch
	}
	if o.Volume != nil {
		profile.Volume = *o.Volume
	}
	return profile.Normalized()
}
