// Package preferences persists user settings that have to survive restarts.
package preferences

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-referrals/core/texttospeech"
	bolt "go.etcd.io/bbolt"
)

var (
	voiceProfileBucket = []byte("voice_profile")
	voiceProfileKey    = []byte("default")
)

// StoredVoiceProfile is the persisted form of a voice profile. The voice is
// kept by name and locale since platform handles are not stable.
type StoredVoiceProfile struct {
	VoiceName   string  `json:"voiceName,omitempty"`
	VoiceLocale string  `json:"voiceLocale,omitempty"`
	Rate        float64 `json:"rate"`
	Pitch       float64 `json:"pitch"`
	Volume      float64 `json:"volume"`
}

type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create preferences directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveVoiceProfile(profile texttospeech.VoiceProfile) error {
	stored := StoredVoiceProfile{}
	if err := copier.Copy(&stored, profile.Normalized()); err != nil {
		return fmt.Errorf("failed to copy voice profile: %w", err)
	}
	if profile.Voice != nil {
		stored.VoiceName = profile.Voice.Name
		stored.VoiceLocale = profile.Voice.Locale
	}

	enc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode voice profile: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(voiceProfileBucket)
		if err != nil {
			return err
		}
		return b.Put(voiceProfileKey, enc)
	})
}

var errNotFound = errors.New("not found")

// StoredVoiceProfile returns the raw persisted profile, nil when nothing was
// saved yet.
func (s *Store) StoredVoiceProfile() (*StoredVoiceProfile, error) {
	var stored StoredVoiceProfile
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(voiceProfileBucket)
		if b == nil {
			return errNotFound
		}
		v := b.Get(voiceProfileKey)
		if len(v) == 0 {
			return errNotFound
		}
		return json.Unmarshal(v, &stored)
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load voice profile: %w", err)
	}
	return &stored, nil
}

// LoadVoiceProfile resolves the persisted profile against the current voice
// catalog. A voice that is no longer available resolves to nil, the platform
// default. ok is false when nothing was saved yet.
func (s *Store) LoadVoiceProfile(voices []texttospeech.Voice) (profile texttospeech.VoiceProfile, ok bool, err error) {
	stored, err := s.StoredVoiceProfile()
	if err != nil || stored == nil {
		return texttospeech.DefaultVoiceProfile(), false, err
	}

	if err := copier.Copy(&profile, stored); err != nil {
		return texttospeech.DefaultVoiceProfile(), false, fmt.Errorf("failed to copy voice profile: %w", err)
	}
	profile.Voice = texttospeech.FindVoice(voices, stored.VoiceName, stored.VoiceLocale)
	return profile.Normalized(), true, nil
}
