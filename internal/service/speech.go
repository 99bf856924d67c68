package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stayline/concierge/internal/config"
	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/port/cache"
	"github.com/stayline/concierge/internal/port/speech"
)

// SpeechService fronts the STT/TTS models and caches synthesized audio.
// Concierge replies repeat heavily (greetings, hours, directions), so
// the TTS cache pays for itself quickly.
type SpeechService struct {
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	ttsCache    cache.Cache
	cfg         *config.Config
}

// NewSpeechService creates a SpeechService. ttsCache may be nil to
// disable caching.
func NewSpeechService(t speech.Transcriber, s speech.Synthesizer, ttsCache cache.Cache, cfg *config.Config) *SpeechService {
	return &SpeechService{transcriber: t, synthesizer: s, ttsCache: ttsCache, cfg: cfg}
}

// Transcribe converts guest audio into text.
func (s *SpeechService) Transcribe(ctx context.Context, audio []byte, mimetype string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: audio is empty", domain.ErrValidation)
	}
	text, err := s.transcriber.Transcribe(ctx, audio, mimetype)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Synthesize converts reply text into audio, serving repeats from cache.
func (s *SpeechService) Synthesize(ctx context.Context, text, voice, format string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrValidation)
	}
	if voice == "" {
		voice = s.cfg.Voice.DefaultVoice
	}
	if format == "" {
		format = "mp3"
	}

	key := ttsCacheKey(text, voice, format)
	if s.ttsCache != nil {
		if audio, ok, err := s.ttsCache.Get(ctx, key); err == nil && ok {
			slog.Debug("tts cache hit", "voice", voice, "bytes", len(audio))
			return audio, nil
		}
	}

	audio, err := s.synthesizer.Synthesize(ctx, text, voice, format)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	if s.ttsCache != nil {
		if err := s.ttsCache.Set(ctx, key, audio, s.cfg.TTSCache.TTL); err != nil {
			slog.Warn("tts cache store failed", "error", err)
		}
	}
	return audio, nil
}

func ttsCacheKey(text, voice, format string) string {
	h := sha256.Sum256([]byte(text + "|" + voice + "|" + format))
	return "tts:" + hex.EncodeToString(h[:])
}
