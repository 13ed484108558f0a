package speechapi

import (
	"fmt"
	"strings"

	"github.com/fmueller/voxstudio/internal/audio"
)

type Language string

const (
	LanguageEnglish   Language = "en"
	LanguageMandarin  Language = "zh-CN"
	LanguageCantonese Language = "yue"
)

var languages = []Language{LanguageEnglish, LanguageMandarin, LanguageCantonese}

func Languages() []Language {
	return append([]Language(nil), languages...)
}

// ParseLanguage matches codes case-insensitively and returns the canonical
// spelling the remote service expects.
func ParseLanguage(value string) (Language, error) {
	trimmed := strings.TrimSpace(value)
	for _, lang := range languages {
		if strings.EqualFold(trimmed, string(lang)) {
			return lang, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q (allowed: %s)", value, JoinValues(languages, ", "))
}

type VoiceStyle string

const (
	VoiceNeutral      VoiceStyle = "neutral"
	VoiceFriendly     VoiceStyle = "friendly"
	VoiceProfessional VoiceStyle = "professional"
	VoiceEnergetic    VoiceStyle = "energetic"
	VoiceCalm         VoiceStyle = "calm"
	VoiceStoryteller  VoiceStyle = "storyteller"
)

var voiceStyles = []VoiceStyle{VoiceNeutral, VoiceFriendly, VoiceProfessional, VoiceEnergetic, VoiceCalm, VoiceStoryteller}

func VoiceStyles() []VoiceStyle {
	return append([]VoiceStyle(nil), voiceStyles...)
}

func ParseVoiceStyle(value string) (VoiceStyle, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	for _, style := range voiceStyles {
		if trimmed == string(style) {
			return style, nil
		}
	}
	return "", fmt.Errorf("unsupported voice style %q (allowed: %s)", value, JoinValues(voiceStyles, ", "))
}

const (
	MinSpeechSpeed     = 0.5
	MaxSpeechSpeed     = 2.0
	DefaultSpeechSpeed = 1.0
)

func ValidSpeechSpeed(speed float64) bool {
	return speed >= MinSpeechSpeed && speed <= MaxSpeechSpeed
}

type TranscriptionRequest struct {
	Audio    *audio.Selection
	Language Language
}

// TranscriptionResult carries the decoded ASR body. HasTranscript is false
// when the service answered 2xx with a missing or blank transcript field.
type TranscriptionResult struct {
	Transcript    string
	HasTranscript bool
}

type SynthesisRequest struct {
	Text           string
	VoiceStyle     VoiceStyle
	SpeechSpeed    float64
	ReferenceAudio *audio.Selection
	ReferenceText  string
}

type SynthesisResult struct {
	Audio       []byte
	ContentType string
}

// JoinValues renders allowed values for help texts and error messages.
func JoinValues[T ~string](values []T, sep string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, string(v))
	}
	return strings.Join(parts, sep)
}
