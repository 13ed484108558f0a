package flow

import (
	"context"
	"fmt"

	"github.com/fmueller/voxstudio/internal/audio"
	"github.com/fmueller/voxstudio/internal/speechapi"
)

// State is the lifecycle position of one flow. A new submission always
// moves the flow back to StateSubmitting.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	msgNoAudio              = "Please upload an audio file."
	msgTranscriptionFailed  = "Transcription failed"
	msgNoTranscript         = "No transcript returned."
	msgTranscriptionUnknown = "An error occurred."

	msgNoText           = "Please enter some text to synthesize."
	msgSynthesisFailed  = "TTS generation failed"
	msgSynthesisUnknown = "An error occurred during TTS generation."
	msgNotAudio         = "Please select an audio file."
	msgSpeedRange       = "Speech speed must be between 0.5 and 2.0."
)

// NoTranscriptText is shown when the service succeeded without a transcript.
const NoTranscriptText = msgNoTranscript

type Transcriber interface {
	Transcribe(ctx context.Context, req speechapi.TranscriptionRequest) (speechapi.TranscriptionResult, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req speechapi.SynthesisRequest) (speechapi.SynthesisResult, error)
}

// AudioInfo describes a selection without its content.
type AudioInfo struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

func describe(sel *audio.Selection) *AudioInfo {
	if sel == nil {
		return nil
	}
	return &AudioInfo{Name: sel.Name, MIMEType: sel.MIMEType, Size: sel.Size}
}
