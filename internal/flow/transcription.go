package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmueller/voxstudio/internal/audio"
	"github.com/fmueller/voxstudio/internal/speechapi"
)

type TranscriptionOptions struct {
	Language speechapi.Language
	// StrictSelection validates the primary audio against the reference
	// allow-list when it is selected.
	StrictSelection bool
	Logger          *zap.Logger
}

type TranscriptionSnapshot struct {
	State      State              `json:"state"`
	Audio      *AudioInfo         `json:"audio,omitempty"`
	Language   speechapi.Language `json:"language"`
	Transcript string             `json:"transcript,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Transcription owns the state of the audio-to-text flow.
type Transcription struct {
	api    Transcriber
	strict bool
	logger *zap.Logger

	mu         sync.Mutex
	audio      *audio.Selection
	language   speechapi.Language
	state      State
	transcript string
	errMsg     string
	token      uuid.UUID
}

func NewTranscription(api Transcriber, opts TranscriptionOptions) *Transcription {
	if opts.Language == "" {
		opts.Language = speechapi.LanguageEnglish
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Transcription{
		api:      api,
		strict:   opts.StrictSelection,
		logger:   opts.Logger,
		language: opts.Language,
	}
}

// SelectAudio replaces the selected file and clears any prior transcript
// and error. It reports false only when strict selection rejected sel.
func (f *Transcription) SelectAudio(sel *audio.Selection) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.strict {
		if err := audio.Validate(sel); err != nil {
			f.state = StateFailed
			f.errMsg = err.Error()
			f.logRejected(sel, err)
			return false
		}
	}

	f.audio = sel
	f.transcript = ""
	f.errMsg = ""
	if f.state != StateSubmitting {
		f.state = StateIdle
	}
	return true
}

func (f *Transcription) SetLanguage(code string) error {
	lang, err := speechapi.ParseLanguage(code)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.language = lang
	f.mu.Unlock()
	return nil
}

// Submit runs one transcription attempt and returns the resulting state.
// When a later Submit started while this one was in flight, the outcome
// of this one is discarded and the current state is returned instead.
func (f *Transcription) Submit(ctx context.Context) TranscriptionSnapshot {
	f.mu.Lock()
	token := uuid.New()
	f.token = token

	if f.audio == nil {
		f.state = StateFailed
		f.transcript = ""
		f.errMsg = msgNoAudio
		defer f.mu.Unlock()
		return f.snapshotLocked()
	}

	f.state = StateSubmitting
	f.transcript = ""
	f.errMsg = ""
	req := speechapi.TranscriptionRequest{Audio: f.audio, Language: f.language}
	f.mu.Unlock()

	started := time.Now()
	result, err := f.api.Transcribe(ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.token != token {
		f.logger.Debug("discarding stale transcription response", zap.String("token", token.String()))
		return f.snapshotLocked()
	}

	if err != nil {
		f.state = StateFailed
		f.errMsg = transcriptionErrorMessage(err)
		f.logger.Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return f.snapshotLocked()
	}

	f.state = StateSucceeded
	if result.HasTranscript {
		f.transcript = result.Transcript
	} else {
		f.transcript = msgNoTranscript
	}
	f.logger.Info("transcription finished", zap.Duration("elapsed", time.Since(started)))
	return f.snapshotLocked()
}

func (f *Transcription) Snapshot() TranscriptionSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Transcription) snapshotLocked() TranscriptionSnapshot {
	return TranscriptionSnapshot{
		State:      f.state,
		Audio:      describe(f.audio),
		Language:   f.language,
		Transcript: f.transcript,
		Error:      f.errMsg,
	}
}

func (f *Transcription) logRejected(sel *audio.Selection, err error) {
	fields := []zap.Field{zap.Error(err)}
	var verr *audio.ValidationError
	if errors.As(err, &verr) {
		fields = append(fields, zap.String("kind", verr.Kind.String()), zap.String("detail", verr.Detail))
	}
	if sel != nil {
		fields = append(fields, zap.String("audio", sel.Name))
	}
	f.logger.Info("audio rejected", fields...)
}

// Remote failures collapse to one message for this endpoint.
func transcriptionErrorMessage(err error) string {
	var remote *speechapi.RemoteError
	if errors.As(err, &remote) {
		return msgTranscriptionFailed
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return msgTranscriptionUnknown
}
