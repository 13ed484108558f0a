package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmueller/voxstudio/internal/audio"
	"github.com/fmueller/voxstudio/internal/playback"
	"github.com/fmueller/voxstudio/internal/speechapi"
	"github.com/fmueller/voxstudio/internal/textprep"
)

type SynthesisOptions struct {
	VoiceStyle  speechapi.VoiceStyle
	SpeechSpeed float64
	// StrictSelection applies the submit-time allow-list when a reference
	// file is selected instead of the looser audio/ prefix check.
	StrictSelection bool
	Preprocess      textprep.Options
	Logger          *zap.Logger
}

type SynthesisSnapshot struct {
	State         State                `json:"state"`
	VoiceStyle    speechapi.VoiceStyle `json:"voiceStyle"`
	SpeechSpeed   float64              `json:"speechSpeed"`
	Reference     *AudioInfo           `json:"reference,omitempty"`
	ReferenceText string               `json:"referenceText,omitempty"`
	Audio         *playback.Handle     `json:"audio,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// Synthesis owns the state of the text-to-speech flow. Successful results
// are registered in the playback store; the flow revokes its previous
// handle whenever a new one replaces it.
type Synthesis struct {
	api    Synthesizer
	store  *playback.Store
	strict bool
	logger *zap.Logger

	mu            sync.Mutex
	text          string
	voice         speechapi.VoiceStyle
	speed         float64
	prep          textprep.Options
	reference     *audio.Selection
	referenceText string
	state         State
	errMsg        string
	handle        *playback.Handle
	token         uuid.UUID
	closed        bool
}

func NewSynthesis(api Synthesizer, store *playback.Store, opts SynthesisOptions) *Synthesis {
	if opts.VoiceStyle == "" {
		opts.VoiceStyle = speechapi.VoiceNeutral
	}
	if opts.SpeechSpeed == 0 {
		opts.SpeechSpeed = speechapi.DefaultSpeechSpeed
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if store == nil {
		store = playback.NewStore()
	}

	return &Synthesis{
		api:    api,
		store:  store,
		strict: opts.StrictSelection,
		logger: opts.Logger,
		voice:  opts.VoiceStyle,
		speed:  opts.SpeechSpeed,
		prep:   opts.Preprocess,
	}
}

func (f *Synthesis) SetText(text string) {
	f.mu.Lock()
	f.text = text
	f.mu.Unlock()
}

func (f *Synthesis) SetVoiceStyle(value string) error {
	style, err := speechapi.ParseVoiceStyle(value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.voice = style
	f.mu.Unlock()
	return nil
}

// SetSpeechSpeed stores speed as given; the range is enforced on Submit.
func (f *Synthesis) SetSpeechSpeed(speed float64) {
	f.mu.Lock()
	f.speed = speed
	f.mu.Unlock()
}

func (f *Synthesis) SetReferenceText(text string) {
	f.mu.Lock()
	f.referenceText = text
	f.mu.Unlock()
}

func (f *Synthesis) SetPreprocess(opts textprep.Options) {
	f.mu.Lock()
	f.prep = opts
	f.mu.Unlock()
}

// SelectReferenceAudio accepts sel as the cloning sample when it is an
// audio/ type. A rejected file sets the error and leaves the previous
// selection in place.
func (f *Synthesis) SelectReferenceAudio(sel *audio.Selection) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sel == nil || !audio.IsAudioMIME(sel.MIMEType) {
		f.fail(msgNotAudio)
		return false
	}

	if f.strict {
		if err := audio.Validate(sel); err != nil {
			f.fail(err.Error())
			return false
		}
	}

	f.reference = sel
	f.errMsg = ""
	if f.state == StateFailed {
		f.state = StateIdle
	}
	f.logger.Debug("reference audio selected",
		zap.String("audio", sel.Name),
		zap.String("mime_type", sel.MIMEType),
		zap.String("size", humanize.IBytes(uint64(sel.Size))),
	)
	return true
}

func (f *Synthesis) ClearReference() {
	f.mu.Lock()
	f.reference = nil
	f.referenceText = ""
	f.mu.Unlock()
}

// SynthesisInput is one complete submission. Nil pointers and an empty
// VoiceStyle keep the flow's current setting.
type SynthesisInput struct {
	Text          string
	VoiceStyle    string
	SpeechSpeed   *float64
	ReferenceText *string
	Preprocess    textprep.Options
}

// Submit runs one synthesis attempt and returns the resulting state.
func (f *Synthesis) Submit(ctx context.Context) SynthesisSnapshot {
	f.mu.Lock()
	return f.submitLocked(ctx)
}

// SubmitWith applies in and starts the attempt under a single lock, so
// concurrent submissions never mix their settings. An unknown voice style
// leaves the flow untouched.
func (f *Synthesis) SubmitWith(ctx context.Context, in SynthesisInput) (SynthesisSnapshot, error) {
	var style speechapi.VoiceStyle
	if in.VoiceStyle != "" {
		parsed, err := speechapi.ParseVoiceStyle(in.VoiceStyle)
		if err != nil {
			return f.Snapshot(), err
		}
		style = parsed
	}

	f.mu.Lock()
	f.text = in.Text
	if style != "" {
		f.voice = style
	}
	if in.SpeechSpeed != nil {
		f.speed = *in.SpeechSpeed
	}
	if in.ReferenceText != nil {
		f.referenceText = *in.ReferenceText
	}
	f.prep = in.Preprocess
	return f.submitLocked(ctx), nil
}

// submitLocked expects f.mu held and releases it before returning.
func (f *Synthesis) submitLocked(ctx context.Context) SynthesisSnapshot {
	if f.closed {
		defer f.mu.Unlock()
		return f.snapshotLocked()
	}

	token := uuid.New()
	f.token = token

	text := f.text
	if f.prep.Enabled() {
		text = textprep.Apply(text, f.prep)
	}

	if strings.TrimSpace(text) == "" {
		f.fail(msgNoText)
		defer f.mu.Unlock()
		return f.snapshotLocked()
	}

	if f.reference != nil && !f.validateReferenceLocked() {
		defer f.mu.Unlock()
		return f.snapshotLocked()
	}

	if !speechapi.ValidSpeechSpeed(f.speed) {
		f.fail(msgSpeedRange)
		defer f.mu.Unlock()
		return f.snapshotLocked()
	}

	f.state = StateSubmitting
	f.errMsg = ""
	req := speechapi.SynthesisRequest{
		Text:           text,
		VoiceStyle:     f.voice,
		SpeechSpeed:    f.speed,
		ReferenceAudio: f.reference,
		ReferenceText:  f.referenceText,
	}
	f.mu.Unlock()

	started := time.Now()
	result, err := f.api.Synthesize(ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.token != token {
		f.logger.Debug("discarding stale synthesis response", zap.String("token", token.String()))
		return f.snapshotLocked()
	}

	if err != nil {
		f.fail(synthesisErrorMessage(err))
		f.logger.Warn("synthesis failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return f.snapshotLocked()
	}

	f.releaseLocked()
	handle := f.store.Create(result.Audio, result.ContentType)
	f.handle = &handle
	f.state = StateSucceeded
	f.logger.Info("synthesis finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("handle", handle.ID),
		zap.String("size", humanize.IBytes(uint64(handle.Size))),
	)
	return f.snapshotLocked()
}

func (f *Synthesis) Snapshot() SynthesisSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Release revokes the current playback handle, if any.
func (f *Synthesis) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseLocked()
}

// Close revokes the current handle and retires the flow. A request still in
// flight is discarded when it returns, and later submissions are ignored.
func (f *Synthesis) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.token = uuid.New()
	if f.state == StateSubmitting {
		f.state = StateIdle
	}
	f.releaseLocked()
}

func (f *Synthesis) releaseLocked() {
	if f.handle == nil {
		return
	}
	f.store.Revoke(f.handle.ID)
	f.handle = nil
}

// validateReferenceLocked checks the selected reference at submit time. On
// failure the validation message becomes the flow error and the selection
// is kept.
func (f *Synthesis) validateReferenceLocked() bool {
	err := audio.Validate(f.reference)
	if err == nil {
		return true
	}

	f.fail(err.Error())
	var verr *audio.ValidationError
	if errors.As(err, &verr) {
		f.logger.Info("reference audio rejected", zap.String("kind", verr.Kind.String()), zap.String("detail", verr.Detail))
	}
	return false
}

func (f *Synthesis) fail(msg string) {
	f.state = StateFailed
	f.errMsg = msg
}

func (f *Synthesis) snapshotLocked() SynthesisSnapshot {
	snap := SynthesisSnapshot{
		State:         f.state,
		VoiceStyle:    f.voice,
		SpeechSpeed:   f.speed,
		Reference:     describe(f.reference),
		ReferenceText: f.referenceText,
		Error:         f.errMsg,
	}
	if f.handle != nil {
		handle := *f.handle
		snap.Audio = &handle
	}
	return snap
}

// Remote failures surface the server's detail when it sent one.
func synthesisErrorMessage(err error) string {
	var remote *speechapi.RemoteError
	if errors.As(err, &remote) {
		if remote.Detail != "" {
			return remote.Detail
		}
		return msgSynthesisFailed
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return msgSynthesisUnknown
}
