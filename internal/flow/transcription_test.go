package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fmueller/voxstudio/internal/audio"
	"github.com/fmueller/voxstudio/internal/speechapi"
)

type fakeTranscriber struct {
	mu     sync.Mutex
	calls  []speechapi.TranscriptionRequest
	result speechapi.TranscriptionResult
	err    error
	hook   func(call int)
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req speechapi.TranscriptionRequest) (speechapi.TranscriptionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	call := len(f.calls)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func wavSelection(name string, size int) *audio.Selection {
	return &audio.Selection{Name: name, MIMEType: "audio/wav", Size: int64(size), Data: make([]byte, size)}
}

func TestTranscriptionRequiresAudio(t *testing.T) {
	t.Parallel()

	api := &fakeTranscriber{}
	f := NewTranscription(api, TranscriptionOptions{})

	snap := f.Submit(context.Background())
	require.Equal(t, StateFailed, snap.State)
	require.Equal(t, "Please upload an audio file.", snap.Error)
	require.Zero(t, api.callCount())
}

func TestTranscriptionSuccess(t *testing.T) {
	t.Parallel()

	api := &fakeTranscriber{result: speechapi.TranscriptionResult{Transcript: "ni hao", HasTranscript: true}}
	f := NewTranscription(api, TranscriptionOptions{})
	require.True(t, f.SelectAudio(wavSelection("a.wav", 3)))
	require.NoError(t, f.SetLanguage("zh-cn"))

	snap := f.Submit(context.Background())
	require.Equal(t, StateSucceeded, snap.State)
	require.Equal(t, "ni hao", snap.Transcript)
	require.Empty(t, snap.Error)
	require.Equal(t, speechapi.LanguageMandarin, api.calls[0].Language)
	require.Equal(t, "a.wav", api.calls[0].Audio.Name)
}

func TestTranscriptionMissingTranscriptIsSuccess(t *testing.T) {
	t.Parallel()

	f := NewTranscription(&fakeTranscriber{}, TranscriptionOptions{})
	f.SelectAudio(wavSelection("a.wav", 1))

	snap := f.Submit(context.Background())
	require.Equal(t, StateSucceeded, snap.State)
	require.Equal(t, "No transcript returned.", snap.Transcript)
	require.Empty(t, snap.Error)
}

func TestTranscriptionErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "remote", err: &speechapi.RemoteError{StatusCode: 500, Detail: "ignored"}, want: "Transcription failed"},
		{name: "transport", err: &speechapi.TransportError{Err: errors.New("connection refused")}, want: "connection refused"},
		{name: "decode", err: &speechapi.DecodeError{Err: errors.New("invalid character 'x'")}, want: "invalid character 'x'"},
		{name: "empty message", err: &speechapi.TransportError{Err: errors.New("")}, want: "An error occurred."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := NewTranscription(&fakeTranscriber{err: tt.err}, TranscriptionOptions{})
			f.SelectAudio(wavSelection("a.wav", 1))

			snap := f.Submit(context.Background())
			require.Equal(t, StateFailed, snap.State)
			require.Equal(t, tt.want, snap.Error)
			require.Empty(t, snap.Transcript)
		})
	}
}

func TestTranscriptionSelectAudioClearsPriorResult(t *testing.T) {
	t.Parallel()

	api := &fakeTranscriber{result: speechapi.TranscriptionResult{Transcript: "first", HasTranscript: true}}
	f := NewTranscription(api, TranscriptionOptions{})
	f.SelectAudio(wavSelection("a.wav", 1))
	require.Equal(t, "first", f.Submit(context.Background()).Transcript)

	f.SelectAudio(wavSelection("b.wav", 1))
	snap := f.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Empty(t, snap.Transcript)
	require.Empty(t, snap.Error)
	require.Equal(t, "b.wav", snap.Audio.Name)
}

func TestTranscriptionPrimaryAudioIsNotValidatedByDefault(t *testing.T) {
	t.Parallel()

	api := &fakeTranscriber{}
	f := NewTranscription(api, TranscriptionOptions{})
	sel := &audio.Selection{Name: "notes.txt", MIMEType: "text/plain", Size: 20 << 20}

	require.True(t, f.SelectAudio(sel))
	f.Submit(context.Background())
	require.Equal(t, 1, api.callCount())
}

func TestTranscriptionStrictSelectionRejects(t *testing.T) {
	t.Parallel()

	api := &fakeTranscriber{}
	f := NewTranscription(api, TranscriptionOptions{StrictSelection: true})

	require.False(t, f.SelectAudio(&audio.Selection{Name: "clip.webm", MIMEType: "audio/webm", Size: 5}))
	snap := f.Snapshot()
	require.Equal(t, StateFailed, snap.State)
	require.Equal(t, "Please select a valid audio file (WAV, MP3, FLAC, OGG)", snap.Error)
	require.Nil(t, snap.Audio)

	f.Submit(context.Background())
	require.Zero(t, api.callCount())
}

func TestTranscriptionSetLanguageRejectsUnknown(t *testing.T) {
	t.Parallel()

	f := NewTranscription(&fakeTranscriber{}, TranscriptionOptions{})
	require.Error(t, f.SetLanguage("fr"))
	require.Equal(t, speechapi.LanguageEnglish, f.Snapshot().Language)
}

func TestTranscriptionDiscardsStaleResponse(t *testing.T) {
	t.Parallel()

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	api := &fakeTranscriber{}
	api.hook = func(call int) {
		if call == 1 {
			close(firstStarted)
			<-releaseFirst
		}
	}

	f := NewTranscription(api, TranscriptionOptions{})
	f.SelectAudio(wavSelection("a.wav", 1))

	firstDone := make(chan TranscriptionSnapshot, 1)
	go func() {
		firstDone <- f.Submit(context.Background())
	}()
	<-firstStarted

	api.mu.Lock()
	api.result = speechapi.TranscriptionResult{Transcript: "second", HasTranscript: true}
	api.mu.Unlock()

	second := f.Submit(context.Background())
	require.Equal(t, "second", second.Transcript)

	api.mu.Lock()
	api.result = speechapi.TranscriptionResult{Transcript: "stale", HasTranscript: true}
	api.mu.Unlock()
	close(releaseFirst)

	first := <-firstDone
	require.Equal(t, "second", first.Transcript)
	require.Equal(t, "second", f.Snapshot().Transcript)
}
