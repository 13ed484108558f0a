package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fmueller/voxstudio/internal/config"
	"github.com/fmueller/voxstudio/internal/server"
	"github.com/fmueller/voxstudio/internal/speechapi"
)

type fakeSpeech struct {
	mu          sync.Mutex
	transcribed []speechapi.TranscriptionRequest
	synthesized []speechapi.SynthesisRequest
	transcript  speechapi.TranscriptionResult
	audio       speechapi.SynthesisResult
	err         error
}

func (f *fakeSpeech) Transcribe(_ context.Context, req speechapi.TranscriptionRequest) (speechapi.TranscriptionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcribed = append(f.transcribed, req)
	return f.transcript, f.err
}

func (f *fakeSpeech) Synthesize(_ context.Context, req speechapi.SynthesisRequest) (speechapi.SynthesisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthesized = append(f.synthesized, req)
	return f.audio, f.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.API.Token = "test-token"
	cfg.API.TranscribeURL = speechapi.DefaultTranscribeURL
	cfg.API.SynthesizeURL = speechapi.DefaultSynthesizeURL
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.SessionTTL = time.Minute
	cfg.Server.MaxUploadBytes = 1 << 20
	cfg.Defaults.Language = "en"
	cfg.Defaults.VoiceStyle = "neutral"
	cfg.Defaults.SpeechSpeed = 1.0
	cfg.Output.Dir = t.TempDir()
	return cfg
}

// newTestApp wires an appState to api and cfg without touching the
// user's config, clipboard or network.
func newTestApp(t *testing.T, api server.SpeechAPI, cfg *config.Config) (*appState, *[]string) {
	t.Helper()

	var copied []string
	app := &appState{
		noProgress: true,
		now: func() time.Time {
			return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
		},
		loadConfigFn: func(string) (*config.Config, error) { return cfg, nil },
		newAPIFn:     func(*config.Config) (server.SpeechAPI, error) { return api, nil },
		copyFn: func(_ context.Context, value string) error {
			copied = append(copied, value)
			return nil
		},
		serveFn: func(context.Context, *server.Server) error { return nil },
	}
	return app, &copied
}

func runApp(t *testing.T, app *appState, stdin io.Reader, args ...string) (stdout string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)

	err = cmd.Execute()
	return out.String(), err
}

// runCommand executes the production root command with an isolated
// environment.
func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func writeTestWAV(t *testing.T, dir string, samples int) string {
	t.Helper()

	path := filepath.Join(dir, "sample.wav")
	require.NoError(t, os.WriteFile(path, makePCM16WAV(samples, 16000), 0o600))
	return path
}

func makePCM16WAV(samples, sampleRate int) []byte {
	dataSize := samples * 2
	out := make([]byte, 44+dataSize)

	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], 1)
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(out[32:], 2)
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	return out
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
