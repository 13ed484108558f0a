package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCLIErrorCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{name: "unknown command", args: []string{"badcmd"}, errContains: "unknown command"},
		{name: "unknown root flag", args: []string{"--badflag"}, errContains: "unknown flag"},
		{name: "unknown subcommand flag", args: []string{"transcribe", "--bogus", "f.wav"}, errContains: "unknown flag"},
		{name: "transcribe missing arg", args: []string{"transcribe"}, errContains: "accepts 1 arg(s)"},
		{name: "transcribe too many args", args: []string{"transcribe", "a.wav", "b.wav"}, errContains: "accepts 1 arg(s)"},
		{name: "synthesize too many args", args: []string{"synthesize", "one", "two"}, errContains: "accepts at most 1 arg(s)"},
		{name: "serve takes no args", args: []string{"serve", "extra"}, errContains: "unknown command"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := runCommand(t, tt.args)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestCommandErrorsFromFlows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{name: "transcribe nonexistent file", args: []string{"transcribe", "/no/such/file.wav"}, errContains: "audio file not found"},
		{name: "blank text", args: []string{"synthesize", "   "}, errContains: "Please enter some text to synthesize."},
		{name: "unknown voice", args: []string{"synthesize", "--voice", "robot", "hi"}, errContains: "robot"},
		{name: "speed out of range", args: []string{"synthesize", "--speed", "3", "hi"}, errContains: "Speech speed must be between 0.5 and 2.0."},
		{name: "missing reference", args: []string{"synthesize", "--reference-audio", "/no/such/ref.wav", "hi"}, errContains: "audio file not found"},
		{name: "bad log level", args: []string{"--log-level", "loud", "options"}, errContains: "invalid log level"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, _ := newTestApp(t, &fakeSpeech{}, testConfig(t))
			_, err := runApp(t, app, nil, tt.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestVersionFlagOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"--version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "voxstudio v"), "expected version prefix, got: %s", stdout)
}

func TestVersionCommandOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "voxstudio v"), "expected version prefix, got: %s", stdout)
	require.Contains(t, stdout, "/")
}
