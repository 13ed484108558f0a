package audio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAllowList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mimeType string
		ok       bool
	}{
		{mimeType: "audio/wav", ok: true},
		{mimeType: "audio/mp3", ok: true},
		{mimeType: "audio/mpeg", ok: true},
		{mimeType: "audio/flac", ok: true},
		{mimeType: "audio/ogg", ok: true},
		{mimeType: "AUDIO/WAV", ok: true},
		{mimeType: "audio/wave", ok: false},
		{mimeType: "audio/webm", ok: false},
		{mimeType: "audio/mp4", ok: false},
		{mimeType: "text/plain", ok: false},
		{mimeType: "", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.mimeType, func(t *testing.T) {
			t.Parallel()

			err := Validate(&Selection{Name: "sample", MIMEType: tt.mimeType, Size: 10})
			if tt.ok {
				require.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, InvalidFormat, verr.Kind)
			require.Equal(t, "Please select a valid audio file (WAV, MP3, FLAC, OGG)", verr.Error())
		})
	}
}

func TestValidateSizeBoundary(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(&Selection{Name: "edge.wav", MIMEType: "audio/wav", Size: 10_485_760}))

	err := Validate(&Selection{Name: "big.wav", MIMEType: "audio/wav", Size: 10_485_761})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, FileTooLarge, verr.Kind)
	require.Equal(t, "Audio file is too large. Please select a file smaller than 10MB", verr.Message)
	require.Contains(t, verr.Detail, "10 MiB")
}

func TestValidateChecksFormatBeforeSize(t *testing.T) {
	t.Parallel()

	err := Validate(&Selection{Name: "huge.txt", MIMEType: "text/plain", Size: 50 << 20})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, InvalidFormat, verr.Kind)
}

func TestIsAudioMIME(t *testing.T) {
	t.Parallel()

	require.True(t, IsAudioMIME("audio/webm"))
	require.True(t, IsAudioMIME("audio/wave; codecs=1"))
	require.False(t, IsAudioMIME("video/mp4"))
	require.False(t, IsAudioMIME(""))
}

func TestOpenDetectsTypeFromExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Voice.MP3")
	require.NoError(t, os.WriteFile(path, []byte("ID3 fake"), 0o644))

	sel, err := Open(path, "")
	require.NoError(t, err)
	require.Equal(t, "Voice.MP3", sel.Name)
	require.Equal(t, "audio/mpeg", sel.MIMEType)
	require.EqualValues(t, 8, sel.Size)
}

func TestOpenHonoursExplicitType(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x02}, 0o644))

	sel, err := Open(path, "audio/flac; rate=44100")
	require.NoError(t, err)
	require.Equal(t, "audio/flac", sel.MIMEType)
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "missing.wav"), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "audio file not found")
}

func TestFromUploadSniffsOctetStream(t *testing.T) {
	t.Parallel()

	sel, err := FromUpload("note.txt", "application/octet-stream", strings.NewReader("plain words here"), 1024)
	require.NoError(t, err)
	require.Equal(t, "text/plain", sel.MIMEType)
	require.False(t, IsAudioMIME(sel.MIMEType))
}

func TestFromUploadEnforcesLimit(t *testing.T) {
	t.Parallel()

	_, err := FromUpload("a.wav", "audio/wav", strings.NewReader("0123456789"), 4)
	require.Error(t, err)
}

func TestDetectMIMEType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{name: "extension wins", file: "Clip.MP3", data: []byte("%PDF-1.4"), want: "audio/mpeg"},
		{name: "sniffed wav", file: "clip.bin", data: []byte("RIFF\x24\x00\x00\x00WAVEfmt "), want: "audio/wave"},
		{name: "sniffed text drops charset", file: "notes", data: []byte("plain words"), want: "text/plain"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, DetectMIMEType(tt.file, tt.data))
		})
	}
}

func TestValidationKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "invalid_format", InvalidFormat.String())
	require.Equal(t, "file_too_large", FileTooLarge.String())
	require.Equal(t, "unknown", ValidationKind(0).String())
}
