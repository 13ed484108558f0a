package audio

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Selection is an audio file picked by the user for one of the flows.
type Selection struct {
	Name     string
	MIMEType string
	Size     int64
	Data     []byte
}

var extensionTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".aac":  "audio/aac",
}

// Open reads path into a Selection. An empty mimeType is detected from the
// file extension, falling back to content sniffing.
func Open(path, mimeType string) (*Selection, error) {
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	if strings.TrimSpace(mimeType) == "" {
		mimeType = DetectMIMEType(path, data)
	}

	return &Selection{
		Name:     filepath.Base(path),
		MIMEType: normalizeMIME(mimeType),
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

// FromUpload builds a Selection from an uploaded multipart part. The
// declared content type wins over detection, matching what a browser
// reports for a picked file.
func FromUpload(name, declaredType string, r io.Reader, limit int64) (*Selection, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("upload exceeds %d bytes", limit)
	}

	mimeType := declaredType
	if strings.TrimSpace(mimeType) == "" || mimeType == "application/octet-stream" {
		mimeType = DetectMIMEType(name, data)
	}

	return &Selection{
		Name:     filepath.Base(name),
		MIMEType: normalizeMIME(mimeType),
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

// DetectMIMEType prefers the file extension and falls back to content sniffing.
func DetectMIMEType(name string, data []byte) string {
	if mimeType, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mimeType
	}
	return normalizeMIME(http.DetectContentType(data))
}

// IsAudioMIME reports whether mimeType belongs to the audio/ family.
func IsAudioMIME(mimeType string) bool {
	return strings.HasPrefix(normalizeMIME(mimeType), "audio/")
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}
