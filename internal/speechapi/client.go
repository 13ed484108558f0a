package speechapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/fmueller/voxstudio/internal/audio"
	"github.com/fmueller/voxstudio/internal/transfer"
)

const (
	DefaultTranscribeURL = "https://api.fish.audio/v1/asr"
	DefaultSynthesizeURL = "https://api.fish.audio/v1/tts"
)

type Options struct {
	TranscribeURL string
	SynthesizeURL string
	Token         string
	// Timeout bounds a single call. Zero leaves calls unbounded.
	Timeout    time.Duration
	UserAgent  string
	NoProgress bool
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the remote ASR and TTS endpoints. It is safe for
// concurrent use.
type Client struct {
	transcribeURL string
	synthesizeURL string
	token         string
	timeout       time.Duration
	userAgent     string
	noProgress    bool
	http          *http.Client
	logger        *zap.Logger
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("api token is required")
	}

	if opts.TranscribeURL == "" {
		opts.TranscribeURL = DefaultTranscribeURL
	}
	if opts.SynthesizeURL == "" {
		opts.SynthesizeURL = DefaultSynthesizeURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "voxstudio/1"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		transcribeURL: opts.TranscribeURL,
		synthesizeURL: opts.SynthesizeURL,
		token:         strings.TrimSpace(opts.Token),
		timeout:       opts.Timeout,
		userAgent:     opts.UserAgent,
		noProgress:    opts.NoProgress,
		http:          opts.HTTPClient,
		logger:        opts.Logger,
	}, nil
}

// Transcribe posts the audio and language. Non-2xx bodies are not read for
// detail.
func (c *Client) Transcribe(ctx context.Context, req TranscriptionRequest) (TranscriptionResult, error) {
	if req.Audio == nil {
		return TranscriptionResult{}, errors.New("audio is required")
	}

	body, contentType, err := BuildTranscriptionForm(req)
	if err != nil {
		return TranscriptionResult{}, err
	}

	c.logger.Debug("posting transcription request",
		zap.String("audio", req.Audio.Name),
		zap.String("mime_type", req.Audio.MIMEType),
		zap.String("size", humanize.IBytes(uint64(req.Audio.Size))),
		zap.String("language", string(req.Language)),
	)

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.post(ctx, c.transcribeURL, body, contentType, "uploading")
	if err != nil {
		return TranscriptionResult{}, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return TranscriptionResult{}, &RemoteError{Endpoint: "transcribe", StatusCode: resp.StatusCode}
	}

	var payload struct {
		Transcript *string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return TranscriptionResult{}, &DecodeError{Err: err}
	}

	if payload.Transcript == nil || strings.TrimSpace(*payload.Transcript) == "" {
		return TranscriptionResult{}, nil
	}
	return TranscriptionResult{Transcript: *payload.Transcript, HasTranscript: true}, nil
}

// Synthesize posts the synthesis form and returns the raw audio body.
// Non-2xx bodies are searched for an "error" field.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) (SynthesisResult, error) {
	body, contentType, err := BuildSynthesisForm(req)
	if err != nil {
		return SynthesisResult{}, err
	}

	fields := []zap.Field{
		zap.String("voice_type", string(req.VoiceStyle)),
		zap.Float64("speech_speed", req.SpeechSpeed),
		zap.Int("text_chars", len([]rune(req.Text))),
		zap.Bool("reference_audio", req.ReferenceAudio != nil),
	}
	c.logger.Debug("posting synthesis request", fields...)

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.post(ctx, c.synthesizeURL, body, contentType, "uploading")
	if err != nil {
		return SynthesisResult{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return SynthesisResult{}, &TransportError{Err: fmt.Errorf("read response body: %w", err)}
	}

	if !isSuccess(resp.StatusCode) {
		return SynthesisResult{}, &RemoteError{
			Endpoint:   "synthesize",
			StatusCode: resp.StatusCode,
			Detail:     extractErrorDetail(data),
		}
	}

	c.logger.Debug("synthesis response received",
		zap.String("size", humanize.IBytes(uint64(len(data)))),
		zap.String("content_type", resp.Header.Get("Content-Type")),
	)

	return SynthesisResult{Audio: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) post(ctx context.Context, url string, body *bytes.Buffer, contentType, description string) (*http.Response, error) {
	size := int64(body.Len())
	reader, finish := transfer.NewProgressReader(body, size, description, c.noProgress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		finish()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)

	started := time.Now()
	resp, err := c.http.Do(req)
	finish()
	if err != nil {
		c.logger.Debug("request failed", zap.String("url", url), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return nil, &TransportError{Err: err}
	}

	c.logger.Debug("response received", zap.String("url", url), zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(started)))
	return resp, nil
}

// BuildTranscriptionForm encodes the ASR multipart body.
func BuildTranscriptionForm(req TranscriptionRequest) (*bytes.Buffer, string, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	if err := writeFilePart(writer, "audio", req.Audio); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("language", string(req.Language)); err != nil {
		return nil, "", fmt.Errorf("write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// BuildSynthesisForm encodes the TTS multipart body. reference_audio is
// only present with a file, reference_text only when non-blank.
func BuildSynthesisForm(req SynthesisRequest) (*bytes.Buffer, string, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	fields := [][2]string{
		{"text", req.Text},
		{"voice_type", string(req.VoiceStyle)},
		{"speech_speed", FormatSpeed(req.SpeechSpeed)},
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", field[0], err)
		}
	}

	if req.ReferenceAudio != nil {
		if err := writeFilePart(writer, "reference_audio", req.ReferenceAudio); err != nil {
			return nil, "", err
		}
	}

	if strings.TrimSpace(req.ReferenceText) != "" {
		if err := writer.WriteField("reference_text", req.ReferenceText); err != nil {
			return nil, "", fmt.Errorf("write reference_text field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// FormatSpeed renders speed as the shortest decimal text, e.g. "1" or "1.25".
func FormatSpeed(speed float64) string {
	return strconv.FormatFloat(speed, 'f', -1, 64)
}

func writeFilePart(writer *multipart.Writer, field string, sel *audio.Selection) error {
	if sel == nil {
		return fmt.Errorf("%s: audio selection is nil", field)
	}

	contentType := sel.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, escapeQuotes(sel.Name)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := part.Write(sel.Data); err != nil {
		return fmt.Errorf("write %s part: %w", field, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func extractErrorDetail(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
