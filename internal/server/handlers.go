package server

import (
	_ "embed"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fmueller/voxstudio/internal/audio"
	"github.com/fmueller/voxstudio/internal/flow"
	"github.com/fmueller/voxstudio/internal/speechapi"
	"github.com/fmueller/voxstudio/internal/textprep"
)

//go:embed web/index.html
var indexHTML []byte

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.opts.Version})
}

type speedRange struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

type optionsBody struct {
	Languages         []speechapi.Language   `json:"languages"`
	VoiceStyles       []speechapi.VoiceStyle `json:"voiceStyles"`
	SpeechSpeed       speedRange             `json:"speechSpeed"`
	MaxReferenceBytes int64                  `json:"maxReferenceBytes"`
	StrictSelection   bool                   `json:"strictSelection"`
}

func (s *Server) handleOptions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, optionsBody{
		Languages:   speechapi.Languages(),
		VoiceStyles: speechapi.VoiceStyles(),
		SpeechSpeed: speedRange{
			Min:     speechapi.MinSpeechSpeed,
			Max:     speechapi.MaxSpeechSpeed,
			Default: speechapi.DefaultSpeechSpeed,
		},
		MaxReferenceBytes: audio.MaxReferenceSize,
		StrictSelection:   s.opts.StrictSelection,
	})
}

func (s *Server) handleTranscriptionState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionFrom(r.Context()).transcription.Snapshot())
}

type transcriptionBody struct {
	Language string `json:"language"`
}

func (s *Server) handleTranscriptionSubmit(w http.ResponseWriter, r *http.Request) {
	var body transcriptionBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f := sessionFrom(r.Context()).transcription
	if body.Language != "" {
		if err := f.SetLanguage(body.Language); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	respondJSON(w, http.StatusOK, f.Submit(r.Context()))
}

func (s *Server) handleTranscriptionAudio(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.readUpload(w, r, "audio")
	if !ok {
		return
	}

	f := sessionFrom(r.Context()).transcription
	status := http.StatusOK
	if !f.SelectAudio(sel) {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, f.Snapshot())
}

func (s *Server) handleSynthesisState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionFrom(r.Context()).synthesis.Snapshot())
}

type synthesisBody struct {
	Text          string   `json:"text"`
	VoiceType     string   `json:"voice_type"`
	SpeechSpeed   *float64 `json:"speech_speed"`
	ReferenceText *string  `json:"reference_text"`
	Preprocess    bool     `json:"preprocess"`
}

func (s *Server) handleSynthesisSubmit(w http.ResponseWriter, r *http.Request) {
	var body synthesisBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := flow.SynthesisInput{
		Text:          body.Text,
		VoiceStyle:    body.VoiceType,
		SpeechSpeed:   body.SpeechSpeed,
		ReferenceText: body.ReferenceText,
	}
	if body.Preprocess {
		in.Preprocess = textprep.All()
	}

	snap, err := sessionFrom(r.Context()).synthesis.SubmitWith(r.Context(), in)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReferenceAudio(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.readUpload(w, r, "reference_audio")
	if !ok {
		return
	}

	f := sessionFrom(r.Context()).synthesis
	status := http.StatusOK
	if !f.SelectReferenceAudio(sel) {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, f.Snapshot())
}

func (s *Server) handleReferenceClear(w http.ResponseWriter, r *http.Request) {
	f := sessionFrom(r.Context()).synthesis
	f.ClearReference()
	respondJSON(w, http.StatusOK, f.Snapshot())
}

// handleAudio serves only the clip currently held by the caller's session.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	current := sessionFrom(r.Context()).synthesis.Snapshot().Audio
	if current == nil || current.ID != id {
		respondError(w, http.StatusNotFound, "audio not found")
		return
	}

	clip, ok := s.store.Open(id)
	if !ok {
		respondError(w, http.StatusNotFound, "audio not found")
		return
	}

	w.Header().Set("Content-Type", clip.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(clip.Data)
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string) (*audio.Selection, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return nil, false
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(field)
	if err != nil {
		respondError(w, http.StatusBadRequest, field+" file is required")
		return nil, false
	}
	defer file.Close()

	if header.Size > s.opts.MaxUploadBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return nil, false
	}

	sel, err := audio.FromUpload(header.Filename, header.Header.Get("Content-Type"), file, s.opts.MaxUploadBytes)
	if err != nil {
		s.logger.Warn("upload rejected", zap.String("field", field), zap.Error(err))
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return nil, false
	}
	return sel, true
}
