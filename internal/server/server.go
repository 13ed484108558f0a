// Package server exposes the transcription and synthesis flows over HTTP,
// one pair of flows per browser session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fmueller/voxstudio/internal/flow"
	"github.com/fmueller/voxstudio/internal/playback"
	"github.com/fmueller/voxstudio/internal/speechapi"
)

const (
	defaultSessionTTL     = 30 * time.Minute
	defaultMaxUploadBytes = 32 << 20
	shutdownTimeout       = 10 * time.Second
)

// SpeechAPI is the remote service both flows delegate to.
type SpeechAPI interface {
	flow.Transcriber
	flow.Synthesizer
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	// RateLimit is the number of /api requests allowed per client IP and
	// minute. Zero disables limiting.
	RateLimit       int
	SessionTTL      time.Duration
	MaxUploadBytes  int64
	StrictSelection bool
	Language        speechapi.Language
	VoiceStyle      speechapi.VoiceStyle
	SpeechSpeed     float64
	Version         string
	Logger          *zap.Logger
}

type Server struct {
	opts     Options
	api      SpeechAPI
	store    *playback.Store
	sessions *sessionStore
	logger   *zap.Logger
	handler  http.Handler
}

func New(api SpeechAPI, opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		opts:   opts,
		api:    api,
		store:  playback.NewStore(),
		logger: opts.Logger,
	}
	s.sessions = newSessionStore(opts.SessionTTL, s.newSession, opts.Logger)
	s.handler = s.routes()
	return s
}

func (s *Server) newSession(id string) *session {
	logger := s.logger.With(zap.String("session", id))
	return &session{
		id: id,
		transcription: flow.NewTranscription(s.api, flow.TranscriptionOptions{
			Language:        s.opts.Language,
			StrictSelection: s.opts.StrictSelection,
			Logger:          logger,
		}),
		synthesis: flow.NewSynthesis(s.api, s.store, flow.SynthesisOptions{
			VoiceStyle:      s.opts.VoiceStyle,
			SpeechSpeed:     s.opts.SpeechSpeed,
			StrictSelection: s.opts.StrictSelection,
			Logger:          logger,
		}),
	}
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		if s.opts.RateLimit > 0 {
			api.Use(httprate.LimitByIP(s.opts.RateLimit, time.Minute))
		}
		api.Get("/options", s.handleOptions)

		api.Group(func(sr chi.Router) {
			sr.Use(s.sessions.middleware)

			sr.Get("/transcription", s.handleTranscriptionState)
			sr.Post("/transcription", s.handleTranscriptionSubmit)
			sr.Post("/transcription/audio", s.handleTranscriptionAudio)

			sr.Get("/synthesis", s.handleSynthesisState)
			sr.Post("/synthesis", s.handleSynthesisSubmit)
			sr.Post("/synthesis/reference", s.handleReferenceAudio)
			sr.Delete("/synthesis/reference", s.handleReferenceClear)

			sr.Get("/audio/{id}", s.handleAudio)
		})
	})

	return r
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.opts.Addr
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and evicts idle sessions in the
// background. Cancelling ctx shuts the server down gracefully and revokes
// every remaining playback handle.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(janitorInterval(s.opts.SessionTTL))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.sessions.evictIdle()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		s.sessions.releaseAll()
		s.logger.Info("server stopped")
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		return time.Second
	}
	if interval > 5*time.Minute {
		return 5 * time.Minute
	}
	return interval
}
