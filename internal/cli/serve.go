package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmueller/voxstudio/internal/server"
	"github.com/fmueller/voxstudio/internal/speechapi"
	"github.com/fmueller/voxstudio/internal/version"
)

func newServeCmd(app *appState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web interface and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := app.buildServer(addr)
			if err != nil {
				return err
			}

			serveFn := app.serveFn
			if serveFn == nil {
				serveFn = func(ctx context.Context, srv *server.Server) error { return srv.Run(ctx) }
			}
			return serveFn(ctx, srv)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr from the config)")
	return cmd
}

func (a *appState) buildServer(addr string) (*server.Server, error) {
	api, err := a.speechAPI()
	if err != nil {
		return nil, err
	}

	cfg := a.config()
	if addr == "" {
		addr = cfg.Server.Addr
	}

	// Config values were validated on load, so parse errors cannot occur here.
	language, _ := speechapi.ParseLanguage(cfg.Defaults.Language)
	voice, _ := speechapi.ParseVoiceStyle(cfg.Defaults.VoiceStyle)

	a.log().Info("starting server",
		zap.String("addr", addr),
		zap.Bool("strict_selection", cfg.Intake.StrictSelection),
		zap.Duration("session_ttl", cfg.Server.SessionTTL),
	)

	return server.New(api, server.Options{
		Addr:            addr,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimit:       cfg.Server.RateLimit,
		SessionTTL:      cfg.Server.SessionTTL,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		StrictSelection: cfg.Intake.StrictSelection,
		Language:        language,
		VoiceStyle:      voice,
		SpeechSpeed:     cfg.Defaults.SpeechSpeed,
		Version:         version.Resolve(),
		Logger:          a.log(),
	}), nil
}
