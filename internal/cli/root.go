package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/fmueller/voxstudio/internal/clipboard"
	"github.com/fmueller/voxstudio/internal/config"
	"github.com/fmueller/voxstudio/internal/logging"
	"github.com/fmueller/voxstudio/internal/platform"
	"github.com/fmueller/voxstudio/internal/server"
	"github.com/fmueller/voxstudio/internal/speechapi"
	"github.com/fmueller/voxstudio/internal/version"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	logLevel   string
	noProgress bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time
	out    io.Writer

	loadConfigFn func(path string) (*config.Config, error)
	newAPIFn     func(cfg *config.Config) (server.SpeechAPI, error)
	copyFn       func(ctx context.Context, value string) error
	serveFn      func(ctx context.Context, srv *server.Server) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		now: time.Now,
		out: os.Stdout,
	}
	app.loadConfigFn = loadConfig
	app.newAPIFn = app.newSpeechClient
	app.copyFn = clipboard.CopyText
	app.serveFn = func(ctx context.Context, srv *server.Server) error {
		return srv.Run(ctx)
	}
	return newRootCmd(app)
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voxstudio",
		Short:         "Transcribe audio and synthesize speech through a remote speech API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return app.init()
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	cmd.PersistentFlags().StringVar(&app.configPath, "config", app.configPath, "Path to a YAML config file")

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newSynthesizeCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newOptionsCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.PersistentFlags().StringVar(&app.logLevel, "log-level", app.logLevel, "Log level (debug|info|warn|error); overrides --verbose")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func (a *appState) init() error {
	logger, err := logging.New(logging.Options{Verbose: a.verbose, JSON: a.jsonLogs, Level: a.logLevel})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger

	loadFn := a.loadConfigFn
	if loadFn == nil {
		loadFn = loadConfig
	}
	cfg, err := loadFn(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// loadConfig falls back to the per-user config file when no path is given
// and that file exists.
func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		if candidate, err := platform.ResolveConfigPath(); err == nil {
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
			} else if !errors.Is(statErr, fs.ErrNotExist) {
				return nil, fmt.Errorf("stat config %s: %w", candidate, statErr)
			}
		}
	}
	return config.Load(path)
}

func (a *appState) config() *config.Config {
	if a.cfg == nil {
		a.cfg = &config.Config{}
		a.cfg.API.TranscribeURL = speechapi.DefaultTranscribeURL
		a.cfg.API.SynthesizeURL = speechapi.DefaultSynthesizeURL
		a.cfg.Defaults.Language = string(speechapi.LanguageEnglish)
		a.cfg.Defaults.VoiceStyle = string(speechapi.VoiceNeutral)
		a.cfg.Defaults.SpeechSpeed = speechapi.DefaultSpeechSpeed
	}
	return a.cfg
}

func (a *appState) newSpeechClient(cfg *config.Config) (server.SpeechAPI, error) {
	client, err := speechapi.NewClient(speechapi.Options{
		TranscribeURL: cfg.API.TranscribeURL,
		SynthesizeURL: cfg.API.SynthesizeURL,
		Token:         cfg.API.Token,
		Timeout:       cfg.API.Timeout,
		UserAgent:     version.UserAgent(platform.CurrentRuntime().String()),
		// Commands show a spinner for the whole call instead of an upload bar.
		NoProgress: true,
		Logger:     a.log(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w; set VOXSTUDIO_API_TOKEN or api.token in the config file", err)
	}
	return client, nil
}

func (a *appState) speechAPI() (server.SpeechAPI, error) {
	newAPI := a.newAPIFn
	if newAPI == nil {
		newAPI = a.newSpeechClient
	}
	return newAPI(a.config())
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter(cmd *cobra.Command) io.Writer {
	if cmd != nil {
		return cmd.OutOrStdout()
	}
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func (a *appState) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}
