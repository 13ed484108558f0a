package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmueller/voxstudio/internal/audio"
	"github.com/fmueller/voxstudio/internal/clipboard"
	"github.com/fmueller/voxstudio/internal/flow"
	"github.com/fmueller/voxstudio/internal/speechapi"
)

type transcribeOptions struct {
	language string
	mimeType string
	copy     bool
}

func newTranscribeCmd(app *appState) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("language") {
				opts.language = app.config().Defaults.Language
			}
			return app.runTranscribe(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.language, "language", string(speechapi.LanguageEnglish), "Spoken language: "+languageList())
	cmd.Flags().StringVar(&opts.mimeType, "mime-type", "", "Override the detected audio MIME type")
	cmd.Flags().BoolVar(&opts.copy, "copy", false, "Copy transcript to clipboard")
	return cmd
}

func (a *appState) runTranscribe(cmd *cobra.Command, path string, opts transcribeOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sel, err := audio.Open(path, opts.mimeType)
	if err != nil {
		return err
	}

	api, err := a.speechAPI()
	if err != nil {
		return err
	}

	f := flow.NewTranscription(api, flow.TranscriptionOptions{
		StrictSelection: a.config().Intake.StrictSelection,
		Logger:          a.log(),
	})
	if err := f.SetLanguage(opts.language); err != nil {
		return err
	}
	if !f.SelectAudio(sel) {
		return errors.New(f.Snapshot().Error)
	}

	a.log().Info("transcribing...",
		zap.String("audio", sel.Name),
		zap.String("mime_type", sel.MIMEType),
		zap.String("size", humanize.IBytes(uint64(sel.Size))),
		zap.String("language", opts.language),
	)
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()
	snap := f.Submit(ctx)
	stopSpinner()

	if snap.State != flow.StateSucceeded {
		return errors.New(snap.Error)
	}
	a.log().Debug("transcription returned", zap.Duration("elapsed", time.Since(started)))

	fmt.Fprintln(a.outWriter(cmd), snap.Transcript)
	if !opts.copy {
		return nil
	}
	if snap.Transcript == flow.NoTranscriptText {
		a.log().Warn("no transcript returned; clipboard left unchanged")
		return nil
	}

	copyFn := a.copyFn
	if copyFn == nil {
		copyFn = clipboard.CopyText
	}
	if err := copyFn(ctx, snap.Transcript); err != nil {
		if errors.Is(err, clipboard.ErrUnavailable) {
			a.log().Warn("clipboard tool unavailable; transcript left on stdout")
			return nil
		}
		a.log().Warn("failed to copy transcript to clipboard; transcript left on stdout", zap.Error(err))
		return nil
	}

	a.log().Info("transcript copied to clipboard")
	return nil
}

func languageList() string {
	return speechapi.JoinValues(speechapi.Languages(), "|")
}

func voiceList() string {
	return speechapi.JoinValues(speechapi.VoiceStyles(), "|")
}
