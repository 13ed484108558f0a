package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmueller/voxstudio/internal/audio"
	"github.com/fmueller/voxstudio/internal/flow"
	"github.com/fmueller/voxstudio/internal/platform"
	"github.com/fmueller/voxstudio/internal/playback"
	"github.com/fmueller/voxstudio/internal/speechapi"
	"github.com/fmueller/voxstudio/internal/textprep"
	"github.com/fmueller/voxstudio/internal/transfer"
)

type synthesizeOptions struct {
	voice          string
	speed          float64
	referenceAudio string
	referenceText  string
	output         string
	preprocess     bool
}

func newSynthesizeCmd(app *appState) *cobra.Command {
	var opts synthesizeOptions

	cmd := &cobra.Command{
		Use:   "synthesize [text]",
		Short: "Synthesize speech from text and write it to an audio file",
		Long: "Synthesize speech from text and write it to an audio file.\n\n" +
			"The text is read from standard input when it is omitted or given as \"-\".",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config()
			if !cmd.Flags().Changed("voice") {
				opts.voice = cfg.Defaults.VoiceStyle
			}
			if !cmd.Flags().Changed("speed") {
				opts.speed = cfg.Defaults.SpeechSpeed
			}

			text, err := readText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return app.runSynthesize(cmd, text, opts)
		},
	}

	cmd.Flags().StringVar(&opts.voice, "voice", string(speechapi.VoiceNeutral), "Voice style: "+voiceList())
	cmd.Flags().Float64Var(&opts.speed, "speed", speechapi.DefaultSpeechSpeed, "Speech speed between 0.5 and 2.0")
	cmd.Flags().StringVar(&opts.referenceAudio, "reference-audio", "", "Audio sample of the voice to clone (WAV, MP3, FLAC, OGG up to 10MB)")
	cmd.Flags().StringVar(&opts.referenceText, "reference-text", "", "Transcript of the reference audio")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (defaults to a timestamped file in the output directory)")
	cmd.Flags().BoolVar(&opts.preprocess, "preprocess", false, "Clean whitespace, spell out symbols and expand abbreviations first")
	return cmd
}

func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read text from stdin: %w", err)
	}
	return string(data), nil
}

func (a *appState) runSynthesize(cmd *cobra.Command, text string, opts synthesizeOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var reference *audio.Selection
	if strings.TrimSpace(opts.referenceAudio) != "" {
		sel, err := audio.Open(opts.referenceAudio, "")
		if err != nil {
			return err
		}
		reference = sel
	}

	api, err := a.speechAPI()
	if err != nil {
		return err
	}

	prep := textprep.Options{}
	if opts.preprocess {
		prep = textprep.All()
	}

	store := playback.NewStore()
	f := flow.NewSynthesis(api, store, flow.SynthesisOptions{
		StrictSelection: a.config().Intake.StrictSelection,
		Preprocess:      prep,
		Logger:          a.log(),
	})
	defer f.Release()

	if err := f.SetVoiceStyle(opts.voice); err != nil {
		return err
	}
	f.SetSpeechSpeed(opts.speed)
	f.SetText(text)
	f.SetReferenceText(opts.referenceText)
	if reference != nil && !f.SelectReferenceAudio(reference) {
		return errors.New(f.Snapshot().Error)
	}

	stopSpinner := startSpinner(a.progressEnabled(), "Generating speech")
	snap := f.Submit(ctx)
	stopSpinner()

	if snap.State != flow.StateSucceeded || snap.Audio == nil {
		return errors.New(snap.Error)
	}

	clip, ok := store.Open(snap.Audio.ID)
	if !ok {
		return errors.New("synthesized audio is no longer available")
	}

	destination, err := a.speechOutputPath(opts.output, clip.ContentType)
	if err != nil {
		return err
	}

	result, err := transfer.WriteFile(ctx, bytes.NewReader(clip.Data), transfer.Options{
		Destination: destination,
		Size:        clip.Size,
		NoProgress:  !a.progressEnabled(),
		Logger:      a.log(),
	})
	if err != nil {
		return fmt.Errorf("save synthesized audio: %w", err)
	}

	a.log().Info("speech saved",
		zap.String("path", result.Path),
		zap.String("size", humanize.IBytes(uint64(result.Bytes))),
		zap.String("sha256", result.SHA256),
	)
	fmt.Fprintln(a.outWriter(cmd), result.Path)
	return nil
}

func (a *appState) speechOutputPath(override, contentType string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return filepath.Clean(override), nil
	}

	dir, err := platform.ResolveOutputDir(a.config().Output.Dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("speech-%s%s", a.clock().Format("20060102-150405"), extensionFor(contentType))
	return filepath.Join(dir, name), nil
}

var contentTypeExtensions = map[string]string{
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/flac":  ".flac",
	"audio/ogg":   ".ogg",
	"audio/opus":  ".opus",
	"audio/aac":   ".aac",
}

func extensionFor(contentType string) string {
	base := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	if ext, ok := contentTypeExtensions[base]; ok {
		return ext
	}
	return ".wav"
}
