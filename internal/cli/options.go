package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fmueller/voxstudio/internal/audio"
	"github.com/fmueller/voxstudio/internal/speechapi"
)

func newOptionsCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "List supported languages, voice styles and limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := app.outWriter(cmd)
			cfg := app.config()

			fmt.Fprintln(out, "Languages:")
			for _, lang := range speechapi.Languages() {
				fmt.Fprintf(out, "  %s%s\n", lang, defaultMarker(string(lang) == cfg.Defaults.Language))
			}
			fmt.Fprintln(out, "Voice styles:")
			for _, style := range speechapi.VoiceStyles() {
				fmt.Fprintf(out, "  %s%s\n", style, defaultMarker(string(style) == cfg.Defaults.VoiceStyle))
			}
			fmt.Fprintf(out, "Speech speed: %s to %s (default %s)\n",
				speechapi.FormatSpeed(speechapi.MinSpeechSpeed),
				speechapi.FormatSpeed(speechapi.MaxSpeechSpeed),
				speechapi.FormatSpeed(cfg.Defaults.SpeechSpeed),
			)
			fmt.Fprintf(out, "Reference audio: WAV, MP3, FLAC, OGG up to %s\n", humanize.IBytes(uint64(audio.MaxReferenceSize)))
			return nil
		},
	}
}

func defaultMarker(isDefault bool) string {
	if isDefault {
		return " (default)"
	}
	return ""
}
