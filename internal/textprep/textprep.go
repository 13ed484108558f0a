package textprep

import (
	"regexp"
	"strings"
)

type Options struct {
	CleanWhitespace     bool
	NormalizeSymbols    bool
	ExpandAbbreviations bool
}

// All enables every step.
func All() Options {
	return Options{CleanWhitespace: true, NormalizeSymbols: true, ExpandAbbreviations: true}
}

func (o Options) Enabled() bool {
	return o.CleanWhitespace || o.NormalizeSymbols || o.ExpandAbbreviations
}

var whitespaceRun = regexp.MustCompile(`\s+`)

var symbolReplacer = strings.NewReplacer("&", "and", "@", "at")

var abbreviationReplacer = strings.NewReplacer(
	"Dr.", "Doctor",
	"Mr.", "Mister",
	"Mrs.", "Misses",
)

// Apply runs the enabled steps in a fixed order: whitespace, symbols,
// abbreviations.
func Apply(text string, opts Options) string {
	if opts.CleanWhitespace {
		text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	}
	if opts.NormalizeSymbols {
		text = symbolReplacer.Replace(text)
	}
	if opts.ExpandAbbreviations {
		text = abbreviationReplacer.Replace(text)
	}
	return text
}
