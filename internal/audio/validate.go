package audio

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// MaxReferenceSize is the largest reference sample accepted for cloning.
const MaxReferenceSize int64 = 10 * 1024 * 1024

var allowedTypes = map[string]struct{}{
	"audio/wav":  {},
	"audio/mp3":  {},
	"audio/mpeg": {},
	"audio/flac": {},
	"audio/ogg":  {},
}

// ValidationKind classifies why a selection failed validation.
type ValidationKind int

const (
	InvalidFormat ValidationKind = iota + 1
	FileTooLarge
)

func (k ValidationKind) String() string {
	switch k {
	case InvalidFormat:
		return "invalid_format"
	case FileTooLarge:
		return "file_too_large"
	default:
		return "unknown"
	}
}

// ValidationError is a local rejection that never reaches the network.
// Message is the text shown to the user.
type ValidationError struct {
	Kind    ValidationKind
	Message string
	Detail  string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate applies the strict allow-list and size limit to sel.
func Validate(sel *Selection) error {
	if sel == nil {
		return nil
	}

	if _, ok := allowedTypes[normalizeMIME(sel.MIMEType)]; !ok {
		return &ValidationError{
			Kind:    InvalidFormat,
			Message: "Please select a valid audio file (WAV, MP3, FLAC, OGG)",
			Detail:  fmt.Sprintf("%s has type %q", sel.Name, sel.MIMEType),
		}
	}

	if sel.Size > MaxReferenceSize {
		return &ValidationError{
			Kind:    FileTooLarge,
			Message: "Audio file is too large. Please select a file smaller than 10MB",
			Detail: fmt.Sprintf("%s is %s, limit is %s", sel.Name,
				humanize.IBytes(uint64(sel.Size)), humanize.IBytes(uint64(MaxReferenceSize))),
		}
	}

	return nil
}
