package transcribe

import (
	"fmt"
	"strings"

	"github.com/snarg/scribe-engine/internal/database"
)

// Transcript output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// UnknownFormatError reports an unrecognized transcript format request.
type UnknownFormatError struct {
	Mode string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown transcript format %q (want %s or %s)", e.Mode, FormatText, FormatJSON)
}

// Text renders segments as one attributed line per turn:
//
//	[12.50-14.20] SPEAKER_00: hello there
//
// Segments must already be in start-time order.
func Text(segments []database.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "[%.2f-%.2f] %s: %s\n", s.StartTime, s.EndTime, s.Speaker, s.Text)
	}
	return b.String()
}

// ValidateFormat normalizes a requested format, defaulting empty to text.
func ValidateFormat(mode string) (string, error) {
	switch mode {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", &UnknownFormatError{Mode: mode}
	}
}
