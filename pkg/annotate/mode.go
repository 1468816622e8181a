package annotate

import "github.com/matzehuels/marginalia/pkg/errors"

// Mode is the presentation of annotations.
type Mode string

const (
	// ModeRail positions annotations in the side rail.
	ModeRail Mode = "rail"
	// ModeInline injects annotations into the reading flow.
	ModeInline Mode = "inline"
)

// ModeFor returns the mode for a viewport width: the rail from the
// breakpoint up, inline below it.
func ModeFor(width, breakpoint float64) Mode {
	if width >= breakpoint {
		return ModeRail
	}
	return ModeInline
}

// ParseMode parses a mode name. The empty string means "follow the viewport"
// and is returned as is.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRail, ModeInline:
		return Mode(s), nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "unknown mode %q (want rail or inline)", s)
}
