// Package identifiers provides common validation for the human-readable
// names attached to kernel objects: process names and endpoint labels.
//
// Names must be alphanumeric, allowing limited underscores, dashes and
// dots, so that they are always safe to use as log fields, metric label
// values, and zosctl arguments.
package identifiers

import (
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/zeroos/zeroos/internal/lazyregexp"
)

const (
	maxLength  = 64
	alphanum   = `[A-Za-z0-9]+`
	separators = `[._-]`
)

var identifierRe = lazyregexp.New(reAnchor(alphanum + reGroup(separators+reGroup(alphanum)) + "*"))

// Validate returns nil if s is a valid process or endpoint name.
func Validate(s string) error {
	if len(s) == 0 {
		return fmt.Errorf("identifier must not be empty: %w", errdefs.ErrInvalidArgument)
	}
	if len(s) > maxLength {
		return fmt.Errorf("identifier %q greater than maximum length (%d characters): %w", s, maxLength, errdefs.ErrInvalidArgument)
	}
	if !identifierRe.MatchString(s) {
		return fmt.Errorf("identifier %q must match %v: %w", s, identifierRe, errdefs.ErrInvalidArgument)
	}
	return nil
}

func reGroup(s string) string {
	return `(?:` + s + `)`
}

func reAnchor(s string) string {
	return `^` + s + `$`
}
