// Package lazyregexp provides a lazily-compiled regexp that defers the cost
// of compilation to the first use, so packages that declare package-level
// patterns don't pay for regexp compilation at program startup unless they
// actually use it.
package lazyregexp

import (
	"regexp"
	"sync"
)

// Regexp wraps a *regexp.Regexp, compiling it on first use.
type Regexp struct {
	str  string
	once sync.Once
	rx   *regexp.Regexp
}

// New returns a lazily-compiled regexp for str. It panics on first use if
// str is not a valid pattern.
func New(str string) *Regexp {
	return &Regexp{str: str}
}

func (r *Regexp) re() *regexp.Regexp {
	r.once.Do(func() {
		r.rx = regexp.MustCompile(r.str)
	})
	return r.rx
}

// MatchString reports whether s contains a match of the regular expression.
func (r *Regexp) MatchString(s string) bool {
	return r.re().MatchString(s)
}

// String returns the source text used to compile the regular expression.
func (r *Regexp) String() string {
	return r.str
}
