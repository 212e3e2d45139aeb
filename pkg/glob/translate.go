// Package glob matches shell patterns against the virtual filesystem.
//
// Patterns support "?", "*", bracket expressions ("[abc]", "[a-z]",
// "[!abc]") and, in recursive mode, "**" as a whole segment matching zero
// or more directories. Wildcards never match the separator and never match
// a leading "." of a name: hidden entries are only found by segments that
// start with a literal ".".
//
// A pattern is parsed into segments of tokens and compiled into a single
// regexp2 expression, since the standard regexp package has no look-ahead.
package glob

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/marmos91/objfs/pkg/fspath"
)

const magicChars = "*?["

type tokenKind uint8

const (
	tokLiteral tokenKind = iota
	tokAny               // ?
	tokStar              // *
	tokClass             // [...]
)

type token struct {
	kind   tokenKind
	text   string // literal text or class body
	negate bool
}

type segment struct {
	tokens   []token
	globstar bool
}

// hidden reports whether the segment may match names starting with ".".
func (s *segment) hidden() bool {
	return len(s.tokens) > 0 && s.tokens[0].kind == tokLiteral && strings.HasPrefix(s.tokens[0].text, ".")
}

type pattern struct {
	abs      bool
	dirOnly  bool
	segments []segment
}

func (p *pattern) hasGlobstar() bool {
	for i := range p.segments {
		if p.segments[i].globstar {
			return true
		}
	}
	return false
}

// HasMagic reports whether p contains a wildcard.
func HasMagic(p string) bool {
	return strings.ContainsAny(p, magicChars)
}

// Escape quotes every wildcard of p so that it matches literally.
func Escape(p string) string {
	var b strings.Builder
	for _, r := range p {
		if strings.ContainsRune(magicChars, r) {
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parse(pat string, recursive bool) *pattern {
	p := &pattern{
		abs:     fspath.IsAbs(pat),
		dirOnly: fspath.IsDirPath(pat) && pat != fspath.Root,
	}
	body := strings.Trim(pat, fspath.Separator)
	if body == "" {
		return p
	}
	for _, s := range strings.Split(body, fspath.Separator) {
		if s == "" {
			continue
		}
		if recursive && s == "**" {
			// consecutive globstars are one
			if n := len(p.segments); n > 0 && p.segments[n-1].globstar {
				continue
			}
			p.segments = append(p.segments, segment{globstar: true})
			continue
		}
		p.segments = append(p.segments, segment{tokens: parseSegment(s)})
	}
	return p
}

func parseSegment(s string) []token {
	var (
		out []token
		lit strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, token{kind: tokLiteral, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '?':
			flush()
			out = append(out, token{kind: tokAny})
		case '*':
			flush()
			// runs of stars are one
			if n := len(out); n == 0 || out[n-1].kind != tokStar {
				out = append(out, token{kind: tokStar})
			}
		case '[':
			tok, n, ok := parseClass(s[i:])
			if !ok {
				lit.WriteByte(c)
				continue
			}
			flush()
			out = append(out, tok)
			i += n - 1
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return out
}

// parseClass parses a bracket expression at the start of s and returns the
// number of bytes it spans. An unterminated bracket is not a class.
func parseClass(s string) (token, int, bool) {
	i := 1
	tok := token{kind: tokClass}
	if i < len(s) && s[i] == '!' {
		tok.negate = true
		i++
	}
	start := i
	// a "]" right after the opening bracket is a member
	if i < len(s) && s[i] == ']' {
		i++
	}
	for i < len(s) && s[i] != ']' {
		i++
	}
	if i >= len(s) {
		return token{}, 0, false
	}
	tok.text = s[start:i]
	return tok, i + 1, true
}

func (p *pattern) regex() string {
	var b strings.Builder
	b.WriteString(`\A`)
	if p.abs {
		b.WriteString("/")
	}
	for i := range p.segments {
		seg := &p.segments[i]
		last := i == len(p.segments)-1

		if seg.globstar {
			if last {
				b.WriteString(`(?:(?!\.)[^/]+(?:/(?!\.)[^/]+)*)?`)
			} else {
				b.WriteString(`(?:(?!\.)[^/]+/)*`)
			}
			continue
		}

		if !seg.hidden() {
			b.WriteString(`(?!\.)`)
		}
		for _, t := range seg.tokens {
			b.WriteString(t.regex())
		}
		if !last {
			b.WriteString("/")
		}
	}
	b.WriteString(`\z`)
	return b.String()
}

func (t token) regex() string {
	switch t.kind {
	case tokAny:
		return `[^/]`
	case tokStar:
		return `[^/]*`
	case tokClass:
		var b strings.Builder
		b.WriteByte('[')
		if t.negate {
			b.WriteString(`^/`)
		} else if strings.HasPrefix(t.text, "^") {
			b.WriteByte('\\')
		}
		for _, r := range t.text {
			if r == '\\' || r == '[' || r == ']' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte(']')
		return b.String()
	default:
		return regexp2.Escape(t.text)
	}
}

// Translate returns the regular expression equivalent to pat. The
// expression matches paths written the way pat is (absolute or relative)
// without a trailing separator. With recursive, a "**" segment matches any
// number of directories.
func Translate(pat string, recursive bool) string {
	return parse(pat, recursive).regex()
}

// Compile translates pat and compiles the expression.
func Compile(pat string, recursive bool) (*regexp2.Regexp, error) {
	return regexp2.Compile(Translate(pat, recursive), regexp2.None)
}
