package msgroute

import (
	"cmp"
	"maps"
	"strings"

	"github.com/tidwall/match"
)

// IsPattern reports whether s contains pattern syntax: "*", "?" or "{".
// Destinations without any of them are literal.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?{")
}

type segmentKind int

const (
	segLiteral segmentKind = iota
	segVar
	segGlob
	segDoubleWildcard
)

type segment struct {
	kind segmentKind
	text string
}

// pathPattern is a compiled destination pattern. Segments are separated by
// sep; "{name}" captures one whole segment, "*" and "?" glob within a
// segment and "**" spans any number of segments.
type pathPattern struct {
	raw       string
	sep       string
	segs      []segment
	vars      int
	wildcards int
	doubles   int
	length    int
}

func compilePattern(raw, sep string) *pathPattern {
	p := &pathPattern{raw: raw, sep: sep}
	for _, part := range strings.Split(raw, sep) {
		switch {
		case part == "**":
			p.segs = append(p.segs, segment{kind: segDoubleWildcard})
			p.doubles++
			p.length += len(part)
		case len(part) > 2 && part[0] == '{' && part[len(part)-1] == '}':
			p.segs = append(p.segs, segment{kind: segVar, text: part[1 : len(part)-1]})
			p.vars++
			p.length++
		case strings.ContainsAny(part, "*?"):
			p.segs = append(p.segs, segment{kind: segGlob, text: part})
			p.wildcards += strings.Count(part, "*") + strings.Count(part, "?")
			p.length += len(part)
		default:
			p.segs = append(p.segs, segment{kind: segLiteral, text: part})
			p.length += len(part)
		}
	}
	p.length += len(p.segs) - 1
	return p
}

// match reports whether dest matches the pattern, returning the captured
// template variables.
func (p *pathPattern) match(dest string) (DestinationVars, bool) {
	vars := DestinationVars{}
	if !matchSegments(p.segs, strings.Split(dest, p.sep), vars) {
		return nil, false
	}
	return vars, true
}

func matchSegments(segs []segment, parts []string, vars DestinationVars) bool {
	for len(segs) > 0 {
		s := segs[0]
		if s.kind == segDoubleWildcard {
			for i := 0; i <= len(parts); i++ {
				try := maps.Clone(vars)
				if matchSegments(segs[1:], parts[i:], try) {
					maps.Copy(vars, try)
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		part := parts[0]
		switch s.kind {
		case segLiteral:
			if part != s.text {
				return false
			}
		case segVar:
			if part == "" {
				return false
			}
			vars[s.text] = part
		case segGlob:
			if !match.Match(part, s.text) {
				return false
			}
		}
		segs, parts = segs[1:], parts[1:]
	}
	return len(parts) == 0
}

func (p *pathPattern) catchAll() bool {
	return len(p.segs) > 0 && p.doubles == 1 && p.vars == 0 && p.wildcards == 0 &&
		p.segs[len(p.segs)-1].kind == segDoubleWildcard && strings.Trim(p.raw, p.sep+"*") == ""
}

// comparePatterns orders two patterns that both match dest from most to
// least specific: an exact match first, catch-all patterns last, then by
// fewer variables and wildcards, longer pattern, fewer single wildcards and
// fewer variables.
func comparePatterns(a, b *pathPattern, dest string) int {
	if ae, be := a.raw == dest, b.raw == dest; ae != be {
		if ae {
			return -1
		}
		return 1
	}
	if ac, bc := a.catchAll(), b.catchAll(); ac != bc {
		if ac {
			return 1
		}
		return -1
	}
	if c := cmp.Compare(a.vars+a.wildcards+2*a.doubles, b.vars+b.wildcards+2*b.doubles); c != 0 {
		return c
	}
	if c := cmp.Compare(b.length, a.length); c != 0 {
		return c
	}
	if c := cmp.Compare(a.wildcards, b.wildcards); c != 0 {
		return c
	}
	return cmp.Compare(a.vars, b.vars)
}
