package events

import (
	"errors"
	"fmt"
)

var errUnterminatedClass = errors.New("unterminated character class")

// ValidatePattern checks that every `[` class in pattern is closed.
func ValidatePattern(pattern string) error {
	p := []rune(pattern)
	for i := 0; i < len(p); i++ {
		if p[i] != '[' {
			continue
		}
		end := classEnd(p, i)
		if end < 0 {
			return fmt.Errorf("%w at offset %d", errUnterminatedClass, i)
		}
		i = end
	}
	return nil
}

// MatchPattern applies shell-glob matching to the whole of name: `*` matches any run of
// characters (dots and slashes included), `?` matches one character and `[...]` matches one
// character from a class (`[!...]` or `[^...]` negates).
func MatchPattern(pattern, name string) (bool, error) {
	if err := ValidatePattern(pattern); err != nil {
		return false, err
	}
	return matchGlob([]rune(pattern), []rune(name)), nil
}

func matchGlob(p, s []rune) bool {
	pi, si := 0, 0
	starP, starS := -1, 0
	for si < len(s) {
		if pi < len(p) {
			switch p[pi] {
			case '*':
				starP, starS = pi, si
				pi++
				continue
			case '?':
				pi++
				si++
				continue
			case '[':
				if end := classEnd(p, pi); matchClass(p[pi+1:end], s[si]) {
					pi = end + 1
					si++
					continue
				}
			default:
				if p[pi] == s[si] {
					pi++
					si++
					continue
				}
			}
		}
		if starP < 0 {
			return false
		}
		// let the last star swallow one more character and retry
		starS++
		pi, si = starP+1, starS
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// classEnd returns the index of the `]` closing the class opened at start, or -1. A `]`
// right after the opening bracket (or its negation) is a literal.
func classEnd(p []rune, start int) int {
	i := start + 1
	if i < len(p) && (p[i] == '!' || p[i] == '^') {
		i++
	}
	if i < len(p) && p[i] == ']' {
		i++
	}
	for ; i < len(p); i++ {
		if p[i] == ']' {
			return i
		}
	}
	return -1
}

func matchClass(body []rune, c rune) bool {
	negate := false
	if len(body) > 0 && (body[0] == '!' || body[0] == '^') {
		negate = true
		body = body[1:]
	}
	matched := false
	for i := 0; i < len(body); {
		lo, hi := body[i], body[i]
		if i+2 < len(body) && body[i+1] == '-' {
			hi = body[i+2]
			i += 3
		} else {
			i++
		}
		if lo <= c && c <= hi {
			matched = true
		}
	}
	return matched != negate
}
