package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/coverage-cache/internal/core/model"
)

const prefix = "cov:v1"

// Key builds the canonical cache key for a lookup. Logically identical
// lookups map to the same key regardless of medium order or float formatting.
func Key(l model.Lookup) string {
	canon := Canonical(l)

	addrSafe := sanitizeForKey(model.CollapseSpace(l.Address))
	const maxAddrLen = 96
	if len(addrSafe) > maxAddrLen {
		addrSafe = addrSafe[:maxAddrLen]
	}

	loc := "-"
	if l.Point != nil {
		loc = l.Point.String()
	}

	sum := xxhash.Sum64String(canon)
	return fmt.Sprintf("%s:pt=%s:addr=%s:m=%s:f=%016x",
		prefix, loc, addrSafe, strings.Join(model.NormalizeMediums(l.Mediums), ","), sum)
}

// Canonical returns the full normalized text the key hash is computed over.
func Canonical(l model.Lookup) string {
	var b strings.Builder
	if l.Point != nil {
		b.WriteString("pt=")
		b.WriteString(l.Point.String())
	} else {
		b.WriteString("pt=-")
	}
	b.WriteString("|addr=")
	b.WriteString(model.CollapseSpace(l.Address))
	b.WriteString("|m=")
	b.WriteString(strings.Join(model.NormalizeMediums(l.Mediums), ","))
	b.WriteString("|sort=")
	b.WriteString(strings.ToLower(strings.TrimSpace(l.Sort)))
	return b.String()
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// ':' is the segment separator, everything else is squashed too
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
