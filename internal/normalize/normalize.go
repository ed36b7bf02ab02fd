// Package normalize builds comparison keys for city names so that stored values
// and queries match regardless of case, surrounding whitespace, punctuation,
// Arabic diacritics, or Arabic letter variants.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// arabicMarks covers Arabic harakat, Quranic annotation marks, the superscript
// alef, and tatweel. Hamza and madda above/below (U+0653..U+0655) fall inside
// the harakat range, which is what folds أ/إ/آ/ئ/ؤ once decomposed.
var arabicMarks = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0610, Hi: 0x061A, Stride: 1},
		{Lo: 0x0640, Hi: 0x0640, Stride: 1},
		{Lo: 0x064B, Hi: 0x065F, Stride: 1},
		{Lo: 0x0670, Hi: 0x0670, Stride: 1},
		{Lo: 0x06D6, Hi: 0x06DC, Stride: 1},
		{Lo: 0x06DF, Hi: 0x06E8, Stride: 1},
		{Lo: 0x06EA, Hi: 0x06ED, Stride: 1},
	},
}

// foldLetter maps letter variants that survive decomposition to one
// representative.
func foldLetter(r rune) rune {
	switch r {
	case 'ٱ': // alef wasla
		return 'ا'
	case 'ى': // alef maksura
		return 'ي'
	case 'ة': // ta marbuta
		return 'ه'
	}
	return r
}

// newTransformer returns a fresh chain. Casers and chains keep state between
// calls and must not be shared across goroutines.
func newTransformer() transform.Transformer {
	return transform.Chain(
		cases.Fold(),
		norm.NFKD,
		runes.Remove(runes.In(arabicMarks)),
		runes.Map(foldLetter),
		runes.Remove(runes.Predicate(unicode.IsPunct)),
		norm.NFC,
	)
}

// Key returns the canonical comparison key for s. Key is idempotent.
func Key(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(newTransformer(), s)
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}

// KeyOf returns Key(v) for strings and "" for anything else, including nil.
func KeyOf(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Key(s)
}
