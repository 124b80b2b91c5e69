// Package normalize folds Arabic recitation text into a canonical comparison
// form.
//
// Reference tokens and recognised speech are both passed through Text before
// they are compared, so that vowel marks, elongation, pause marks and spelling
// variants of the same letter never count as differences. The transform is
// deterministic and pure: the same input always yields the same output and no
// state is shared between calls.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tatweel = 'ـ'

// letterVariants unifies letters that are written differently but recited the
// same. Hamza-carrying forms (أ إ آ ؤ ئ) are handled by NFD decomposition
// followed by mark removal, so only the forms without a decomposition are
// listed here.
var letterVariants = map[rune]rune{
	'ٱ': 'ا', // alef wasla -> alef
	'ٲ': 'ا', // alef with wavy hamza above
	'ٳ': 'ا', // alef with wavy hamza below
	'ى': 'ي', // alef maksura -> yeh
	'ی': 'ي', // farsi yeh
	'ة': 'ه', // teh marbuta -> heh
}

// stripped reports whether r carries no lexical weight and is dropped outright.
func stripped(r rune) bool {
	switch {
	case r == tatweel:
		return true
	case unicode.Is(unicode.Mn, r), unicode.Is(unicode.Cf, r):
		return true
	case r >= 0x06D6 && r <= 0x06ED: // small high ligatures, pause and sajdah marks
		return true
	case r >= 0x08D3 && r <= 0x08FF: // extended Quranic annotation marks
		return true
	case unicode.Is(unicode.Nd, r): // verse numbers in any script
		return true
	}
	return false
}

// separator reports whether r splits two words once marks are stripped.
func separator(r rune) bool {
	return unicode.IsSpace(r) || !stripped(r) && (unicode.IsPunct(r) || unicode.IsSymbol(r))
}

// fold maps one surviving rune onto its canonical form. Punctuation and
// symbols become spaces so that "word،word" still splits into two tokens.
func fold(r rune) rune {
	if unicode.IsPunct(r) || unicode.IsSymbol(r) {
		return ' '
	}
	if v, ok := letterVariants[r]; ok {
		return v
	}
	return unicode.ToLower(r)
}

// newChain builds a fresh transformer. transform.Chain keeps internal buffers,
// so a chain is never shared between goroutines.
func newChain() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Remove(runes.Predicate(stripped)),
		runes.Map(fold),
		norm.NFC,
	)
}

// Text returns the canonical form of s: diacritics, tatweel, pause marks,
// punctuation and verse numbers removed, letter variants unified, Latin letters
// lower-cased and whitespace collapsed to single spaces.
func Text(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(newChain(), s)
	if err != nil {
		// transform only fails on malformed chains; fall back to the raw input
		// so that callers still get a stable, comparable value.
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// Token normalises a single word. Any whitespace left after normalisation is
// removed so the result is always one token or the empty string.
func Token(s string) string {
	return strings.Join(strings.Fields(Text(s)), "")
}

// Fields normalises s and splits it into tokens.
func Fields(s string) []string {
	return strings.Fields(Text(s))
}

// Words splits s into surface words at the same boundaries Fields uses, so
// that every word normalises to at most one token. Marks stay attached.
func Words(s string) []string {
	return strings.FieldsFunc(s, separator)
}
