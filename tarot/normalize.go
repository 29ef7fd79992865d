package tarot

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// wordAliases maps single words to the spelling used by canonical tokens.
var wordAliases = map[string]string{
	"1": "ace", "one": "ace",
	"2": "two", "3": "three", "4": "four", "5": "five",
	"6": "six", "7": "seven", "8": "eight", "9": "nine", "10": "ten",
	"coins":    "pentacles",
	"disks":    "pentacles",
	"rods":     "wands",
	"staves":   "wands",
	"judgment": "judgement",
}

var folder = cases.Fold()

// words lower-cases s, strips diacritics, and splits it into alphanumeric words.
func words(s string) []string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}
	plain = folder.String(plain)
	return strings.FieldsFunc(plain, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Normalize converts a card name to its canonical token: lowercase, no
// spaces or punctuation, e.g. "The Lovers" → "thelovers", "Ace of Cups" →
// "aceofcups". Numerals and common suit aliases are spelled out.
func Normalize(name string) string {
	ws := words(name)
	for i, w := range ws {
		if a, ok := wordAliases[w]; ok {
			ws[i] = a
		}
	}
	return strings.Join(ws, "")
}

// candidates lists the tokens to try when resolving a free-form name: the
// normalized form, then with a leading "the" added or removed.
func candidates(name string) []string {
	tok := Normalize(name)
	if tok == "" {
		return nil
	}
	out := []string{tok}
	if rest, ok := strings.CutPrefix(tok, "the"); ok && rest != "" {
		out = append(out, rest)
	} else {
		out = append(out, "the"+tok)
	}
	return out
}
