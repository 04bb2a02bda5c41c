// Package normalize canonicalises transcript strings for comparison.
//
// Normalize is the first stage of the fuzzy-identity pipeline described by
// the exploration engine: it strips the surface noise a speech-to-text
// backend introduces (casing, punctuation, filler words, digit/word
// numeral variance) so that [similarity.Score] and
// [identify.FindMatch] compare semantically equivalent text rather than
// transcription artefacts.
package normalize

import (
	"strings"
	"unicode"
)

// fillers is the closed set of disfluency tokens stripped from transcripts.
var fillers = map[string]struct{}{
	"um": {}, "uh": {}, "er": {}, "erm": {}, "uhh": {}, "umm": {},
}

// numberWords maps the numerals 0-20 to their spelled-out words. Normalize
// converts numerals to spelled-out words, not the other way around, so that
// "press 1" and "press one" collapse to the same canonical text.
var numberWords = map[string]string{
	"0": "zero", "1": "one", "2": "two", "3": "three", "4": "four",
	"5": "five", "6": "six", "7": "seven", "8": "eight", "9": "nine",
	"10": "ten", "11": "eleven", "12": "twelve", "13": "thirteen",
	"14": "fourteen", "15": "fifteen", "16": "sixteen", "17": "seventeen",
	"18": "eighteen", "19": "nineteen", "20": "twenty",
}

// Text lowercases s, strips punctuation, removes filler tokens, spells out
// small integers, and collapses whitespace runs to a single space.
//
// Text is deterministic and idempotent: Text(Text(x)) == Text(x) for all x,
// since the output never contains punctuation, filler tokens, or multi-space
// runs for Text to act on a second time.
func Text(s string) string {
	lower := strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, isFiller := fillers[f]; isFiller {
			continue
		}
		if word, ok := numberWords[f]; ok {
			out = append(out, word)
			continue
		}
		out = append(out, f)
	}

	return strings.Join(out, " ")
}
