// Package similarity scores how alike two already-normalized utterances are.
//
// Score is built on [github.com/antzucaro/matchr], the same Jaro-Winkler
// implementation the reference system's phonetic correction stage uses
// (see internal/transcript/phonetic), applied here as a token-set ratio:
// the best pairwise Jaro-Winkler score across shared-position and
// out-of-order token alignment, which tolerates STT word-order noise and
// small insertions/deletions better than a single whole-string comparison.
package similarity

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Score returns the similarity of a and b in [0,1]. Both arguments must
// already be normalized (see the normalize package); Score performs no
// further canonicalisation.
//
// Score is symmetric (Score(a,b) == Score(b,a)), reflexive (Score(x,x) ==
// 1 for non-empty x), and returns 0 if either string is empty.
func Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	// Whole-string Jaro-Winkler.
	whole := matchr.JaroWinkler(a, b, false)

	// Token-set ratio: sort tokens independently and compare the
	// reconstructed strings, which neutralises pure reordering
	// ("sales hours are nine to five" vs "nine to five are sales hours").
	ts := matchr.JaroWinkler(sortedTokens(a), sortedTokens(b), false)

	if ts > whole {
		return ts
	}
	return whole
}

// sortedTokens returns s's whitespace-separated tokens joined back together
// in sorted order.
func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	insertionSort(sorted)
	return strings.Join(sorted, " ")
}

// insertionSort sorts small token slices in place without pulling in
// "sort" for what is typically a handful of words per utterance.
func insertionSort(tokens []string) {
	for i := 1; i < len(tokens); i++ {
		for j := i; j > 0 && tokens[j-1] > tokens[j]; j-- {
			tokens[j-1], tokens[j] = tokens[j], tokens[j-1]
		}
	}
}
