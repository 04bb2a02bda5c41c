// Package identify decides whether a newly observed utterance matches an
// existing conversation node under fuzzy (phonetic/noisy-transcription)
// equality, mirroring the matching strategy the reference corrector uses to
// reconcile STT variants of the same spoken phrase (see
// internal/transcript/corrector.go) but applied to whole-node identity
// instead of single-word correction.
package identify

import (
	"github.com/MrWong99/ivrwalker/internal/explore/normalize"
	"github.com/MrWong99/ivrwalker/internal/explore/similarity"
)

// Candidate is the minimal view of an existing node identify needs: its id
// and its already-normalized utterance. Callers (the graph package) adapt
// their node storage to this shape rather than identify depending on graph,
// which would create an import cycle (graph uses identify internally).
type Candidate struct {
	ID                  string
	NormalizedUtterance string
}

// FindMatch normalizes utterance and scores it against every candidate's
// normalized utterance, returning the id of the highest-scoring candidate
// whose score meets threshold. Ties are broken by lexicographically lower
// id so that the result is deterministic regardless of candidate order.
//
// FindMatch returns ("", false) if candidates is empty or no candidate
// meets threshold.
//
// Callers that intend to insert a new node on a miss must hold the graph's
// write lock across the call to FindMatch and the subsequent insert, or two
// concurrent callers may both observe a miss and create duplicate nodes.
func FindMatch(candidates []Candidate, utterance string, threshold float64) (id string, matched bool) {
	if len(candidates) == 0 {
		return "", false
	}

	normalized := normalize.Text(utterance)

	type scored struct {
		id    string
		score float64
	}
	best := scored{score: -1}

	for _, c := range candidates {
		s := similarity.Score(normalized, c.NormalizedUtterance)
		if s < threshold {
			continue
		}
		switch {
		case s > best.score:
			best = scored{id: c.ID, score: s}
		case s == best.score && (best.id == "" || c.ID < best.id):
			best = scored{id: c.ID, score: s}
		}
	}

	if best.score < threshold {
		return "", false
	}
	return best.id, true
}
