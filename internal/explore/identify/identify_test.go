package identify

import "testing"

func TestFindMatch_NoCandidates(t *testing.T) {
	if _, ok := FindMatch(nil, "hello", 0.85); ok {
		t.Error("expected no match against empty candidate set")
	}
}

func TestFindMatch_ExactMatch(t *testing.T) {
	candidates := []Candidate{
		{ID: "n1", NormalizedUtterance: "please say your account number"},
		{ID: "n2", NormalizedUtterance: "press one for sales"},
	}
	id, ok := FindMatch(candidates, "Please say your account number.", 0.85)
	if !ok || id != "n1" {
		t.Fatalf("FindMatch = (%q, %v), want (n1, true)", id, ok)
	}
}

func TestFindMatch_NoiseBelowThreshold(t *testing.T) {
	candidates := []Candidate{
		{ID: "n1", NormalizedUtterance: "please say your account number"},
	}
	if _, ok := FindMatch(candidates, "goodbye thank you for calling", 0.85); ok {
		t.Error("expected dissimilar utterance to not match")
	}
}

func TestFindMatch_TieBrokenByLowerID(t *testing.T) {
	candidates := []Candidate{
		{ID: "n2", NormalizedUtterance: "hello there"},
		{ID: "n1", NormalizedUtterance: "hello there"},
	}
	id, ok := FindMatch(candidates, "hello there", 0.85)
	if !ok || id != "n1" {
		t.Fatalf("FindMatch = (%q, %v), want (n1, true)", id, ok)
	}
}

func TestFindMatch_HighestScoreWins(t *testing.T) {
	candidates := []Candidate{
		{ID: "close", NormalizedUtterance: "press one for sales department"},
		{ID: "exact", NormalizedUtterance: "press one for sales"},
	}
	id, ok := FindMatch(candidates, "press one for sales", 0.85)
	if !ok || id != "exact" {
		t.Fatalf("FindMatch = (%q, %v), want (exact, true)", id, ok)
	}
}
