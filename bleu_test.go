package main

import (
	"strings"
	"testing"
)

func bleuPair(ref, hyp string) ([][][]string, [][]string) {
	return [][][]string{{strings.Fields(ref)}}, [][]string{strings.Fields(hyp)}
}

func TestBleuPerfectMatch(t *testing.T) {
	refs, hyps := bleuPair("the cat sat on the mat", "the cat sat on the mat")
	scores := CorpusBleuScores(refs, hyps)
	for n := 1; n <= 4; n++ {
		if diff := scores[n] - 1.0; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("BLEU-%d = %v for identical sentences, want 1.0", n, scores[n])
		}
	}
}

func TestBleuDisjointSentences(t *testing.T) {
	refs, hyps := bleuPair("alpha beta gamma delta", "one two three four")
	scores := CorpusBleuScores(refs, hyps)
	for n := 1; n <= 4; n++ {
		if scores[n] != 0 {
			t.Fatalf("BLEU-%d = %v with no overlap, want 0", n, scores[n])
		}
	}
}

func TestBleuClippedPrecision(t *testing.T) {
	// "the" appears twice in the reference, seven times in the hypothesis:
	// unigram matches must be clipped to 2.
	refs, hyps := bleuPair("the cat is on the mat", "the the the the the the the")
	scores := CorpusBleuScores(refs, hyps)
	want := 2.0 / 7.0 // clipped precision; lengths are equal, no penalty
	if diff := scores[1] - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("BLEU-1 = %v, want %v", scores[1], want)
	}
}

func TestBleuBrevityPenalty(t *testing.T) {
	// Hypothesis is a perfect prefix at half the reference length: the only
	// thing keeping BLEU-1 below 1 is the brevity penalty.
	refs, hyps := bleuPair("a b c d e f", "a b c")
	scores := CorpusBleuScores(refs, hyps)
	if scores[1] >= 1.0 {
		t.Fatalf("BLEU-1 = %v, expected brevity penalty to apply", scores[1])
	}
	if scores[1] <= 0 {
		t.Fatalf("BLEU-1 = %v, expected a positive score", scores[1])
	}
}

func TestBleuHigherOrdersNoLargerThanLower(t *testing.T) {
	refs, hyps := bleuPair("the quick brown fox jumps over the lazy dog",
		"the quick brown cat jumps over the dog")
	scores := CorpusBleuScores(refs, hyps)
	for n := 2; n <= 4; n++ {
		if scores[n] > scores[n-1]+1e-9 {
			t.Fatalf("BLEU-%d (%v) exceeds BLEU-%d (%v)", n, scores[n], n-1, scores[n-1])
		}
	}
}
