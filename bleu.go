package main

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// CorpusBleuScores computes corpus-level BLEU for n-gram orders 1 through 4,
// with modified (clipped) precision and the usual brevity penalty. Used only
// for post-hoc evaluation, never inside the training loop.
func CorpusBleuScores(references [][][]string, hypotheses [][]string) map[int]float64 {
	const maxOrder = 4

	matches := make([]float64, maxOrder)
	totals := make([]float64, maxOrder)
	var hypLen, refLen int

	for i, hyp := range hypotheses {
		refs := references[i]
		hypLen += len(hyp)
		refLen += closestRefLength(refs, len(hyp))

		for n := 1; n <= maxOrder; n++ {
			hypCounts := ngramCounts(hyp, n)
			maxRefCounts := make(map[string]int)
			for _, ref := range refs {
				for gram, count := range ngramCounts(ref, n) {
					if count > maxRefCounts[gram] {
						maxRefCounts[gram] = count
					}
				}
			}
			for gram, count := range hypCounts {
				clipped := count
				if maxRef := maxRefCounts[gram]; clipped > maxRef {
					clipped = maxRef
				}
				matches[n-1] += float64(clipped)
				totals[n-1] += float64(count)
			}
		}
	}

	brevity := 1.0
	if hypLen < refLen && hypLen > 0 {
		brevity = math.Exp(1 - float64(refLen)/float64(hypLen))
	}

	scores := make(map[int]float64, maxOrder)
	logPrecisions := make([]float64, 0, maxOrder)
	for n := 1; n <= maxOrder; n++ {
		if totals[n-1] == 0 || matches[n-1] == 0 {
			scores[n] = 0
			logPrecisions = append(logPrecisions, math.Inf(-1))
			continue
		}
		logPrecisions = append(logPrecisions, math.Log(matches[n-1]/totals[n-1]))
		mean := floats.Sum(logPrecisions) / float64(n)
		scores[n] = brevity * math.Exp(mean)
	}
	return scores
}

func ngramCounts(words []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(words); i++ {
		counts[strings.Join(words[i:i+n], " ")]++
	}
	return counts
}

func closestRefLength(refs [][]string, hypLen int) int {
	best := len(refs[0])
	for _, ref := range refs[1:] {
		if abs(len(ref)-hypLen) < abs(best-hypLen) {
			best = len(ref)
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
