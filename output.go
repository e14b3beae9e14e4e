package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampSuffix names one run's output files.
func TimestampSuffix() string {
	return time.Now().Format("20060102150405")
}

func writeSentenceFile(path string, sentences [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, words := range sentences {
		if _, err := fmt.Fprintln(f, strings.Join(words, " ")); err != nil {
			return err
		}
	}
	return nil
}

// FlushGroundTruth writes the sampled portion of the corpus, trimmed to the
// model's sequence budget, and returns the word lists for BLEU scoring.
func FlushGroundTruth(data *Dataset, sampleSize int, outputDir, suffix string) ([][]string, error) {
	wordLists := make([][]string, 0, sampleSize)
	for i := 0; i < sampleSize; i++ {
		words := data.Raw[i]
		if len(words) > data.MaxSeqLen-1 {
			words = words[:data.MaxSeqLen-1]
		}
		wordLists = append(wordLists, words)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("actual_sentences_%s.txt", suffix))
	if err := writeSentenceFile(path, wordLists); err != nil {
		return nil, fmt.Errorf("writing ground truth sentences: %w", err)
	}
	return wordLists, nil
}

// TrimGenerated cuts each generated sequence at its effective length and
// decodes it back to words.
func TrimGenerated(seqs [][]int, lengths []int, vocab *Vocabulary) [][]string {
	out := make([][]string, len(seqs))
	for i, seq := range seqs {
		out[i] = vocab.Decode(seq[:lengths[i]])
	}
	return out
}

// WriteGenerated persists generated word lists to a timestamped mode-tagged
// file and logs corpus BLEU against the ground truth.
func WriteGenerated(generated, actual [][]string, mode, outputDir, suffix string, log *Logger) error {
	refs := make([][][]string, len(actual))
	for i, words := range actual {
		refs[i] = [][]string{words}
	}
	scores := CorpusBleuScores(refs, generated)
	log.Infof("bleu scores (%s): 1=%.4f 2=%.4f 3=%.4f 4=%.4f",
		mode, scores[1], scores[2], scores[3], scores[4])

	path := filepath.Join(outputDir, fmt.Sprintf("generated_%s_%s.txt", mode, suffix))
	if err := writeSentenceFile(path, generated); err != nil {
		return fmt.Errorf("writing generated sentences: %w", err)
	}
	log.Infof("generated sentences written to %s", path)
	return nil
}
