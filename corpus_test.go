package main

import (
	"os"
	"path/filepath"
	"testing"
)

func testDataset(t *testing.T, n int) (*Dataset, *Vocabulary) {
	t.Helper()
	var sentences [][]string
	var labels []int
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			sentences = append(sentences, []string{"the", "food", "was", "good"})
			labels = append(labels, 1)
		} else {
			sentences = append(sentences, []string{"service", "was", "terrible"})
			labels = append(labels, 2)
		}
	}
	vocab := BuildVocabulary(sentences, 100)
	cfg := DefaultModelConfig()
	data, err := BuildDataset(sentences, labels, 2, vocab, cfg)
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}
	return data, vocab
}

func TestTruncateToBatches(t *testing.T) {
	if got := TruncateToBatches(10, 4); got != 8 {
		t.Fatalf("TruncateToBatches(10,4) = %d, want 8", got)
	}
	if got := TruncateToBatches(8, 4); got != 8 {
		t.Fatalf("TruncateToBatches(8,4) = %d, want 8", got)
	}
	if got := TruncateToBatches(3, 4); got != 0 {
		t.Fatalf("TruncateToBatches(3,4) = %d, want 0", got)
	}
}

func TestBatchesDropTrailingRemainder(t *testing.T) {
	data, _ := testDataset(t, 10)
	batches := data.Batches(4)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches from 10 examples at batch size 4, got %d", len(batches))
	}
	used := 0
	for _, b := range batches {
		used += len(b.Seqs)
	}
	if used != 8 {
		t.Fatalf("expected 8 examples used, got %d", used)
	}
}

func TestDatasetPaddingAndLengths(t *testing.T) {
	data, _ := testDataset(t, 4)

	for i, seq := range data.Padded {
		length := data.Lengths[i]
		if length > data.MaxSeqLen {
			t.Fatalf("sequence %d length %d exceeds max %d", i, length, data.MaxSeqLen)
		}
		if seq[length-1] != EosID {
			t.Fatalf("sequence %d: expected <eos> at position %d, got %d", i, length-1, seq[length-1])
		}
		for j := length; j < data.MaxSeqLen; j++ {
			if seq[j] != PadID {
				t.Fatalf("sequence %d: position %d beyond true length is %d, want <pad>", i, j, seq[j])
			}
		}
	}
}

func TestDatasetOneHotLabels(t *testing.T) {
	data, _ := testDataset(t, 4)
	for i, row := range data.OneHot {
		var sum float32
		for _, v := range row {
			sum += v
		}
		if sum != 1 {
			t.Fatalf("one-hot row %d sums to %v", i, sum)
		}
		if row[data.Labels[i]-1] != 1 {
			t.Fatalf("one-hot row %d not set for label %d", i, data.Labels[i])
		}
	}
}

func TestBagOfWordsExcludesStopwords(t *testing.T) {
	data, vocab := testDataset(t, 2)

	bow := data.BagOfWords[0] // "the food was good"
	if bow[vocab.ID("the")] != 0 || bow[vocab.ID("was")] != 0 {
		t.Fatalf("stopwords present in bag-of-words")
	}
	if bow[vocab.ID("food")] != 1 || bow[vocab.ID("good")] != 1 {
		t.Fatalf("content words missing from bag-of-words")
	}
	for id := 0; id <= UnkID; id++ {
		if bow[id] != 0 {
			t.Fatalf("reserved id %d present in bag-of-words", id)
		}
	}
}

func TestBuildDatasetLabelMismatch(t *testing.T) {
	vocab := BuildVocabulary([][]string{{"a"}}, 10)
	_, err := BuildDataset([][]string{{"a"}, {"a"}}, []int{1}, 1, vocab, DefaultModelConfig())
	if err == nil {
		t.Fatalf("expected error on text/label count mismatch")
	}
}

func TestReadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	if err := os.WriteFile(path, []byte("1\n2\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	labels, numLabels, err := ReadLabels(path)
	if err != nil {
		t.Fatalf("ReadLabels: %v", err)
	}
	if numLabels != 2 {
		t.Fatalf("numLabels = %d, want 2", numLabels)
	}
	if len(labels) != 3 || labels[0] != 1 || labels[1] != 2 || labels[2] != 1 {
		t.Fatalf("labels = %v, want [1 2 1]", labels)
	}
}

func TestReadLabelsRejectsBlankLine(t *testing.T) {
	// The text loader keeps blank lines; a skipped blank label line would
	// silently shift every following label onto the wrong sentence.
	path := filepath.Join(t.TempDir(), "labels.txt")
	if err := os.WriteFile(path, []byte("1\n\n2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadLabels(path); err == nil {
		t.Fatalf("expected error on blank label line")
	}
}

func TestRepad(t *testing.T) {
	data, _ := testDataset(t, 2)
	orig := data.Lengths[0]

	data.Repad(data.MaxSeqLen + 3)
	if len(data.Padded[0]) != data.MaxSeqLen {
		t.Fatalf("row width %d != MaxSeqLen %d", len(data.Padded[0]), data.MaxSeqLen)
	}
	if data.Lengths[0] != orig {
		t.Fatalf("repad changed true length %d -> %d", orig, data.Lengths[0])
	}
	for j := data.Lengths[0]; j < data.MaxSeqLen; j++ {
		if data.Padded[0][j] != PadID {
			t.Fatalf("position %d not padded after repad", j)
		}
	}
}
