package main

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestArgmax(t *testing.T) {
	if got := argmax([]float32{0.1, 0.7, 0.2}); got != 1 {
		t.Fatalf("argmax = %d, want 1", got)
	}
	if got := argmax([]float32{0.9}); got != 0 {
		t.Fatalf("argmax = %d, want 0", got)
	}
}

func TestAverageLabelEmbeddings(t *testing.T) {
	embeddings := [][]float32{
		{1, 0}, // label 1
		{3, 0}, // label 1
		{0, 2}, // label 2
		{0, 4}, // label 2
		{9, 9}, // label 1, dropped by truncation at batch size 4
		{9, 9}, // label 2, dropped
	}
	labels := []int{1, 1, 2, 2, 1, 2}

	avg := AverageLabelEmbeddings(embeddings, labels, 4)
	if len(avg) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(avg))
	}
	if !reflect.DeepEqual(avg[1], []float32{2, 0}) {
		t.Fatalf("label 1 average = %v, want [2 0]", avg[1])
	}
	if !reflect.DeepEqual(avg[2], []float32{0, 3}) {
		t.Fatalf("label 2 average = %v, want [0 3]", avg[2])
	}
}

func TestAverageLabelEmbeddingsFewerEmbeddingsThanLabels(t *testing.T) {
	// The embedding list is already truncated to full batches; the label list
	// is not. Averaging must stay within the shorter of the two.
	embeddings := [][]float32{{2}, {4}}
	labels := []int{1, 1, 1, 1}

	avg := AverageLabelEmbeddings(embeddings, labels, 2)
	if !reflect.DeepEqual(avg[1], []float32{3}) {
		t.Fatalf("label 1 average = %v, want [3]", avg[1])
	}
}

func TestStyleEmbeddingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style_embeddings.gob")
	in := [][]float32{{1, 2, 3}, {4, 5, 6}}

	if err := SaveStyleEmbeddings(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := LoadStyleEmbeddings(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip: got %v, want %v", out, in)
	}
}

func TestAverageEmbeddingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avg_style_embeddings.gob")
	in := map[int][]float32{1: {0.5, -0.5}, 2: {1.5, 2.5}}

	if err := SaveAverageEmbeddings(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := LoadAverageEmbeddings(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip: got %v, want %v", out, in)
	}
}

func TestTrimGenerated(t *testing.T) {
	vocab := BuildVocabulary([][]string{{"hello", "world"}}, 10)
	seqs := [][]int{
		{vocab.ID("hello"), vocab.ID("world"), EosID, PadID},
		{vocab.ID("world"), EosID, PadID, PadID},
	}
	lengths := []int{2, 1}

	got := TrimGenerated(seqs, lengths, vocab)
	want := [][]string{{"hello", "world"}, {"world"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TrimGenerated = %v, want %v", got, want)
	}
}
