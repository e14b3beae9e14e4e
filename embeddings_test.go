package main

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func TestRandomEmbeddingMatrixRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := RandomEmbeddingMatrix(10, 4, rng)
	if len(m) != 40 {
		t.Fatalf("expected 40 values, got %d", len(m))
	}
	for i, v := range m {
		if v < -0.05 || v > 0.05 {
			t.Fatalf("m[%d] = %v outside [-0.05, 0.05]", i, v)
		}
	}
}

func TestLoadWordVectors(t *testing.T) {
	vocab := BuildVocabulary([][]string{{"apple", "banana"}}, 10)
	dim := 3
	rng := rand.New(rand.NewSource(8))
	encEmb := RandomEmbeddingMatrix(vocab.Size(), dim, rng)
	decEmb := RandomEmbeddingMatrix(vocab.Size(), dim, rng)
	bananaRow := append([]float32(nil), encEmb[vocab.ID("banana")*dim:(vocab.ID("banana")+1)*dim]...)

	path := filepath.Join(t.TempDir(), "vectors.txt")
	content := "apple 0.1 0.2 0.3\n" +
		"unrelated 0.9 0.9 0.9\n" + // not in vocabulary, skipped
		"truncated 0.5 0.5\n" // wrong dimension, skipped
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadWordVectors(path, vocab, dim, encEmb, decEmb)
	if err != nil {
		t.Fatalf("LoadWordVectors: %v", err)
	}
	if loaded != 1 {
		t.Fatalf("loaded = %d, want 1", loaded)
	}

	appleID := vocab.ID("apple")
	want := []float32{0.1, 0.2, 0.3}
	for j := 0; j < dim; j++ {
		if encEmb[appleID*dim+j] != want[j] {
			t.Fatalf("encoder row for apple[%d] = %v, want %v", j, encEmb[appleID*dim+j], want[j])
		}
		if decEmb[appleID*dim+j] != want[j] {
			t.Fatalf("decoder row for apple[%d] = %v, want %v", j, decEmb[appleID*dim+j], want[j])
		}
	}

	// Words absent from the file keep their random initialization.
	bananaID := vocab.ID("banana")
	for j := 0; j < dim; j++ {
		if encEmb[bananaID*dim+j] != bananaRow[j] {
			t.Fatalf("banana row changed without a pretrained vector")
		}
	}
}

func TestLoadWordVectorsBadFloat(t *testing.T) {
	vocab := BuildVocabulary([][]string{{"apple"}}, 10)
	path := filepath.Join(t.TempDir(), "vectors.txt")
	if err := os.WriteFile(path, []byte("apple 0.1 oops 0.3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	emb := make([]float32, vocab.Size()*3)
	if _, err := LoadWordVectors(path, vocab, 3, emb, emb); err == nil {
		t.Fatalf("expected parse error")
	}
}
