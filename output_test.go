package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestFlushGroundTruth(t *testing.T) {
	data, _ := testDataset(t, 4)
	dir := t.TempDir()

	actual, err := FlushGroundTruth(data, 2, dir, "test")
	if err != nil {
		t.Fatalf("FlushGroundTruth: %v", err)
	}
	if len(actual) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(actual))
	}
	if !reflect.DeepEqual(actual[0], data.Raw[0]) {
		t.Fatalf("sentence 0 = %v, want %v", actual[0], data.Raw[0])
	}

	raw, err := os.ReadFile(filepath.Join(dir, "actual_sentences_test.txt"))
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != strings.Join(data.Raw[0], " ") {
		t.Fatalf("line 0 = %q, want %q", lines[0], strings.Join(data.Raw[0], " "))
	}
}

func TestFlushGroundTruthTrimsToBudget(t *testing.T) {
	sentences := [][]string{
		{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8"},
		{"b1", "b2"},
	}
	vocab := BuildVocabulary(sentences, 100)
	cfg := DefaultModelConfig()
	cfg.MaxSeqLen = 5
	data, err := BuildDataset(sentences, []int{1, 2}, 2, vocab, cfg)
	if err != nil {
		t.Fatalf("BuildDataset: %v", err)
	}

	actual, err := FlushGroundTruth(data, 2, t.TempDir(), "trim")
	if err != nil {
		t.Fatalf("FlushGroundTruth: %v", err)
	}
	if len(actual[0]) != data.MaxSeqLen-1 {
		t.Fatalf("long sentence kept %d words, want %d", len(actual[0]), data.MaxSeqLen-1)
	}
	if len(actual[1]) != 2 {
		t.Fatalf("short sentence kept %d words, want 2", len(actual[1]))
	}
}

func TestWriteGenerated(t *testing.T) {
	dir := t.TempDir()
	log := NewLogger("INFO", os.Stdout)
	generated := [][]string{{"good", "food"}, {"bad", "service"}}
	actual := [][]string{{"good", "food"}, {"terrible", "service"}}

	if err := WriteGenerated(generated, actual, "reconstructed_sentences", dir, "test", log); err != nil {
		t.Fatalf("WriteGenerated: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "generated_reconstructed_sentences_test.txt"))
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	want := "good food\nbad service\n"
	if string(raw) != want {
		t.Fatalf("file contents %q, want %q", string(raw), want)
	}
}

func TestTimestampSuffixFormat(t *testing.T) {
	s := TimestampSuffix()
	if len(s) != 14 {
		t.Fatalf("suffix %q has length %d, want 14", s, len(s))
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			t.Fatalf("suffix %q contains non-digit %q", s, r)
		}
	}
}
