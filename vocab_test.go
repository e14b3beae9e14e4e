package main

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuildVocabularyReservedIDs(t *testing.T) {
	v := BuildVocabulary([][]string{{"good", "food"}}, 10)

	if v.ID(PadToken) != PadID || v.ID(SosToken) != SosID ||
		v.ID(EosToken) != EosID || v.ID(UnkToken) != UnkID {
		t.Fatalf("reserved tokens not at reserved ids")
	}
	if v.Size() != 6 {
		t.Fatalf("expected 6 entries, got %d", v.Size())
	}
}

func TestBuildVocabularyDeterministicOrdering(t *testing.T) {
	sentences := [][]string{
		{"apple", "banana", "apple", "cherry"},
		{"banana", "apple"},
	}
	a := BuildVocabulary(sentences, 100)
	b := BuildVocabulary(sentences, 100)

	for id := 0; id < a.Size(); id++ {
		if a.Word(id) != b.Word(id) {
			t.Fatalf("ordering differs at id %d: %q vs %q", id, a.Word(id), b.Word(id))
		}
	}
	// apple (3) before banana (2) before cherry (1).
	if a.ID("apple") != 4 || a.ID("banana") != 5 || a.ID("cherry") != 6 {
		t.Fatalf("frequency ordering wrong: apple=%d banana=%d cherry=%d",
			a.ID("apple"), a.ID("banana"), a.ID("cherry"))
	}
}

func TestVocabularySizeCap(t *testing.T) {
	sentences := [][]string{{"a", "b", "c", "d", "e", "f", "g", "h"}}
	v := BuildVocabulary(sentences, 6)
	if v.Size() != 6 {
		t.Fatalf("expected capped size 6, got %d", v.Size())
	}
}

func TestEncodeUnknownWords(t *testing.T) {
	v := BuildVocabulary([][]string{{"known"}}, 10)
	ids := v.Encode([]string{"known", "missing"})
	if ids[0] == UnkID {
		t.Fatalf("known word mapped to <unk>")
	}
	if ids[1] != UnkID {
		t.Fatalf("unknown word mapped to %d, want %d", ids[1], UnkID)
	}
}

func TestDecodeDropsReservedTokens(t *testing.T) {
	v := BuildVocabulary([][]string{{"word"}}, 10)
	words := v.Decode([]int{SosID, v.ID("word"), EosID, PadID})
	if !reflect.DeepEqual(words, []string{"word"}) {
		t.Fatalf("decode = %v, want [word]", words)
	}
}

func TestVocabularySaveLoadRoundTrip(t *testing.T) {
	v := BuildVocabulary([][]string{{"alpha", "beta", "alpha"}}, 10)
	path := filepath.Join(t.TempDir(), "vocab.json")

	if err := v.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Size() != v.Size() {
		t.Fatalf("size mismatch: %d vs %d", loaded.Size(), v.Size())
	}
	for id := 0; id < v.Size(); id++ {
		if loaded.Word(id) != v.Word(id) {
			t.Fatalf("word mismatch at %d: %q vs %q", id, loaded.Word(id), v.Word(id))
		}
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("The QUICK Fox"); got != "the quick fox" {
		t.Fatalf("NormalizeText = %q", got)
	}
}
