package main

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	PadToken = "<pad>"
	SosToken = "<sos>"
	EosToken = "<eos>"
	UnkToken = "<unk>"
)

const (
	PadID = 0
	SosID = 1
	EosID = 2
	UnkID = 3
)

// Vocabulary is an ordered, bidirectional word/id table. It is immutable
// once built; every downstream component receives it by reference.
type Vocabulary struct {
	toID   map[string]int
	toWord []string
}

// NormalizeText NFC-normalizes and lower-cases raw corpus text before any
// tokenization happens, so the vocabulary never sees two spellings of the
// same word.
func NormalizeText(text string) string {
	lower := cases.Lower(language.Und)
	return lower.String(norm.NFC.String(text))
}

// BuildVocabulary counts word frequencies over the tokenized sentences and
// keeps the maxSize most frequent words after the four reserved tokens.
// Ties are broken lexicographically so construction is deterministic.
func BuildVocabulary(sentences [][]string, maxSize int) *Vocabulary {
	counts := make(map[string]int)
	for _, sent := range sentences {
		for _, w := range sent {
			counts[w]++
		}
	}

	type wordFreq struct {
		word string
		freq int
	}
	ranked := make([]wordFreq, 0, len(counts))
	for w, f := range counts {
		ranked = append(ranked, wordFreq{w, f})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].freq != ranked[j].freq {
			return ranked[i].freq > ranked[j].freq
		}
		return ranked[i].word < ranked[j].word
	})

	v := &Vocabulary{
		toID:   make(map[string]int),
		toWord: []string{PadToken, SosToken, EosToken, UnkToken},
	}
	for i, w := range v.toWord {
		v.toID[w] = i
	}
	for _, wf := range ranked {
		if len(v.toWord) >= maxSize {
			break
		}
		if _, exists := v.toID[wf.word]; exists {
			continue
		}
		v.toID[wf.word] = len(v.toWord)
		v.toWord = append(v.toWord, wf.word)
	}
	return v
}

func (v *Vocabulary) Size() int { return len(v.toWord) }

func (v *Vocabulary) ID(word string) int {
	if id, ok := v.toID[word]; ok {
		return id
	}
	return UnkID
}

func (v *Vocabulary) Word(id int) string {
	if id < 0 || id >= len(v.toWord) {
		return UnkToken
	}
	return v.toWord[id]
}

// Encode maps a tokenized sentence to ids, unknown words to <unk>.
func (v *Vocabulary) Encode(words []string) []int {
	ids := make([]int, len(words))
	for i, w := range words {
		ids[i] = v.ID(w)
	}
	return ids
}

// Decode maps ids back to words, dropping reserved tokens.
func (v *Vocabulary) Decode(ids []int) []string {
	var words []string
	for _, id := range ids {
		if id == PadID || id == SosID || id == EosID {
			continue
		}
		words = append(words, v.Word(id))
	}
	return words
}

// Tokenize splits a normalized sentence into words.
func Tokenize(sentence string) []string {
	return strings.Fields(sentence)
}

type vocabData struct {
	Words []string `json:"words"`
}

func (v *Vocabulary) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(vocabData{Words: v.toWord})
}

func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var data vocabData
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return nil, err
	}
	v := &Vocabulary{
		toID:   make(map[string]int, len(data.Words)),
		toWord: data.Words,
	}
	for i, w := range data.Words {
		v.toID[w] = i
	}
	return v, nil
}
