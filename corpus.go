package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Stopwords excluded from bag-of-words targets. Function words carry no
// content signal, so letting the content discriminator chase them would only
// add noise.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"if": true, "of": true, "at": true, "by": true, "for": true, "with": true,
	"to": true, "from": true, "in": true, "on": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "am": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "this": true, "that": true, "these": true, "those": true,
	"my": true, "your": true, "his": true, "her": true, "its": true,
	"as": true, "so": true, "not": true, "no": true, "do": true, "does": true,
	"did": true, "have": true, "has": true, "had": true, "will": true,
	"would": true, "there": true, "their": true, "them": true, "then": true,
}

// Dataset is the fully preprocessed corpus: rectangular padded sequences plus
// everything the model and the discriminators need per example.
type Dataset struct {
	Padded     [][]int // [N][L] token ids, padded with <pad> after <eos>
	Lengths    []int   // true length including <eos>, <= L
	Raw        [][]string
	Labels     []int       // 1-based label per sequence
	OneHot     [][]float32 // [N][K]
	BagOfWords [][]float32 // [N][V] presence of non-stopword content tokens
	NumLabels  int
	MaxSeqLen  int
}

func (d *Dataset) Size() int { return len(d.Padded) }

// TruncateToBatches returns the largest prefix length divisible by the batch
// size. Every computation that walks the dataset in batches (training,
// inference sampling, style-embedding averaging) uses this same helper, so
// the trailing-remainder policy is uniform across the codebase.
func TruncateToBatches(n, batchSize int) int {
	return n - n%batchSize
}

// ReadSentences loads, normalizes and tokenizes the text file, one sentence
// per line. Blank lines are kept as empty token lists so line numbers stay
// aligned with the label file.
func ReadSentences(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening text file: %w", err)
	}
	defer f.Close()

	var sentences [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := NormalizeText(strings.TrimSpace(scanner.Text()))
		sentences = append(sentences, Tokenize(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	return sentences, nil
}

// ReadLabels loads the 1-based integer labels, one per line. A blank line is
// an error: the text loader keeps blank lines, so skipping one here would
// shift every label after it onto the wrong sentence.
func ReadLabels(path string) ([]int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening label file: %w", err)
	}
	defer f.Close()

	var labels []int
	numLabels := 0
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil, 0, fmt.Errorf("label file line %d: empty line", lineNo)
		}
		label, err := strconv.Atoi(line)
		if err != nil {
			return nil, 0, fmt.Errorf("label file line %d: %w", lineNo, err)
		}
		if label < 1 {
			return nil, 0, fmt.Errorf("label file line %d: label %d out of range", lineNo, label)
		}
		if label > numLabels {
			numLabels = label
		}
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading label file: %w", err)
	}
	return labels, numLabels, nil
}

// BuildDataset pads every sentence to the corpus maximum (capped by
// cfg.MaxSeqLen), appends <eos> inside the budget, and derives one-hot label
// rows and bag-of-words targets.
func BuildDataset(sentences [][]string, labels []int, numLabels int, vocab *Vocabulary, cfg ModelConfig) (*Dataset, error) {
	if len(sentences) != len(labels) {
		return nil, fmt.Errorf("text/label mismatch: %d sentences, %d labels", len(sentences), len(labels))
	}

	maxLen := 0
	for _, s := range sentences {
		if len(s)+1 > maxLen { // +1 for <eos>
			maxLen = len(s) + 1
		}
	}
	if maxLen > cfg.MaxSeqLen {
		maxLen = cfg.MaxSeqLen
	}
	if maxLen < 2 {
		return nil, fmt.Errorf("corpus has no usable sentences")
	}

	d := &Dataset{
		NumLabels: numLabels,
		MaxSeqLen: maxLen,
	}
	for i, sent := range sentences {
		ids := vocab.Encode(sent)
		if len(ids) > maxLen-1 {
			ids = ids[:maxLen-1]
		}
		ids = append(ids, EosID)

		padded := make([]int, maxLen)
		for j := range padded {
			padded[j] = PadID
		}
		copy(padded, ids)

		oneHot := make([]float32, numLabels)
		oneHot[labels[i]-1] = 1

		bow := make([]float32, vocab.Size())
		for _, w := range sent {
			id := vocab.ID(w)
			if id <= UnkID || stopwords[w] {
				continue
			}
			bow[id] = 1
		}

		d.Padded = append(d.Padded, padded)
		d.Lengths = append(d.Lengths, len(ids))
		d.Raw = append(d.Raw, sent)
		d.Labels = append(d.Labels, labels[i])
		d.OneHot = append(d.OneHot, oneHot)
		d.BagOfWords = append(d.BagOfWords, bow)
	}
	return d, nil
}

// Repad re-pads every sequence to the given length. Used when restoring a
// checkpoint whose sequence budget differs from the freshly derived one; the
// model's graph shapes are fixed by the checkpoint, so the data must follow.
func (d *Dataset) Repad(maxLen int) {
	if maxLen == d.MaxSeqLen {
		return
	}
	for i, seq := range d.Padded {
		padded := make([]int, maxLen)
		for j := range padded {
			padded[j] = PadID
		}
		copy(padded, seq)
		if d.Lengths[i] > maxLen {
			d.Lengths[i] = maxLen
			padded[maxLen-1] = EosID
		}
		d.Padded[i] = padded
	}
	d.MaxSeqLen = maxLen
}

// Batch is a view of B consecutive dataset rows.
type Batch struct {
	Seqs    [][]int
	Lengths []int
	OneHot  [][]float32
	Bow     [][]float32
	Start   int
}

// Batches slices the dataset into consecutive B-sized batches, dropping the
// trailing remainder.
func (d *Dataset) Batches(batchSize int) []Batch {
	usable := TruncateToBatches(d.Size(), batchSize)
	var out []Batch
	for i := 0; i < usable; i += batchSize {
		out = append(out, Batch{
			Seqs:    d.Padded[i : i+batchSize],
			Lengths: d.Lengths[i : i+batchSize],
			OneHot:  d.OneHot[i : i+batchSize],
			Bow:     d.BagOfWords[i : i+batchSize],
			Start:   i,
		})
	}
	return out
}
