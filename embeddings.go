package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// RandomEmbeddingMatrix initializes a (vocab x dim) table uniformly in
// [-0.05, 0.05], the range the trained rows are expected to stay near.
func RandomEmbeddingMatrix(vocabSize, dim int, rng *rand.Rand) []float32 {
	m := make([]float32, vocabSize*dim)
	for i := range m {
		m[i] = rng.Float32()*0.1 - 0.05
	}
	return m
}

// LoadWordVectors overlays pretrained vectors onto the encoder and decoder
// embedding matrices for every in-vocabulary word found in the file. The
// file is GloVe text format: word followed by dim floats per line. Words
// missing from the file silently keep their random rows.
func LoadWordVectors(path string, vocab *Vocabulary, dim int, encoderEmb, decoderEmb []float32) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening word vector file: %w", err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != dim+1 {
			continue
		}
		id, ok := vocab.toID[fields[0]]
		if !ok {
			continue
		}
		for j := 0; j < dim; j++ {
			val, err := strconv.ParseFloat(fields[j+1], 32)
			if err != nil {
				return loaded, fmt.Errorf("word vector for %q: %w", fields[0], err)
			}
			encoderEmb[id*dim+j] = float32(val)
			decoderEmb[id*dim+j] = float32(val)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("reading word vector file: %w", err)
	}
	return loaded, nil
}
