package main

import (
	"encoding/gob"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// encoderRunner is the inference-side encoder: the same subgraph as training
// but without dropout and with zero reparameterization noise, so its output
// is deterministic given fixed parameters.
type encoderRunner struct {
	g    *gorgonia.ExprGraph
	enc  *EncoderNodes
	meta CheckpointMeta
	vm   gorgonia.VM
}

func newEncoderRunner(store *Weights, batch int) (*encoderRunner, error) {
	g := gorgonia.NewGraph()
	gw := newGraphWeights(g, store)
	enc, err := buildEncoder(gw, batch, store.Meta.MaxSeqLen, 0)
	if err != nil {
		return nil, fmt.Errorf("building inference encoder: %w", err)
	}
	return &encoderRunner{
		g:    g,
		enc:  enc,
		meta: store.Meta,
		vm:   gorgonia.NewTapeMachine(g),
	}, nil
}

func (r *encoderRunner) Close() { r.vm.Close() }

// Run encodes one batch, returning the style and content mean vectors per
// sequence.
func (r *encoderRunner) Run(batch Batch) (styleMu, contentMu [][]float32, err error) {
	if err := feedEncoder(r.enc, batch, r.meta); err != nil {
		return nil, nil, err
	}
	if err := feedNoise(r.enc, len(batch.Seqs), r.meta, nil); err != nil {
		return nil, nil, err
	}
	if err := r.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("encoder forward: %w", err)
	}
	styleMu = copyRows(r.enc.StyleMu, len(batch.Seqs), r.meta.StyleDim)
	contentMu = copyRows(r.enc.ContentMu, len(batch.Seqs), r.meta.ContentDim)
	r.vm.Reset()
	return styleMu, contentMu, nil
}

func copyRows(n *gorgonia.Node, rows, cols int) [][]float32 {
	data := n.Value().Data().([]float32)
	out := make([][]float32, rows)
	for i := range out {
		out[i] = append([]float32(nil), data[i*cols:(i+1)*cols]...)
	}
	return out
}

// decoderRunner drives autoregressive generation: a tiny graph projecting
// the latent into the initial hidden state, and a single-step graph that is
// run L times with the previously generated token fed back in.
type decoderRunner struct {
	meta CheckpointMeta

	initG      *gorgonia.ExprGraph
	initLatent *gorgonia.Node
	initH      *gorgonia.Node
	initVM     gorgonia.VM

	stepG     *gorgonia.ExprGraph
	stepHPrev *gorgonia.Node
	stepYPrev *gorgonia.Node
	stepH     *gorgonia.Node
	stepProbs *gorgonia.Node
	stepVM    gorgonia.VM
}

func newDecoderRunner(store *Weights, batch int) (*decoderRunner, error) {
	meta := store.Meta
	r := &decoderRunner{meta: meta}

	r.initG = gorgonia.NewGraph()
	igw := newGraphWeights(r.initG, store)
	r.initLatent = gorgonia.NewMatrix(r.initG, tensor.Float32,
		gorgonia.WithShape(batch, meta.ContentDim+meta.StyleDim),
		gorgonia.WithName("latent"))
	h0, err := affine(r.initLatent, igw.node("dec_init_w"), igw.node("dec_init_b"))
	if err != nil {
		return nil, fmt.Errorf("building decoder init: %w", err)
	}
	if r.initH, err = gorgonia.Tanh(h0); err != nil {
		return nil, err
	}
	r.initVM = gorgonia.NewTapeMachine(r.initG)

	r.stepG = gorgonia.NewGraph()
	sgw := newGraphWeights(r.stepG, store)
	r.stepHPrev = gorgonia.NewMatrix(r.stepG, tensor.Float32,
		gorgonia.WithShape(batch, meta.HiddenSize), gorgonia.WithName("h_prev"))
	r.stepYPrev = gorgonia.NewMatrix(r.stepG, tensor.Float32,
		gorgonia.WithShape(batch, meta.VocabSize), gorgonia.WithName("y_prev"))
	emb, err := gorgonia.Mul(r.stepYPrev, sgw.node("dec_embed"))
	if err != nil {
		return nil, err
	}
	if r.stepH, err = gruStep(sgw, "dec", emb, r.stepHPrev); err != nil {
		return nil, fmt.Errorf("building decoder step: %w", err)
	}
	logits, err := affine(r.stepH, sgw.node("dec_out_w"), sgw.node("dec_out_b"))
	if err != nil {
		return nil, err
	}
	if r.stepProbs, err = gorgonia.SoftMax(logits); err != nil {
		return nil, err
	}
	r.stepVM = gorgonia.NewTapeMachine(r.stepG)
	return r, nil
}

func (r *decoderRunner) Close() {
	r.initVM.Close()
	r.stepVM.Close()
}

// Decode greedily generates one batch from the latent vectors. Every
// sequence runs the full L steps for batching simplicity; the returned
// lengths mark the first <eos> position (or L) for downstream trimming.
func (r *decoderRunner) Decode(latent [][]float32) (seqs [][]int, lengths []int, err error) {
	b := len(latent)
	steps := r.meta.MaxSeqLen

	if err := gorgonia.Let(r.initLatent, matrixFromRows(latent)); err != nil {
		return nil, nil, err
	}
	if err := r.initVM.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("decoder init forward: %w", err)
	}
	h := append([]float32(nil), r.initH.Value().Data().([]float32)...)
	r.initVM.Reset()

	seqs = make([][]int, b)
	lengths = make([]int, b)
	for i := range lengths {
		lengths[i] = steps
	}

	prev := make([]int, b)
	for i := range prev {
		prev[i] = SosID
	}

	for t := 0; t < steps; t++ {
		if err := gorgonia.Let(r.stepHPrev,
			tensor.New(tensor.WithShape(b, r.meta.HiddenSize), tensor.WithBacking(h))); err != nil {
			return nil, nil, err
		}
		if err := gorgonia.Let(r.stepYPrev, oneHotRows(prev, r.meta.VocabSize)); err != nil {
			return nil, nil, err
		}
		if err := r.stepVM.RunAll(); err != nil {
			return nil, nil, fmt.Errorf("decoder step %d: %w", t, err)
		}

		probs := r.stepProbs.Value().Data().([]float32)
		for i := 0; i < b; i++ {
			id := argmax(probs[i*r.meta.VocabSize : (i+1)*r.meta.VocabSize])
			seqs[i] = append(seqs[i], id)
			if id == EosID && lengths[i] == steps {
				lengths[i] = t
			}
			prev[i] = id
		}
		h = append([]float32(nil), r.stepH.Value().Data().([]float32)...)
		r.stepVM.Reset()
	}
	return seqs, lengths, nil
}

func argmax(row []float32) int {
	best, bestVal := 0, row[0]
	for i, v := range row[1:] {
		if v > bestVal {
			best, bestVal = i+1, v
		}
	}
	return best
}

// InferenceEngine bundles the encoder and decoder runners for the two
// inference entry points.
type InferenceEngine struct {
	store *Weights
	cfg   ModelConfig
	enc   *encoderRunner
	dec   *decoderRunner
}

func NewInferenceEngine(store *Weights, cfg ModelConfig) (*InferenceEngine, error) {
	enc, err := newEncoderRunner(store, cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	dec, err := newDecoderRunner(store, cfg.BatchSize)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &InferenceEngine{store: store, cfg: cfg, enc: enc, dec: dec}, nil
}

func (e *InferenceEngine) Close() {
	e.enc.Close()
	e.dec.Close()
}

// Reconstruct encodes and re-decodes the batched portion of the dataset.
func (e *InferenceEngine) Reconstruct(data *Dataset) (seqs [][]int, lengths []int, err error) {
	return e.run(data, nil)
}

// GenerateNovel regenerates every sentence with its style sub-vector
// replaced by the supplied style embedding, preserving content.
func (e *InferenceEngine) GenerateNovel(data *Dataset, styleEmbedding []float32) (seqs [][]int, lengths []int, err error) {
	if len(styleEmbedding) != e.store.Meta.StyleDim {
		return nil, nil, fmt.Errorf("style embedding has dim %d, model expects %d",
			len(styleEmbedding), e.store.Meta.StyleDim)
	}
	return e.run(data, styleEmbedding)
}

func (e *InferenceEngine) run(data *Dataset, styleOverride []float32) ([][]int, []int, error) {
	var allSeqs [][]int
	var allLengths []int
	for _, batch := range data.Batches(e.cfg.BatchSize) {
		styleMu, contentMu, err := e.enc.Run(batch)
		if err != nil {
			return nil, nil, err
		}
		latent := make([][]float32, len(batch.Seqs))
		for i := range latent {
			style := styleMu[i]
			if styleOverride != nil {
				style = styleOverride
			}
			row := make([]float32, 0, e.store.Meta.ContentDim+e.store.Meta.StyleDim)
			row = append(row, contentMu[i]...)
			row = append(row, style...)
			latent[i] = row
		}
		seqs, lengths, err := e.dec.Decode(latent)
		if err != nil {
			return nil, nil, err
		}
		allSeqs = append(allSeqs, seqs...)
		allLengths = append(allLengths, lengths...)
	}
	return allSeqs, allLengths, nil
}

// CollectStyleEmbeddings runs the encoder over the batched portion of the
// dataset and returns each example's style mean vector, in dataset order.
func (e *InferenceEngine) CollectStyleEmbeddings(data *Dataset) ([][]float32, error) {
	var all [][]float32
	for _, batch := range data.Batches(e.cfg.BatchSize) {
		styleMu, _, err := e.enc.Run(batch)
		if err != nil {
			return nil, err
		}
		all = append(all, styleMu...)
	}
	return all, nil
}

// AverageLabelEmbeddings maps each label to the mean style embedding across
// its examples in the batched (truncated) portion of the dataset. One entry
// per observed label.
func AverageLabelEmbeddings(embeddings [][]float32, labels []int, batchSize int) map[int][]float32 {
	n := TruncateToBatches(len(labels), batchSize)
	if n > len(embeddings) {
		n = len(embeddings)
	}

	sums := make(map[int][]float64)
	counts := make(map[int]int)
	for i := 0; i < n; i++ {
		label := labels[i]
		if sums[label] == nil {
			sums[label] = make([]float64, len(embeddings[i]))
		}
		row := make([]float64, len(embeddings[i]))
		for j, v := range embeddings[i] {
			row[j] = float64(v)
		}
		floats.Add(sums[label], row)
		counts[label]++
	}

	out := make(map[int][]float32, len(sums))
	for label, sum := range sums {
		floats.Scale(1/float64(counts[label]), sum)
		avg := make([]float32, len(sum))
		for j, v := range sum {
			avg[j] = float32(v)
		}
		out[label] = avg
	}
	return out
}

func SaveStyleEmbeddings(path string, embeddings [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(embeddings)
}

func LoadStyleEmbeddings(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var embeddings [][]float32
	if err := gob.NewDecoder(f).Decode(&embeddings); err != nil {
		return nil, err
	}
	return embeddings, nil
}

func SaveAverageEmbeddings(path string, m map[int][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(m)
}

func LoadAverageEmbeddings(path string) (map[int][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m map[int][]float32
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}
