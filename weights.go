package main

import (
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gorgonia.org/tensor"
)

// Weights owns every parameter tensor by name. The training and inference
// graphs each wrap these same backing tensors in their own graph nodes, so a
// solver step in one graph is immediately visible to all of them.
type Weights struct {
	Meta    CheckpointMeta
	tensors map[string]*tensor.Dense
	order   []string
}

// CheckpointMeta is the minimal shape information needed to rebuild the
// model before restoring tensor data.
type CheckpointMeta struct {
	VocabSize     int
	NumLabels     int
	MaxSeqLen     int
	EmbeddingSize int
	HiddenSize    int
	ContentDim    int
	StyleDim      int
	DiscHidden    int
}

func glorotUniform(rows, cols int, rng *rand.Rand) []float32 {
	limit := float32(math.Sqrt(6.0 / float64(rows+cols)))
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = (rng.Float32()*2 - 1) * limit
	}
	return data
}

func (w *Weights) add(name string, rows, cols int, backing []float32) {
	w.tensors[name] = tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
	w.order = append(w.order, name)
}

func (w *Weights) addGlorot(name string, rows, cols int, rng *rand.Rand) {
	w.add(name, rows, cols, glorotUniform(rows, cols, rng))
}

func (w *Weights) addZeros(name string, rows, cols int) {
	w.add(name, rows, cols, make([]float32, rows*cols))
}

// addGRU creates the three gate weight triplets (update, reset, candidate)
// for a GRU cell under the given prefix.
func (w *Weights) addGRU(prefix string, inDim, hidDim int, rng *rand.Rand) {
	for _, gate := range []string{"z", "r", "h"} {
		w.addGlorot(prefix+"_w"+gate, inDim, hidDim, rng)
		w.addGlorot(prefix+"_u"+gate, hidDim, hidDim, rng)
		w.addZeros(prefix+"_b"+gate, 1, hidDim)
	}
}

// NewWeights builds and initializes every parameter tensor. The embedding
// backings are passed in so pretrained vectors can be overlaid beforehand.
func NewWeights(meta CheckpointMeta, encoderEmb, decoderEmb []float32, rng *rand.Rand) *Weights {
	w := &Weights{
		Meta:    meta,
		tensors: make(map[string]*tensor.Dense),
	}
	v, e, h := meta.VocabSize, meta.EmbeddingSize, meta.HiddenSize
	dc, ds, dh, k := meta.ContentDim, meta.StyleDim, meta.DiscHidden, meta.NumLabels

	w.add("enc_embed", v, e, encoderEmb)
	w.add("dec_embed", v, e, decoderEmb)

	w.addGRU("enc", e, h, rng)

	w.addGlorot("style_mu_w", h, ds, rng)
	w.addZeros("style_mu_b", 1, ds)
	w.addGlorot("style_lv_w", h, ds, rng)
	w.addZeros("style_lv_b", 1, ds)
	w.addGlorot("content_mu_w", h, dc, rng)
	w.addZeros("content_mu_b", 1, dc)
	w.addGlorot("content_lv_w", h, dc, rng)
	w.addZeros("content_lv_b", 1, dc)

	w.addGlorot("dec_init_w", dc+ds, h, rng)
	w.addZeros("dec_init_b", 1, h)
	w.addGRU("dec", e, h, rng)
	w.addGlorot("dec_out_w", h, v, rng)
	w.addZeros("dec_out_b", 1, v)

	w.addGlorot("sdisc_w1", dc, dh, rng)
	w.addZeros("sdisc_b1", 1, dh)
	w.addGlorot("sdisc_w2", dh, k, rng)
	w.addZeros("sdisc_b2", 1, k)

	w.addGlorot("cdisc_w1", ds, dh, rng)
	w.addZeros("cdisc_b1", 1, dh)
	w.addGlorot("cdisc_w2", dh, v, rng)
	w.addZeros("cdisc_b2", 1, v)

	w.addGlorot("mi_style_w", dc, k, rng)
	w.addZeros("mi_style_b", 1, k)
	w.addGlorot("mi_content_w", ds, v, rng)
	w.addZeros("mi_content_b", 1, v)

	return w
}

func (w *Weights) Tensor(name string) *tensor.Dense {
	t, ok := w.tensors[name]
	if !ok {
		panic(fmt.Sprintf("unknown weight tensor %q", name))
	}
	return t
}

func gruNames(prefix string) []string {
	var names []string
	for _, gate := range []string{"z", "r", "h"} {
		names = append(names, prefix+"_w"+gate, prefix+"_u"+gate, prefix+"_b"+gate)
	}
	return names
}

// AutoencoderParamNames is optimizer group (a): embedders, encoder, the
// variational heads, the decoder and both mutual-information heads.
func AutoencoderParamNames() []string {
	names := []string{"enc_embed", "dec_embed"}
	names = append(names, gruNames("enc")...)
	names = append(names,
		"style_mu_w", "style_mu_b", "style_lv_w", "style_lv_b",
		"content_mu_w", "content_mu_b", "content_lv_w", "content_lv_b",
		"dec_init_w", "dec_init_b")
	names = append(names, gruNames("dec")...)
	names = append(names,
		"dec_out_w", "dec_out_b",
		"mi_style_w", "mi_style_b", "mi_content_w", "mi_content_b")
	return names
}

// StyleDiscParamNames is optimizer group (b).
func StyleDiscParamNames() []string {
	return []string{"sdisc_w1", "sdisc_b1", "sdisc_w2", "sdisc_b2"}
}

// ContentDiscParamNames is optimizer group (c).
func ContentDiscParamNames() []string {
	return []string{"cdisc_w1", "cdisc_b1", "cdisc_w2", "cdisc_b2"}
}

type savedTensor struct {
	Name  string
	Shape []int
	Data  []float32
}

type checkpointFile struct {
	Meta    CheckpointMeta
	Tensors []savedTensor
}

// SaveCheckpoint persists every parameter tensor plus the shape metadata.
func (w *Weights) SaveCheckpoint(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating checkpoint: %w", err)
	}
	defer f.Close()

	file := checkpointFile{Meta: w.Meta}
	for _, name := range w.order {
		t := w.tensors[name]
		data := t.Data().([]float32)
		saved := savedTensor{
			Name:  name,
			Shape: append([]int(nil), t.Shape()...),
			Data:  append([]float32(nil), data...),
		}
		file.Tensors = append(file.Tensors, saved)
	}
	return gob.NewEncoder(f).Encode(file)
}

// LoadCheckpointMeta reads only the shape metadata so the model can be
// rebuilt before restoring weights.
func LoadCheckpointMeta(path string) (CheckpointMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return CheckpointMeta{}, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()

	var file checkpointFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return CheckpointMeta{}, fmt.Errorf("decoding checkpoint: %w", err)
	}
	return file.Meta, nil
}

// RestoreCheckpoint copies saved tensor data into this weight store. Shapes
// must match exactly; a mismatch means the checkpoint belongs to a
// differently configured model.
func (w *Weights) RestoreCheckpoint(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()

	var file checkpointFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return fmt.Errorf("decoding checkpoint: %w", err)
	}
	for _, saved := range file.Tensors {
		t, ok := w.tensors[saved.Name]
		if !ok {
			return fmt.Errorf("checkpoint tensor %q not in model", saved.Name)
		}
		shape := t.Shape()
		if len(saved.Shape) != 2 || shape[0] != saved.Shape[0] || shape[1] != saved.Shape[1] {
			return fmt.Errorf("checkpoint tensor %q shape %v, model expects %v", saved.Name, saved.Shape, shape)
		}
		copy(t.Data().([]float32), saved.Data)
	}
	return nil
}
