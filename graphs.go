package main

import (
	"fmt"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// AutoencoderGraph is the generator-side training graph: full encoder and
// teacher-forced decoder, with the discriminator and regularizer heads
// evaluated forward-only so their losses can enter the composite objective.
// Only the autoencoder parameter group receives gradients here.
type AutoencoderGraph struct {
	g  *gorgonia.ExprGraph
	gw *graphWeights

	Enc *EncoderNodes
	Dec *DecoderTrainNodes

	Labels   *gorgonia.Node // (B,K) one-hot
	Bow      *gorgonia.Node // (B,V) bag-of-words targets
	BowComp  *gorgonia.Node // (B,V) complement
	KLWeight *gorgonia.Node // scalar annealing coefficient

	Loss       *gorgonia.Node
	RecLoss    *gorgonia.Node
	StyleAdv   *gorgonia.Node
	ContentAdv *gorgonia.Node
	MIStyle    *gorgonia.Node
	MIContent  *gorgonia.Node

	params gorgonia.Nodes
	vm     gorgonia.VM
	solver gorgonia.Solver
}

func buildAutoencoderGraph(store *Weights, cfg ModelConfig, batch, steps int) (*AutoencoderGraph, error) {
	g := gorgonia.NewGraph()
	gw := newGraphWeights(g, store)
	meta := store.Meta
	dropout := float64(1 - cfg.DropoutKeep)

	enc, err := buildEncoder(gw, batch, steps, dropout)
	if err != nil {
		return nil, fmt.Errorf("building encoder: %w", err)
	}

	latent, err := gorgonia.Concat(1, enc.ContentZ, enc.StyleZ)
	if err != nil {
		return nil, fmt.Errorf("concatenating latent: %w", err)
	}
	dec, err := buildDecoderTrain(gw, latent, batch, steps, dropout)
	if err != nil {
		return nil, fmt.Errorf("building decoder: %w", err)
	}

	ae := &AutoencoderGraph{g: g, gw: gw, Enc: enc, Dec: dec}
	ae.Labels = gorgonia.NewMatrix(g, tensor.Float32,
		gorgonia.WithShape(batch, meta.NumLabels), gorgonia.WithName("labels"))
	ae.Bow = gorgonia.NewMatrix(g, tensor.Float32,
		gorgonia.WithShape(batch, meta.VocabSize), gorgonia.WithName("bow"))
	ae.BowComp = gorgonia.NewMatrix(g, tensor.Float32,
		gorgonia.WithShape(batch, meta.VocabSize), gorgonia.WithName("bow_comp"))
	ae.KLWeight = gorgonia.NewScalar(g, tensor.Float32, gorgonia.WithName("kl_weight"))

	// Adversary losses, evaluated against the frozen-in-this-graph
	// discriminator weights. They enter the objective negated: pushing the
	// encoder to make the discriminators fail.
	sLogits, err := buildStyleDiscriminator(gw, enc.ContentMu)
	if err != nil {
		return nil, err
	}
	if ae.StyleAdv, err = softmaxCE(sLogits, ae.Labels); err != nil {
		return nil, err
	}
	cLogits, err := buildContentDiscriminator(gw, enc.StyleMu)
	if err != nil {
		return nil, err
	}
	if ae.ContentAdv, err = sigmoidBCE(cLogits, ae.Bow, ae.BowComp); err != nil {
		return nil, err
	}

	// Mutual-information heads: label from the content sample, bag-of-words
	// from the style sample, entering the objective with positive weight as a
	// counterweight against the adversarial purge.
	miSLogits, err := affine(enc.ContentZ, gw.node("mi_style_w"), gw.node("mi_style_b"))
	if err != nil {
		return nil, err
	}
	if ae.MIStyle, err = softmaxCE(miSLogits, ae.Labels); err != nil {
		return nil, err
	}
	miCLogits, err := affine(enc.StyleZ, gw.node("mi_content_w"), gw.node("mi_content_b"))
	if err != nil {
		return nil, err
	}
	if ae.MIContent, err = sigmoidBCE(miCLogits, ae.Bow, ae.BowComp); err != nil {
		return nil, err
	}

	ae.RecLoss = dec.RecLoss
	loss := dec.RecLoss
	addWeighted := func(coef float32, term *gorgonia.Node) error {
		scaled, err := gorgonia.Mul(gorgonia.NewConstant(coef), term)
		if err != nil {
			return err
		}
		loss, err = gorgonia.Add(loss, scaled)
		return err
	}

	styleKL, err := gorgonia.Mul(ae.KLWeight, enc.StyleKL)
	if err != nil {
		return nil, err
	}
	contentKL, err := gorgonia.Mul(ae.KLWeight, enc.ContentKL)
	if err != nil {
		return nil, err
	}
	if err := addWeighted(cfg.StyleKLWeight, styleKL); err != nil {
		return nil, err
	}
	if err := addWeighted(cfg.ContentKLWeight, contentKL); err != nil {
		return nil, err
	}
	if err := addWeighted(-cfg.StyleAdvWeight, ae.StyleAdv); err != nil {
		return nil, err
	}
	if err := addWeighted(-cfg.ContentAdvWeight, ae.ContentAdv); err != nil {
		return nil, err
	}
	if err := addWeighted(cfg.StyleMultitaskWeight, ae.MIStyle); err != nil {
		return nil, err
	}
	if err := addWeighted(cfg.ContentMultitaskWeight, ae.MIContent); err != nil {
		return nil, err
	}
	ae.Loss = loss

	ae.params = gw.paramNodes(AutoencoderParamNames())
	if _, err := gorgonia.Grad(ae.Loss, ae.params...); err != nil {
		return nil, fmt.Errorf("autoencoder gradient: %w", err)
	}
	ae.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(ae.params...))
	ae.solver = gorgonia.NewAdamSolver(
		gorgonia.WithLearnRate(cfg.LearningRate),
		gorgonia.WithClip(cfg.GradClip))
	return ae, nil
}

func (ae *AutoencoderGraph) Close() { ae.vm.Close() }

// DiscriminatorGraph runs the encoder forward and trains one discriminator
// head on its own classification loss. The encoder weights appear here
// forward-only; gradients flow to the discriminator parameters alone.
type DiscriminatorGraph struct {
	g  *gorgonia.ExprGraph
	gw *graphWeights

	Enc     *EncoderNodes
	Labels  *gorgonia.Node
	Bow     *gorgonia.Node
	BowComp *gorgonia.Node
	Loss    *gorgonia.Node

	params gorgonia.Nodes
	vm     gorgonia.VM
	solver gorgonia.Solver
}

func buildDiscriminatorGraph(store *Weights, cfg ModelConfig, batch, steps int, style bool) (*DiscriminatorGraph, error) {
	g := gorgonia.NewGraph()
	gw := newGraphWeights(g, store)
	meta := store.Meta

	enc, err := buildEncoder(gw, batch, steps, 0)
	if err != nil {
		return nil, fmt.Errorf("building encoder: %w", err)
	}
	d := &DiscriminatorGraph{g: g, gw: gw, Enc: enc}

	if style {
		d.Labels = gorgonia.NewMatrix(g, tensor.Float32,
			gorgonia.WithShape(batch, meta.NumLabels), gorgonia.WithName("labels"))
		logits, err := buildStyleDiscriminator(gw, enc.ContentMu)
		if err != nil {
			return nil, err
		}
		if d.Loss, err = softmaxCE(logits, d.Labels); err != nil {
			return nil, err
		}
		d.params = gw.paramNodes(StyleDiscParamNames())
	} else {
		d.Bow = gorgonia.NewMatrix(g, tensor.Float32,
			gorgonia.WithShape(batch, meta.VocabSize), gorgonia.WithName("bow"))
		d.BowComp = gorgonia.NewMatrix(g, tensor.Float32,
			gorgonia.WithShape(batch, meta.VocabSize), gorgonia.WithName("bow_comp"))
		logits, err := buildContentDiscriminator(gw, enc.StyleMu)
		if err != nil {
			return nil, err
		}
		if d.Loss, err = sigmoidBCE(logits, d.Bow, d.BowComp); err != nil {
			return nil, err
		}
		d.params = gw.paramNodes(ContentDiscParamNames())
	}

	if _, err := gorgonia.Grad(d.Loss, d.params...); err != nil {
		return nil, fmt.Errorf("discriminator gradient: %w", err)
	}
	d.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(d.params...))
	d.solver = gorgonia.NewAdamSolver(
		gorgonia.WithLearnRate(cfg.LearningRate),
		gorgonia.WithClip(cfg.GradClip))
	return d, nil
}

func (d *DiscriminatorGraph) Close() { d.vm.Close() }

// --- batch feeding ---------------------------------------------------------

func oneHotRows(ids []int, width int) *tensor.Dense {
	backing := make([]float32, len(ids)*width)
	for i, id := range ids {
		backing[i*width+id] = 1
	}
	return tensor.New(tensor.WithShape(len(ids), width), tensor.WithBacking(backing))
}

func matrixFromRows(rows [][]float32) *tensor.Dense {
	width := len(rows[0])
	backing := make([]float32, len(rows)*width)
	for i, row := range rows {
		copy(backing[i*width:], row)
	}
	return tensor.New(tensor.WithShape(len(rows), width), tensor.WithBacking(backing))
}

// feedEncoder binds one batch to the encoder placeholders: per-step one-hot
// inputs and the mask/complement pair derived from true lengths.
func feedEncoder(enc *EncoderNodes, batch Batch, meta CheckpointMeta) error {
	b := len(batch.Seqs)
	steps := len(enc.Xs)
	for t := 0; t < steps; t++ {
		ids := make([]int, b)
		mask := make([]float32, b)
		negMask := make([]float32, b)
		for i := 0; i < b; i++ {
			ids[i] = batch.Seqs[i][t]
			if t < batch.Lengths[i] {
				mask[i] = 1
			} else {
				negMask[i] = 1
			}
		}
		if err := gorgonia.Let(enc.Xs[t], oneHotRows(ids, meta.VocabSize)); err != nil {
			return err
		}
		if err := gorgonia.Let(enc.Masks[t],
			tensor.New(tensor.WithShape(b, 1), tensor.WithBacking(mask))); err != nil {
			return err
		}
		if err := gorgonia.Let(enc.NegMasks[t],
			tensor.New(tensor.WithShape(b, 1), tensor.WithBacking(negMask))); err != nil {
			return err
		}
	}
	return nil
}

// feedNoise binds the reparameterization placeholders: standard normal
// during training, zeros for deterministic inference.
func feedNoise(enc *EncoderNodes, batch int, meta CheckpointMeta, rng *rand.Rand) error {
	styleEps := make([]float32, batch*meta.StyleDim)
	contentEps := make([]float32, batch*meta.ContentDim)
	if rng != nil {
		for i := range styleEps {
			styleEps[i] = float32(rng.NormFloat64())
		}
		for i := range contentEps {
			contentEps[i] = float32(rng.NormFloat64())
		}
	}
	if err := gorgonia.Let(enc.EpsStyle,
		tensor.New(tensor.WithShape(batch, meta.StyleDim), tensor.WithBacking(styleEps))); err != nil {
		return err
	}
	return gorgonia.Let(enc.EpsContent,
		tensor.New(tensor.WithShape(batch, meta.ContentDim), tensor.WithBacking(contentEps)))
}

// feedDecoder binds the teacher-forcing inputs: step t consumes the true
// token t-1 (<sos> at t=0) and predicts token t, with the loss mask zeroing
// padded positions.
func feedDecoder(dec *DecoderTrainNodes, batch Batch, meta CheckpointMeta) error {
	b := len(batch.Seqs)
	steps := len(dec.Inputs)
	totalTokens := 0
	for t := 0; t < steps; t++ {
		prev := make([]int, b)
		curr := make([]int, b)
		mask := make([]float32, b)
		for i := 0; i < b; i++ {
			if t == 0 {
				prev[i] = SosID
			} else {
				prev[i] = batch.Seqs[i][t-1]
			}
			curr[i] = batch.Seqs[i][t]
			if t < batch.Lengths[i] {
				mask[i] = 1
				totalTokens++
			}
		}
		if err := gorgonia.Let(dec.Inputs[t], oneHotRows(prev, meta.VocabSize)); err != nil {
			return err
		}
		if err := gorgonia.Let(dec.Targets[t], oneHotRows(curr, meta.VocabSize)); err != nil {
			return err
		}
		if err := gorgonia.Let(dec.LossMasks[t],
			tensor.New(tensor.WithShape(b), tensor.WithBacking(mask))); err != nil {
			return err
		}
	}
	if totalTokens == 0 {
		totalTokens = 1
	}
	return gorgonia.Let(dec.RecNorm, float32(1)/float32(totalTokens))
}

func feedBowTargets(bow, bowComp *gorgonia.Node, batch Batch) error {
	b := len(batch.Bow)
	width := len(batch.Bow[0])
	comp := make([][]float32, b)
	for i := range comp {
		comp[i] = make([]float32, width)
		for j, v := range batch.Bow[i] {
			comp[i][j] = 1 - v
		}
	}
	if err := gorgonia.Let(bow, matrixFromRows(batch.Bow)); err != nil {
		return err
	}
	return gorgonia.Let(bowComp, matrixFromRows(comp))
}

// Step runs one discriminator update on the current encoder output.
func (d *DiscriminatorGraph) Step(batch Batch, meta CheckpointMeta) (float64, error) {
	if err := feedEncoder(d.Enc, batch, meta); err != nil {
		return 0, err
	}
	if err := feedNoise(d.Enc, len(batch.Seqs), meta, nil); err != nil {
		return 0, err
	}
	if d.Labels != nil {
		if err := gorgonia.Let(d.Labels, matrixFromRows(batch.OneHot)); err != nil {
			return 0, err
		}
	}
	if d.Bow != nil {
		if err := feedBowTargets(d.Bow, d.BowComp, batch); err != nil {
			return 0, err
		}
	}
	if err := d.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("discriminator forward/backward: %w", err)
	}
	loss := scalarValue(d.Loss)
	if err := d.solver.Step(gorgonia.NodesToValueGrads(d.params)); err != nil {
		return 0, fmt.Errorf("discriminator solver step: %w", err)
	}
	d.vm.Reset()
	return loss, nil
}

// AutoencoderStepResult reports the individual loss terms of one update.
type AutoencoderStepResult struct {
	Total      float64
	Rec        float64
	StyleAdv   float64
	ContentAdv float64
	MIStyle    float64
	MIContent  float64
}

// Step runs one autoencoder update with the given KL annealing coefficient.
func (ae *AutoencoderGraph) Step(batch Batch, meta CheckpointMeta, klWeight float32, rng *rand.Rand) (AutoencoderStepResult, error) {
	var res AutoencoderStepResult
	if err := feedEncoder(ae.Enc, batch, meta); err != nil {
		return res, err
	}
	if err := feedNoise(ae.Enc, len(batch.Seqs), meta, rng); err != nil {
		return res, err
	}
	if err := feedDecoder(ae.Dec, batch, meta); err != nil {
		return res, err
	}
	if err := gorgonia.Let(ae.Labels, matrixFromRows(batch.OneHot)); err != nil {
		return res, err
	}
	if err := feedBowTargets(ae.Bow, ae.BowComp, batch); err != nil {
		return res, err
	}
	if err := gorgonia.Let(ae.KLWeight, klWeight); err != nil {
		return res, err
	}
	if err := ae.vm.RunAll(); err != nil {
		return res, fmt.Errorf("autoencoder forward/backward: %w", err)
	}
	res = AutoencoderStepResult{
		Total:      scalarValue(ae.Loss),
		Rec:        scalarValue(ae.RecLoss),
		StyleAdv:   scalarValue(ae.StyleAdv),
		ContentAdv: scalarValue(ae.ContentAdv),
		MIStyle:    scalarValue(ae.MIStyle),
		MIContent:  scalarValue(ae.MIContent),
	}
	if err := ae.solver.Step(gorgonia.NodesToValueGrads(ae.params)); err != nil {
		return res, fmt.Errorf("autoencoder solver step: %w", err)
	}
	ae.vm.Reset()
	return res, nil
}

func scalarValue(n *gorgonia.Node) float64 {
	v := n.Value()
	if v == nil {
		return 0
	}
	switch data := v.Data().(type) {
	case float32:
		return float64(data)
	case []float32:
		if len(data) > 0 {
			return float64(data[0])
		}
	}
	return 0
}
