package main

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// graphWeights wraps a Weights store for one expression graph, creating a
// graph node per parameter tensor on demand. Nodes share the store's backing
// tensors, which is how the training and inference graphs see the same
// parameters.
type graphWeights struct {
	g     *gorgonia.ExprGraph
	store *Weights
	nodes map[string]*gorgonia.Node
}

func newGraphWeights(g *gorgonia.ExprGraph, store *Weights) *graphWeights {
	return &graphWeights{g: g, store: store, nodes: make(map[string]*gorgonia.Node)}
}

func (gw *graphWeights) node(name string) *gorgonia.Node {
	if n, ok := gw.nodes[name]; ok {
		return n
	}
	n := gorgonia.NodeFromAny(gw.g, gw.store.Tensor(name), gorgonia.WithName(name))
	gw.nodes[name] = n
	return n
}

func (gw *graphWeights) paramNodes(names []string) gorgonia.Nodes {
	out := make(gorgonia.Nodes, len(names))
	for i, name := range names {
		out[i] = gw.node(name)
	}
	return out
}

// affine computes x*w + b with b broadcast over the batch axis.
func affine(x, w, b *gorgonia.Node) (*gorgonia.Node, error) {
	xw, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, err
	}
	return gorgonia.BroadcastAdd(xw, b, nil, []byte{0})
}

// gruStep advances one GRU cell: h' = (1-z)⊙h + z⊙h̃.
func gruStep(gw *graphWeights, prefix string, x, hPrev *gorgonia.Node) (*gorgonia.Node, error) {
	gate := func(g string, act func(*gorgonia.Node) (*gorgonia.Node, error), hIn *gorgonia.Node) (*gorgonia.Node, error) {
		xw, err := gorgonia.Mul(x, gw.node(prefix+"_w"+g))
		if err != nil {
			return nil, err
		}
		hu, err := gorgonia.Mul(hIn, gw.node(prefix+"_u"+g))
		if err != nil {
			return nil, err
		}
		pre, err := gorgonia.Add(xw, hu)
		if err != nil {
			return nil, err
		}
		pre, err = gorgonia.BroadcastAdd(pre, gw.node(prefix+"_b"+g), nil, []byte{0})
		if err != nil {
			return nil, err
		}
		return act(pre)
	}

	z, err := gate("z", gorgonia.Sigmoid, hPrev)
	if err != nil {
		return nil, fmt.Errorf("%s update gate: %w", prefix, err)
	}
	r, err := gate("r", gorgonia.Sigmoid, hPrev)
	if err != nil {
		return nil, fmt.Errorf("%s reset gate: %w", prefix, err)
	}
	rh, err := gorgonia.HadamardProd(r, hPrev)
	if err != nil {
		return nil, err
	}
	hTilde, err := gate("h", gorgonia.Tanh, rh)
	if err != nil {
		return nil, fmt.Errorf("%s candidate: %w", prefix, err)
	}

	zh, err := gorgonia.HadamardProd(z, hTilde)
	if err != nil {
		return nil, err
	}
	oneMinusZ, err := gorgonia.Sub(gorgonia.NewConstant(float32(1)), z)
	if err != nil {
		return nil, err
	}
	keep, err := gorgonia.HadamardProd(oneMinusZ, hPrev)
	if err != nil {
		return nil, err
	}
	return gorgonia.Add(zh, keep)
}

// EncoderNodes collects the encoder subgraph: the per-step placeholders plus
// the latent heads.
type EncoderNodes struct {
	Xs       []*gorgonia.Node // one-hot inputs, one (B,V) matrix per step
	Masks    []*gorgonia.Node // (B,1), 1 while t < true length
	NegMasks []*gorgonia.Node // (B,1), complement of Masks

	EpsStyle   *gorgonia.Node // (B,Ds) reparameterization noise
	EpsContent *gorgonia.Node // (B,Dc)

	StyleMu, StyleLogvar, StyleZ       *gorgonia.Node
	ContentMu, ContentLogvar, ContentZ *gorgonia.Node
	StyleKL, ContentKL                 *gorgonia.Node
}

// buildEncoder unrolls the encoder GRU over L steps. Padding positions leave
// the hidden state untouched via the mask gates, so the final state is the
// state at each sequence's true length regardless of padding.
func buildEncoder(gw *graphWeights, batch, steps int, dropout float64) (*EncoderNodes, error) {
	meta := gw.store.Meta
	enc := &EncoderNodes{}

	// Zero initial state. Lives on the graph as a value node; the name-based
	// parameter groups never include it, so it stays out of every solver.
	h := gorgonia.NewMatrix(gw.g, tensor.Float32,
		gorgonia.WithShape(batch, meta.HiddenSize),
		gorgonia.WithInit(gorgonia.Zeroes()),
		gorgonia.WithName("enc_h0"))

	for t := 0; t < steps; t++ {
		x := gorgonia.NewMatrix(gw.g, tensor.Float32,
			gorgonia.WithShape(batch, meta.VocabSize),
			gorgonia.WithName(fmt.Sprintf("enc_x_%d", t)))
		m := gorgonia.NewMatrix(gw.g, tensor.Float32,
			gorgonia.WithShape(batch, 1),
			gorgonia.WithName(fmt.Sprintf("enc_mask_%d", t)))
		nm := gorgonia.NewMatrix(gw.g, tensor.Float32,
			gorgonia.WithShape(batch, 1),
			gorgonia.WithName(fmt.Sprintf("enc_negmask_%d", t)))
		enc.Xs = append(enc.Xs, x)
		enc.Masks = append(enc.Masks, m)
		enc.NegMasks = append(enc.NegMasks, nm)

		emb, err := gorgonia.Mul(x, gw.node("enc_embed"))
		if err != nil {
			return nil, fmt.Errorf("encoder embedding step %d: %w", t, err)
		}
		hNew, err := gruStep(gw, "enc", emb, h)
		if err != nil {
			return nil, fmt.Errorf("encoder step %d: %w", t, err)
		}

		kept, err := gorgonia.BroadcastHadamardProd(hNew, m, nil, []byte{1})
		if err != nil {
			return nil, err
		}
		carried, err := gorgonia.BroadcastHadamardProd(h, nm, nil, []byte{1})
		if err != nil {
			return nil, err
		}
		if h, err = gorgonia.Add(kept, carried); err != nil {
			return nil, err
		}
	}

	if dropout > 0 {
		var err error
		if h, err = gorgonia.Dropout(h, dropout); err != nil {
			return nil, fmt.Errorf("encoder dropout: %w", err)
		}
	}

	var err error
	if enc.StyleMu, err = affine(h, gw.node("style_mu_w"), gw.node("style_mu_b")); err != nil {
		return nil, err
	}
	if enc.StyleLogvar, err = affine(h, gw.node("style_lv_w"), gw.node("style_lv_b")); err != nil {
		return nil, err
	}
	if enc.ContentMu, err = affine(h, gw.node("content_mu_w"), gw.node("content_mu_b")); err != nil {
		return nil, err
	}
	if enc.ContentLogvar, err = affine(h, gw.node("content_lv_w"), gw.node("content_lv_b")); err != nil {
		return nil, err
	}

	enc.EpsStyle = gorgonia.NewMatrix(gw.g, tensor.Float32,
		gorgonia.WithShape(batch, meta.StyleDim), gorgonia.WithName("eps_style"))
	enc.EpsContent = gorgonia.NewMatrix(gw.g, tensor.Float32,
		gorgonia.WithShape(batch, meta.ContentDim), gorgonia.WithName("eps_content"))

	if enc.StyleZ, err = reparameterize(enc.StyleMu, enc.StyleLogvar, enc.EpsStyle); err != nil {
		return nil, err
	}
	if enc.ContentZ, err = reparameterize(enc.ContentMu, enc.ContentLogvar, enc.EpsContent); err != nil {
		return nil, err
	}
	if enc.StyleKL, err = gaussianKL(enc.StyleMu, enc.StyleLogvar); err != nil {
		return nil, err
	}
	if enc.ContentKL, err = gaussianKL(enc.ContentMu, enc.ContentLogvar); err != nil {
		return nil, err
	}
	return enc, nil
}

// reparameterize computes mu + sqrt(exp(logvar)) ⊙ eps.
func reparameterize(mu, logvar, eps *gorgonia.Node) (*gorgonia.Node, error) {
	variance, err := gorgonia.Exp(logvar)
	if err != nil {
		return nil, err
	}
	std, err := gorgonia.Sqrt(variance)
	if err != nil {
		return nil, err
	}
	noise, err := gorgonia.HadamardProd(std, eps)
	if err != nil {
		return nil, err
	}
	return gorgonia.Add(mu, noise)
}

// gaussianKL is the batch-mean KL divergence of a diagonal gaussian from the
// unit gaussian: 0.5 * mean_B sum_D (mu² + e^lv − lv − 1).
func gaussianKL(mu, logvar *gorgonia.Node) (*gorgonia.Node, error) {
	muSq, err := gorgonia.Square(mu)
	if err != nil {
		return nil, err
	}
	variance, err := gorgonia.Exp(logvar)
	if err != nil {
		return nil, err
	}
	term, err := gorgonia.Add(muSq, variance)
	if err != nil {
		return nil, err
	}
	if term, err = gorgonia.Sub(term, logvar); err != nil {
		return nil, err
	}
	if term, err = gorgonia.Sub(term, gorgonia.NewConstant(float32(1))); err != nil {
		return nil, err
	}
	rowSum, err := gorgonia.Sum(term, 1)
	if err != nil {
		return nil, err
	}
	mean, err := gorgonia.Mean(rowSum)
	if err != nil {
		return nil, err
	}
	return gorgonia.Mul(gorgonia.NewConstant(float32(0.5)), mean)
}

// clampProb squeezes probabilities away from exactly 0 and 1 before Log.
func clampProb(p *gorgonia.Node) (*gorgonia.Node, error) {
	scaled, err := gorgonia.Mul(p, gorgonia.NewConstant(float32(1-2e-6)))
	if err != nil {
		return nil, err
	}
	return gorgonia.Add(scaled, gorgonia.NewConstant(float32(1e-6)))
}

// softmaxCE is the batch-mean cross-entropy of softmax(logits) against
// one-hot targets.
func softmaxCE(logits, targets *gorgonia.Node) (*gorgonia.Node, error) {
	probs, err := gorgonia.SoftMax(logits)
	if err != nil {
		return nil, err
	}
	if probs, err = clampProb(probs); err != nil {
		return nil, err
	}
	logProbs, err := gorgonia.Log(probs)
	if err != nil {
		return nil, err
	}
	picked, err := gorgonia.HadamardProd(targets, logProbs)
	if err != nil {
		return nil, err
	}
	rowSum, err := gorgonia.Sum(picked, 1)
	if err != nil {
		return nil, err
	}
	mean, err := gorgonia.Mean(rowSum)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(mean)
}

// sigmoidBCE is the batch-mean multi-label binary cross-entropy of
// sigmoid(logits) against 0/1 targets. The complement targets arrive as a
// separate placeholder so the graph needs no (1 - t) arithmetic.
func sigmoidBCE(logits, targets, targetsComp *gorgonia.Node) (*gorgonia.Node, error) {
	p, err := gorgonia.Sigmoid(logits)
	if err != nil {
		return nil, err
	}
	if p, err = clampProb(p); err != nil {
		return nil, err
	}
	logP, err := gorgonia.Log(p)
	if err != nil {
		return nil, err
	}
	notP, err := gorgonia.Sub(gorgonia.NewConstant(float32(1)), p)
	if err != nil {
		return nil, err
	}
	logNotP, err := gorgonia.Log(notP)
	if err != nil {
		return nil, err
	}
	pos, err := gorgonia.HadamardProd(targets, logP)
	if err != nil {
		return nil, err
	}
	neg, err := gorgonia.HadamardProd(targetsComp, logNotP)
	if err != nil {
		return nil, err
	}
	sum, err := gorgonia.Add(pos, neg)
	if err != nil {
		return nil, err
	}
	rowSum, err := gorgonia.Sum(sum, 1)
	if err != nil {
		return nil, err
	}
	mean, err := gorgonia.Mean(rowSum)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(mean)
}

// DecoderTrainNodes collects the teacher-forced decoder subgraph.
type DecoderTrainNodes struct {
	Inputs    []*gorgonia.Node // (B,V) one-hot of the true previous token
	Targets   []*gorgonia.Node // (B,V) one-hot of the token to predict
	LossMasks []*gorgonia.Node // (B,) 1 while the position is inside the true length
	RecNorm   *gorgonia.Node   // scalar, 1 / number of unmasked tokens
	RecLoss   *gorgonia.Node
}

// buildDecoderTrain unrolls the teacher-forced decoder and accumulates the
// masked token-level reconstruction cross-entropy. Positions past a
// sequence's true length contribute exactly zero.
func buildDecoderTrain(gw *graphWeights, latent *gorgonia.Node, batch, steps int, dropout float64) (*DecoderTrainNodes, error) {
	meta := gw.store.Meta
	dec := &DecoderTrainNodes{}

	h, err := affine(latent, gw.node("dec_init_w"), gw.node("dec_init_b"))
	if err != nil {
		return nil, fmt.Errorf("decoder init: %w", err)
	}
	if h, err = gorgonia.Tanh(h); err != nil {
		return nil, err
	}
	if dropout > 0 {
		if h, err = gorgonia.Dropout(h, dropout); err != nil {
			return nil, err
		}
	}

	var total *gorgonia.Node
	for t := 0; t < steps; t++ {
		y := gorgonia.NewMatrix(gw.g, tensor.Float32,
			gorgonia.WithShape(batch, meta.VocabSize),
			gorgonia.WithName(fmt.Sprintf("dec_y_%d", t)))
		tgt := gorgonia.NewMatrix(gw.g, tensor.Float32,
			gorgonia.WithShape(batch, meta.VocabSize),
			gorgonia.WithName(fmt.Sprintf("dec_t_%d", t)))
		lm := gorgonia.NewVector(gw.g, tensor.Float32,
			gorgonia.WithShape(batch),
			gorgonia.WithName(fmt.Sprintf("dec_lm_%d", t)))
		dec.Inputs = append(dec.Inputs, y)
		dec.Targets = append(dec.Targets, tgt)
		dec.LossMasks = append(dec.LossMasks, lm)

		emb, err := gorgonia.Mul(y, gw.node("dec_embed"))
		if err != nil {
			return nil, fmt.Errorf("decoder embedding step %d: %w", t, err)
		}
		if h, err = gruStep(gw, "dec", emb, h); err != nil {
			return nil, fmt.Errorf("decoder step %d: %w", t, err)
		}

		logits, err := affine(h, gw.node("dec_out_w"), gw.node("dec_out_b"))
		if err != nil {
			return nil, err
		}
		probs, err := gorgonia.SoftMax(logits)
		if err != nil {
			return nil, err
		}
		if probs, err = clampProb(probs); err != nil {
			return nil, err
		}
		logProbs, err := gorgonia.Log(probs)
		if err != nil {
			return nil, err
		}
		picked, err := gorgonia.HadamardProd(tgt, logProbs)
		if err != nil {
			return nil, err
		}
		perSeq, err := gorgonia.Sum(picked, 1)
		if err != nil {
			return nil, err
		}
		masked, err := gorgonia.HadamardProd(perSeq, lm)
		if err != nil {
			return nil, err
		}
		stepSum, err := gorgonia.Sum(masked)
		if err != nil {
			return nil, err
		}
		if total == nil {
			total = stepSum
		} else if total, err = gorgonia.Add(total, stepSum); err != nil {
			return nil, err
		}
	}

	dec.RecNorm = gorgonia.NewScalar(gw.g, tensor.Float32, gorgonia.WithName("rec_norm"))
	scaled, err := gorgonia.Mul(total, dec.RecNorm)
	if err != nil {
		return nil, err
	}
	if dec.RecLoss, err = gorgonia.Neg(scaled); err != nil {
		return nil, err
	}
	return dec, nil
}

// buildStyleDiscriminator maps the content representation to style logits.
func buildStyleDiscriminator(gw *graphWeights, content *gorgonia.Node) (*gorgonia.Node, error) {
	hidden, err := affine(content, gw.node("sdisc_w1"), gw.node("sdisc_b1"))
	if err != nil {
		return nil, err
	}
	if hidden, err = gorgonia.Rectify(hidden); err != nil {
		return nil, err
	}
	return affine(hidden, gw.node("sdisc_w2"), gw.node("sdisc_b2"))
}

// buildContentDiscriminator maps the style representation to bag-of-words
// logits.
func buildContentDiscriminator(gw *graphWeights, style *gorgonia.Node) (*gorgonia.Node, error) {
	hidden, err := affine(style, gw.node("cdisc_w1"), gw.node("cdisc_b1"))
	if err != nil {
		return nil, err
	}
	if hidden, err = gorgonia.Rectify(hidden); err != nil {
		return nil, err
	}
	return affine(hidden, gw.node("cdisc_w2"), gw.node("cdisc_b2"))
}
