package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/apoorvam/goterminal"
)

// EpochMetrics is one row of the per-epoch training record.
type EpochMetrics struct {
	Epoch           int     `json:"epoch"`
	TotalLoss       float64 `json:"total_loss"`
	RecLoss         float64 `json:"reconstruction_loss"`
	StyleDiscLoss   float64 `json:"style_discriminator_loss"`
	ContentDiscLoss float64 `json:"content_discriminator_loss"`
	KLWeight        float64 `json:"kl_weight"`
}

type TrainingMetrics struct {
	Epochs []EpochMetrics `json:"epochs"`
}

// Trainer owns the three training graphs and their optimizers. Batches are
// strictly sequential; every step runs the style discriminator, then the
// content discriminator, then the autoencoder, in that fixed order.
type Trainer struct {
	store *Weights
	cfg   ModelConfig
	log   *Logger
	rng   *rand.Rand

	ae          *AutoencoderGraph
	styleDisc   *DiscriminatorGraph
	contentDisc *DiscriminatorGraph

	step int
}

func NewTrainer(store *Weights, cfg ModelConfig, log *Logger, rng *rand.Rand) (*Trainer, error) {
	batch, steps := cfg.BatchSize, store.Meta.MaxSeqLen

	styleDisc, err := buildDiscriminatorGraph(store, cfg, batch, steps, true)
	if err != nil {
		return nil, fmt.Errorf("building style discriminator graph: %w", err)
	}
	contentDisc, err := buildDiscriminatorGraph(store, cfg, batch, steps, false)
	if err != nil {
		styleDisc.Close()
		return nil, fmt.Errorf("building content discriminator graph: %w", err)
	}
	ae, err := buildAutoencoderGraph(store, cfg, batch, steps)
	if err != nil {
		styleDisc.Close()
		contentDisc.Close()
		return nil, fmt.Errorf("building autoencoder graph: %w", err)
	}

	return &Trainer{
		store:       store,
		cfg:         cfg,
		log:         log,
		rng:         rng,
		ae:          ae,
		styleDisc:   styleDisc,
		contentDisc: contentDisc,
	}, nil
}

// Close releases every tape machine. Safe to call once on any exit path.
func (t *Trainer) Close() {
	t.ae.Close()
	t.styleDisc.Close()
	t.contentDisc.Close()
}

// invalidLoss reports whether a loss value means training state can no
// longer be trusted.
func invalidLoss(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// klAnnealWeight ramps linearly from 0 to 1 over annealSteps training steps.
func klAnnealWeight(step, annealSteps int) float32 {
	if annealSteps <= 0 || step >= annealSteps {
		return 1
	}
	return float32(step) / float32(annealSteps)
}

func (t *Trainer) klWeight() float32 {
	return klAnnealWeight(t.step, t.cfg.KLAnnealSteps)
}

// Train runs the configured number of epochs over the dataset. A NaN or Inf
// loss is fatal: training state past the last checkpoint cannot be trusted,
// so the error is returned for the caller to restart from a checkpoint.
func (t *Trainer) Train(data *Dataset, epochs int, outputDir string) (*TrainingMetrics, error) {
	batches := data.Batches(t.cfg.BatchSize)
	if len(batches) == 0 {
		return nil, fmt.Errorf("dataset of %d examples yields no batches of size %d", data.Size(), t.cfg.BatchSize)
	}
	t.log.Infof("%d batches per epoch (%d of %d examples used)",
		len(batches), len(batches)*t.cfg.BatchSize, data.Size())

	meta := t.store.Meta
	progress := goterminal.New(os.Stdout)
	metrics := &TrainingMetrics{}

	for epoch := 0; epoch < epochs; epoch++ {
		var totalSum, recSum, sdSum, cdSum float64

		for i, batch := range batches {
			sdLoss, err := t.styleDisc.Step(batch, meta)
			if err != nil {
				return metrics, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
			}
			cdLoss, err := t.contentDisc.Step(batch, meta)
			if err != nil {
				return metrics, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
			}
			if invalidLoss(sdLoss) || invalidLoss(cdLoss) {
				return metrics, fmt.Errorf("epoch %d batch %d: discriminator loss is invalid (sdisc=%v cdisc=%v), restart from last checkpoint", epoch, i, sdLoss, cdLoss)
			}
			res, err := t.ae.Step(batch, meta, t.klWeight(), t.rng)
			if err != nil {
				return metrics, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
			}
			t.step++

			if invalidLoss(res.Total) {
				return metrics, fmt.Errorf("epoch %d batch %d: loss is %v, restart from last checkpoint", epoch, i, res.Total)
			}

			totalSum += res.Total
			recSum += res.Rec
			sdSum += sdLoss
			cdSum += cdLoss

			fmt.Fprintf(progress, "epoch %d/%d  batch %d/%d  rec=%.4f  sdisc=%.4f  cdisc=%.4f\n",
				epoch+1, epochs, i+1, len(batches), res.Rec, sdLoss, cdLoss)
			progress.Print()
			progress.Clear()
		}
		progress.Reset()

		n := float64(len(batches))
		em := EpochMetrics{
			Epoch:           epoch,
			TotalLoss:       totalSum / n,
			RecLoss:         recSum / n,
			StyleDiscLoss:   sdSum / n,
			ContentDiscLoss: cdSum / n,
			KLWeight:        float64(t.klWeight()),
		}
		metrics.Epochs = append(metrics.Epochs, em)
		t.log.Infof("epoch %d: total=%.4f rec=%.4f sdisc=%.4f cdisc=%.4f kl_w=%.3f",
			epoch, em.TotalLoss, em.RecLoss, em.StyleDiscLoss, em.ContentDiscLoss, em.KLWeight)
	}

	if outputDir != "" {
		path := filepath.Join(outputDir, "metrics.json")
		if err := saveMetricsJSON(path, metrics); err != nil {
			t.log.Infof("failed to save metrics: %v", err)
		} else {
			t.log.Debugf("metrics saved to %s", path)
		}
	}
	return metrics, nil
}

func saveMetricsJSON(path string, metrics *TrainingMetrics) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(metrics)
}
