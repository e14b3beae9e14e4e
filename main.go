package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/enescakir/emoji"
)

// Manifest records what a training run produced, next to the checkpoint.
type Manifest struct {
	TextFilePath  string    `json:"text_file_path"`
	LabelFilePath string    `json:"label_file_path"`
	VocabSize     int       `json:"vocab_size"`
	NumLabels     int       `json:"num_labels"`
	MaxSeqLen     int       `json:"max_seq_len"`
	Epochs        int       `json:"epochs"`
	EmbeddingSize int       `json:"embedding_size"`
	HiddenSize    int       `json:"hidden_size"`
	ContentDim    int       `json:"content_dim"`
	StyleDim      int       `json:"style_dim"`
	TrainedAt     time.Time `json:"trained_at"`
}

func main() {
	var run RunConfig
	var seed int64

	flag.BoolVar(&run.TrainModel, "train-model", false, "Train the model")
	flag.BoolVar(&run.InferSequences, "infer-sequences", false, "Reconstruct the corpus sentences")
	flag.BoolVar(&run.GenerateNovelText, "generate-novel-text", false, "Regenerate sentences under a random label's average style")
	flag.BoolVar(&run.UsePretrained, "use-pretrained-embeddings", false, "Initialize embeddings from a word vector file")
	flag.StringVar(&run.TextFilePath, "text-file-path", "", "Path to the corpus, one sentence per line (required)")
	flag.StringVar(&run.LabelFilePath, "label-file-path", "", "Path to the labels, one integer per line (required)")
	flag.StringVar(&run.EmbeddingsFilePath, "embeddings-file-path", "", "Path to GloVe-format word vectors")
	flag.IntVar(&run.VocabSize, "vocab-size", 1000, "Maximum vocabulary size")
	flag.IntVar(&run.TrainingEpochs, "training-epochs", 10, "Number of training epochs")
	flag.StringVar(&run.OutputDir, "output-dir", "output", "Directory for checkpoints and generated text")
	flag.StringVar(&run.LoggingLevel, "logging-level", "INFO", "Logging level (INFO or DEBUG)")
	flag.Int64Var(&seed, "seed", 1337, "Random seed")
	flag.Parse()

	log := NewLogger(run.LoggingLevel, os.Stdout)

	if !run.TrainModel && !run.InferSequences && !run.GenerateNovelText {
		log.Infof("Nothing to do. Exiting ...")
		return
	}
	if run.TextFilePath == "" || run.LabelFilePath == "" {
		log.Fatalf("--text-file-path and --label-file-path are required")
	}
	if err := os.MkdirAll(run.OutputDir, 0o755); err != nil {
		log.Fatalf("creating output directory: %v", err)
	}

	fmt.Printf("%v Adversarial autoencoder for text style transfer\n", emoji.Robot)

	rng := rand.New(rand.NewSource(seed))
	if err := execute(run, rng, log); err != nil {
		log.Fatalf("%v", err)
	}
}

func execute(run RunConfig, rng *rand.Rand, log *Logger) error {
	cfg := DefaultModelConfig()

	log.Infof("Reading data ...")
	sentences, err := ReadSentences(run.TextFilePath)
	if err != nil {
		return err
	}
	labels, numLabels, err := ReadLabels(run.LabelFilePath)
	if err != nil {
		return err
	}
	log.Debugf("%d sentences, %d labels (%d classes)", len(sentences), len(labels), numLabels)

	vocabPath := filepath.Join(run.OutputDir, "vocab.json")
	checkpointPath := filepath.Join(run.OutputDir, "checkpoint.gob")
	styleEmbPath := filepath.Join(run.OutputDir, "style_embeddings.gob")
	avgEmbPath := filepath.Join(run.OutputDir, "avg_style_embeddings.gob")

	var vocab *Vocabulary
	var meta CheckpointMeta
	if run.TrainModel {
		fmt.Printf("%v Building vocabulary (max %d words) ...\n", emoji.Memo, run.VocabSize)
		vocab = BuildVocabulary(sentences, run.VocabSize)
		if err := vocab.Save(vocabPath); err != nil {
			return fmt.Errorf("saving vocabulary: %w", err)
		}
	} else {
		if vocab, err = LoadVocabulary(vocabPath); err != nil {
			return fmt.Errorf("loading vocabulary (train first?): %w", err)
		}
		if meta, err = LoadCheckpointMeta(checkpointPath); err != nil {
			return err
		}
		if meta.VocabSize != vocab.Size() {
			return fmt.Errorf("checkpoint vocab size %d does not match vocabulary %d", meta.VocabSize, vocab.Size())
		}
	}
	log.Infof("vocabulary size: %d", vocab.Size())

	data, err := BuildDataset(sentences, labels, numLabels, vocab, cfg)
	if err != nil {
		return err
	}
	if run.TrainModel {
		meta = CheckpointMeta{
			VocabSize:     vocab.Size(),
			NumLabels:     numLabels,
			MaxSeqLen:     data.MaxSeqLen,
			EmbeddingSize: cfg.EmbeddingSize,
			HiddenSize:    cfg.HiddenSize,
			ContentDim:    cfg.ContentDim,
			StyleDim:      cfg.StyleDim,
			DiscHidden:    cfg.DiscHidden,
		}
	} else {
		data.Repad(meta.MaxSeqLen)
	}
	log.Debugf("max sequence length: %d", meta.MaxSeqLen)

	encEmb := RandomEmbeddingMatrix(meta.VocabSize, meta.EmbeddingSize, rng)
	decEmb := RandomEmbeddingMatrix(meta.VocabSize, meta.EmbeddingSize, rng)
	if run.TrainModel && run.UsePretrained {
		if run.EmbeddingsFilePath == "" {
			return fmt.Errorf("--use-pretrained-embeddings needs --embeddings-file-path")
		}
		loaded, err := LoadWordVectors(run.EmbeddingsFilePath, vocab, meta.EmbeddingSize, encEmb, decEmb)
		if err != nil {
			return err
		}
		log.Infof("loaded pretrained vectors for %d of %d words", loaded, vocab.Size())
	}

	log.Infof("Building model architecture ...")
	store := NewWeights(meta, encEmb, decEmb, rng)
	if !run.TrainModel {
		if err := store.RestoreCheckpoint(checkpointPath); err != nil {
			return err
		}
	}

	if run.TrainModel {
		fmt.Printf("%v Training for %d epochs ...\n", emoji.FlexedBiceps, run.TrainingEpochs)
		trainer, err := NewTrainer(store, cfg, log, rng)
		if err != nil {
			return err
		}
		if _, err := trainer.Train(data, run.TrainingEpochs, run.OutputDir); err != nil {
			trainer.Close()
			return err
		}
		trainer.Close()

		if err := store.SaveCheckpoint(checkpointPath); err != nil {
			return err
		}
		fmt.Printf("%v Checkpoint saved to %s\n", emoji.FloppyDisk, checkpointPath)

		manifest := Manifest{
			TextFilePath:  run.TextFilePath,
			LabelFilePath: run.LabelFilePath,
			VocabSize:     meta.VocabSize,
			NumLabels:     meta.NumLabels,
			MaxSeqLen:     meta.MaxSeqLen,
			Epochs:        run.TrainingEpochs,
			EmbeddingSize: meta.EmbeddingSize,
			HiddenSize:    meta.HiddenSize,
			ContentDim:    meta.ContentDim,
			StyleDim:      meta.StyleDim,
			TrainedAt:     time.Now(),
		}
		if err := saveManifest(filepath.Join(run.OutputDir, "manifest.json"), manifest); err != nil {
			return err
		}
		log.Infof("Training complete!")
	}

	if !run.InferSequences && !run.GenerateNovelText && !run.TrainModel {
		return nil
	}

	engine, err := NewInferenceEngine(store, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if run.TrainModel {
		// Persist every example's style embedding so later generation runs
		// can rebuild the per-label averages without retraining.
		embeddings, err := engine.CollectStyleEmbeddings(data)
		if err != nil {
			return err
		}
		if err := SaveStyleEmbeddings(styleEmbPath, embeddings); err != nil {
			return err
		}
		log.Debugf("style embeddings saved to %s", styleEmbPath)
	}

	if !run.InferSequences && !run.GenerateNovelText {
		return nil
	}

	sampleSize := TruncateToBatches(data.Size(), cfg.BatchSize)
	log.Debugf("sampling range: 0-%d", sampleSize)
	suffix := TimestampSuffix()

	actual, err := FlushGroundTruth(data, sampleSize, run.OutputDir, suffix)
	if err != nil {
		return err
	}

	if run.InferSequences {
		log.Infof("Inferring test samples ...")
		seqs, lengths, err := engine.Reconstruct(data)
		if err != nil {
			return err
		}
		generated := TrimGenerated(seqs, lengths, vocab)
		if err := WriteGenerated(generated, actual, "reconstructed_sentences", run.OutputDir, suffix, log); err != nil {
			return err
		}
		log.Infof("Inference complete!")
	}

	if run.GenerateNovelText {
		log.Infof("Generating novel text ...")
		embeddings, err := LoadStyleEmbeddings(styleEmbPath)
		if err != nil {
			return fmt.Errorf("loading style embeddings (train first?): %w", err)
		}
		avgEmbeddings := AverageLabelEmbeddings(embeddings, data.Labels, cfg.BatchSize)
		if err := SaveAverageEmbeddings(avgEmbPath, avgEmbeddings); err != nil {
			return err
		}

		label := rng.Intn(numLabels) + 1
		style, ok := avgEmbeddings[label]
		if !ok {
			return fmt.Errorf("no style embedding for label %d", label)
		}
		log.Debugf("style chosen: %d", label)

		seqs, lengths, err := engine.GenerateNovel(data, style)
		if err != nil {
			return err
		}
		generated := TrimGenerated(seqs, lengths, vocab)
		if err := WriteGenerated(generated, actual, "novel_sentences", run.OutputDir, suffix, log); err != nil {
			return err
		}
		fmt.Printf("%v Generation complete!\n", emoji.Sparkles)
	}
	return nil
}

func saveManifest(path string, m Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
