package main

// ModelConfig fixes the architecture and loss weighting of the adversarial
// autoencoder. It is built once in main and passed by value; nothing mutates
// it after construction.
type ModelConfig struct {
	EmbeddingSize int
	HiddenSize    int
	ContentDim    int
	StyleDim      int
	DiscHidden    int

	BatchSize int
	MaxSeqLen int

	LearningRate float64
	GradClip     float64

	// Loss coefficients. The adversary weights enter the autoencoder
	// objective negated; the multitask (mutual-information) weights enter
	// positive.
	StyleKLWeight          float32
	ContentKLWeight        float32
	StyleAdvWeight         float32
	ContentAdvWeight       float32
	StyleMultitaskWeight   float32
	ContentMultitaskWeight float32

	// KL coefficients ramp linearly from 0 to their ceiling over this many
	// training steps.
	KLAnnealSteps int

	DropoutKeep float32
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		EmbeddingSize: 300,
		HiddenSize:    256,
		ContentDim:    128,
		StyleDim:      8,
		DiscHidden:    128,

		BatchSize: 32,
		MaxSeqLen: 20,

		LearningRate: 1e-3,
		GradClip:     5.0,

		StyleKLWeight:          0.03,
		ContentKLWeight:        0.03,
		StyleAdvWeight:         1.0,
		ContentAdvWeight:       0.03,
		StyleMultitaskWeight:   10.0,
		ContentMultitaskWeight: 3.0,

		KLAnnealSteps: 20000,

		DropoutKeep: 1.0,
	}
}

// RunConfig is everything the CLI selects: what to do and where the data is.
type RunConfig struct {
	TrainModel        bool
	InferSequences    bool
	GenerateNovelText bool

	TextFilePath       string
	LabelFilePath      string
	EmbeddingsFilePath string
	UsePretrained      bool

	VocabSize      int
	TrainingEpochs int

	OutputDir    string
	LoggingLevel string
}
