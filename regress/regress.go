// Package regress runs end-to-end training scenarios
// whose outcomes are compared against golden values.
//
// A single random source, seeded once, is threaded
// through every step in a fixed order: simulate, encode,
// split, augment, shuffle, build, train, and test.
// Changing that order changes every downstream value.
package regress

import (
	"errors"
	"math/rand"
	"strings"

	"github.com/Wainberg/dragonn"
	"github.com/Wainberg/dragonn/golden"
	"github.com/Wainberg/dragonn/metrics"
	"github.com/Wainberg/dragonn/simdna"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

var errNoSequences = errors.New("simulation produced no sequences")

// Config stores the data and training settings shared by
// all scenarios.
type Config struct {
	Seed         int64
	Motif        string
	SeqLength    int
	NumSequences int
	NumPositives int
	GCFraction   float64
	TestFraction float64
	NumEpochs    int
}

// DefaultConfig returns the standard regression settings.
func DefaultConfig() Config {
	return Config{
		Seed:         1,
		Motif:        "SPI1_disc1",
		SeqLength:    100,
		NumSequences: 200,
		NumPositives: 100,
		GCFraction:   0.4,
		TestFraction: 0.2,
		NumEpochs:    1,
	}
}

// A Scenario selects a model architecture.
type Scenario struct {
	Label      string
	UseDeepCNN bool
	UseRNN     bool
}

// These are the standard scenarios.
var (
	ShallowCNN = Scenario{Label: "Shallow CNN"}
	DeepCNN    = Scenario{Label: "Deep CNN", UseDeepCNN: true}
	ShallowRNN = Scenario{Label: "Shallow RNN", UseRNN: true}
	DeepRNN    = Scenario{Label: "Deep RNN", UseDeepCNN: true, UseRNN: true}
)

// Scenarios lists every standard scenario.
func Scenarios() []Scenario {
	return []Scenario{ShallowCNN, DeepCNN, ShallowRNN, DeepRNN}
}

// LookupScenario finds a standard scenario by label or by
// golden file stem, such as "Deep CNN" or "deep_cnn".
func LookupScenario(name string) (Scenario, bool) {
	for _, s := range Scenarios() {
		stem := strings.TrimSuffix(golden.Filename(s.Label), ".json")
		if strings.EqualFold(name, s.Label) || strings.EqualFold(name, stem) {
			return s, true
		}
	}
	return Scenario{}, false
}

// Hyperparameters returns the model settings for the
// scenario.
func (s Scenario) Hyperparameters(cfg Config) dragonn.Hyperparameters {
	h := dragonn.DefaultHyperparameters()
	h.SeqLength = cfg.SeqLength
	h.UseRNN = s.UseRNN
	h.NumFilters = []int{45}
	h.ConvWidth = []int{10}
	h.PoolWidth = 25
	h.L1 = 0
	h.Dropout = 0.2
	h.NumEpochs = cfg.NumEpochs
	if s.UseDeepCNN {
		h.NumFilters = []int{45, 50, 50}
		h.ConvWidth = []int{10, 8, 5}
	}
	if s.UseRNN {
		h.GRUSize = 35
		h.TDDSize = 45
	}
	return h
}

// An Outcome is the result of running a scenario.
type Outcome struct {
	Label         string
	FirstSequence string
	Result        metrics.Result
	NumTrain      int
	NumTest       int

	Model *dragonn.SequenceDNN
}

// Run executes a scenario from scratch.
//
// The opts argument may be nil.
func Run(c anyvec.Creator, cfg Config, s Scenario, opts *dragonn.TrainOptions) (*Outcome, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))

	data, err := simdna.SimulateSingleMotifDetection(rng, cfg.Motif, cfg.SeqLength,
		cfg.NumPositives, cfg.NumSequences-cfg.NumPositives, cfg.GCFraction)
	if err != nil {
		return nil, essentials.AddCtx("run "+s.Label, err)
	}
	if data.Len() == 0 {
		return nil, essentials.AddCtx("run "+s.Label, errNoSequences)
	}
	encoded, err := dragonn.NewDataset(c, data.Sequences, data.Labels)
	if err != nil {
		return nil, essentials.AddCtx("run "+s.Label, err)
	}

	train, test, err := dragonn.TrainTestSplit(rng, encoded, cfg.TestFraction)
	if err != nil {
		return nil, essentials.AddCtx("run "+s.Label, err)
	}
	train = dragonn.AugmentReverseComplement(train)
	dragonn.Shuffle(rng, train)

	model, err := dragonn.NewSequenceDNN(c, s.Hyperparameters(cfg), rng)
	if err != nil {
		return nil, essentials.AddCtx("run "+s.Label, err)
	}
	if err := model.Train(train, test, opts); err != nil {
		return nil, essentials.AddCtx("run "+s.Label, err)
	}
	res, err := model.Test(test)
	if err != nil {
		return nil, essentials.AddCtx("run "+s.Label, err)
	}

	return &Outcome{
		Label:         s.Label,
		FirstSequence: data.Sequences[0],
		Result:        res.Results[0],
		NumTrain:      train.Len() / 2,
		NumTest:       test.Len(),
		Model:         model,
	}, nil
}

// Snapshot converts the outcome into a golden snapshot.
func (o *Outcome) Snapshot() *golden.Snapshot {
	return &golden.Snapshot{
		Label:         o.Label,
		FirstSequence: o.FirstSequence,
		Results:       append(metrics.Result{}, o.Result...),
	}
}

// Check compares the outcome to a golden snapshot.
func (o *Outcome) Check(g *golden.Snapshot) error {
	return g.Check(o.FirstSequence, o.Result)
}
