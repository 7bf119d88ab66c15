package dragonn

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"github.com/Wainberg/dragonn/dna"
	"github.com/Wainberg/dragonn/metrics"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyconv"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var s SequenceDNN
	serializer.RegisterTypedDeserializer(s.SerializerType(), DeserializeSequenceDNN)
}

// A SequenceDNN classifies one-hot encoded sequences.
//
// The network consists of convolutional layers (each
// followed by a ReLU and dropout), a max-pooling layer,
// an optional GRU with a per-position dense layer, and a
// final dense layer with one logit per task.
type SequenceDNN struct {
	Hyperparameters Hyperparameters
	Net             anynet.Net

	// TrainMetrics and ValidMetrics store the metrics after
	// every training epoch.
	TrainMetrics []*metrics.ClassificationResult
	ValidMetrics []*metrics.ClassificationResult

	rand *rand.Rand
}

// NewSequenceDNN creates a randomly initialized model.
//
// The rng is used to initialize weights and is kept for
// dropout masks and shuffling during training.
func NewSequenceDNN(c anyvec.Creator, h Hyperparameters, rng *rand.Rand) (*SequenceDNN, error) {
	if err := h.Validate(); err != nil {
		return nil, essentials.AddCtx("new SequenceDNN", err)
	}
	var net anynet.Net
	width := h.SeqLength
	depth := dna.Depth
	for i, numFilters := range h.NumFilters {
		conv := &anyconv.Conv{
			FilterCount:  numFilters,
			FilterWidth:  h.ConvWidth[i],
			FilterHeight: 1,
			StrideX:      1,
			StrideY:      1,
			InputWidth:   width,
			InputHeight:  1,
			InputDepth:   depth,
		}
		conv.InitZero(c)
		anyvec.Rand(conv.Filters.Vector, anyvec.Normal, rng)
		conv.Filters.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(conv.FilterWidth*depth))))
		net = append(net, conv, anynet.ReLU, &Dropout{KeepProb: 1 - h.Dropout, Rand: rng})
		width = conv.OutputWidth()
		depth = conv.OutputDepth()
	}

	pool := &anyconv.MaxPool{
		SpanX:       h.PoolWidth,
		SpanY:       1,
		StrideX:     h.PoolWidth,
		StrideY:     1,
		InputWidth:  width,
		InputHeight: 1,
		InputDepth:  depth,
	}
	net = append(net, pool)
	width = pool.OutputWidth()

	if h.UseRNN {
		net = append(net,
			NewGRU(c, rng, depth, h.GRUSize, width),
			&TimeDistributed{Steps: width, Layer: newFC(c, rng, h.GRUSize, h.TDDSize)},
			anynet.ReLU,
		)
		depth = h.TDDSize
	}
	net = append(net, newFC(c, rng, width*depth, h.NumTasks))

	return &SequenceDNN{Hyperparameters: h, Net: net, rand: rng}, nil
}

// DeserializeSequenceDNN deserializes a SequenceDNN.
//
// The resulting model uses a time-seeded random source;
// use SetRand to make it deterministic.
func DeserializeSequenceDNN(d []byte) (*SequenceDNN, error) {
	var hData serializer.Bytes
	var net anynet.Net
	if err := serializer.DeserializeAny(d, &hData, &net); err != nil {
		return nil, essentials.AddCtx("deserialize SequenceDNN", err)
	}
	var h Hyperparameters
	if err := json.Unmarshal(hData, &h); err != nil {
		return nil, essentials.AddCtx("deserialize SequenceDNN", err)
	}
	res := &SequenceDNN{Hyperparameters: h, Net: net}
	res.SetRand(rand.New(rand.NewSource(rand.Int63())))
	return res, nil
}

// LoadSequenceDNN loads a model saved with Save.
func LoadSequenceDNN(path string) (*SequenceDNN, error) {
	var res *SequenceDNN
	if err := serializer.LoadAny(path, &res); err != nil {
		return nil, essentials.AddCtx("load SequenceDNN", err)
	}
	return res, nil
}

// Save saves the model's hyperparameters and weights.
// Training history is not saved.
func (s *SequenceDNN) Save(path string) error {
	if err := serializer.SaveAny(path, s); err != nil {
		return essentials.AddCtx("save SequenceDNN", err)
	}
	return nil
}

// SetRand sets the random source used for dropout and
// shuffling.
func (s *SequenceDNN) SetRand(rng *rand.Rand) {
	s.rand = rng
	for _, d := range s.dropouts() {
		d.Rand = rng
	}
}

// Parameters returns the learnable parameters.
func (s *SequenceDNN) Parameters() []*anydiff.Var {
	return s.Net.Parameters()
}

// Predict computes the probability of each task for
// every input.
func (s *SequenceDNN) Predict(inputs []anyvec.Vector) [][]float64 {
	s.setTraining(false)
	var res [][]float64
	bs := s.Hyperparameters.BatchSize
	for i := 0; i < len(inputs); i += bs {
		end := essentials.MinInt(i+bs, len(inputs))
		batch := inputs[i:end]
		joined := batch[0].Creator().Concat(batch...)
		out := vecFloats(s.Net.Apply(anydiff.NewConst(joined), len(batch)).Output())
		numTasks := len(out) / len(batch)
		for j := range batch {
			probs := make([]float64, numTasks)
			for k := range probs {
				probs[k] = sigmoid(out[j*numTasks+k])
			}
			res = append(res, probs)
		}
	}
	return res
}

// Test evaluates the model on a dataset.
func (s *SequenceDNN) Test(d *Dataset) (*metrics.ClassificationResult, error) {
	if err := checkDataset(d, &s.Hyperparameters); err != nil {
		return nil, essentials.AddCtx("test", err)
	}
	return metrics.Evaluate(d.Labels, s.Predict(d.Inputs))
}

// Score evaluates a single metric, averaged over tasks.
func (s *SequenceDNN) Score(d *Dataset, metric string) (float64, error) {
	res, err := s.Test(d)
	if err != nil {
		return 0, err
	}
	if _, ok := res.Results[0].Get(metric); !ok {
		return 0, fmt.Errorf("score: unknown metric %q", metric)
	}
	return res.Mean(metric), nil
}

// InSilicoMutagenesis measures the effect of every single
// base substitution on the model's predictions.
//
// The result is indexed by sample, task, position, and
// base (in dna.Alphabet order), and gives the predicted
// probability of the mutant minus that of the original.
// Substituting a base with itself yields zero.
func (s *SequenceDNN) InSilicoMutagenesis(inputs []anyvec.Vector) [][][][]float64 {
	res := make([][][][]float64, len(inputs))
	for i, in := range inputs {
		c := in.Creator()
		orig := vecFloats(in)
		length := len(orig) / dna.Depth
		mutants := make([]anyvec.Vector, 0, length*dna.Depth)
		for pos := 0; pos < length; pos++ {
			for base := 0; base < dna.Depth; base++ {
				m := append([]float64{}, orig...)
				for j := 0; j < dna.Depth; j++ {
					m[pos*dna.Depth+j] = 0
				}
				m[pos*dna.Depth+base] = 1
				mutants = append(mutants, c.MakeVectorData(c.MakeNumericList(m)))
			}
		}
		basePreds := s.Predict([]anyvec.Vector{in})[0]
		mutantPreds := s.Predict(mutants)

		res[i] = make([][][]float64, len(basePreds))
		for task, basePred := range basePreds {
			grid := make([][]float64, length)
			for pos := range grid {
				grid[pos] = make([]float64, dna.Depth)
				for base := range grid[pos] {
					grid[pos][base] = mutantPreds[pos*dna.Depth+base][task] - basePred
				}
			}
			res[i][task] = grid
		}
	}
	return res
}

// SequenceFilters returns the filters of the first
// convolutional layer, indexed by filter, position, and
// base.
func (s *SequenceDNN) SequenceFilters() [][][dna.Depth]float64 {
	conv := s.Net[0].(*anyconv.Conv)
	data := vecFloats(conv.Filters.Vector)
	res := make([][][dna.Depth]float64, conv.FilterCount)
	filterSize := conv.FilterWidth * dna.Depth
	for i := range res {
		res[i] = make([][dna.Depth]float64, conv.FilterWidth)
		for x := range res[i] {
			copy(res[i][x][:], data[i*filterSize+x*dna.Depth:])
		}
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a SequenceDNN with the serializer package.
func (s *SequenceDNN) SerializerType() string {
	return "github.com/Wainberg/dragonn.SequenceDNN"
}

// Serialize serializes the hyperparameters and network.
func (s *SequenceDNN) Serialize() ([]byte, error) {
	hData, err := json.Marshal(s.Hyperparameters)
	if err != nil {
		return nil, err
	}
	return serializer.SerializeAny(serializer.Bytes(hData), s.Net)
}

func (s *SequenceDNN) dropouts() []*Dropout {
	var res []*Dropout
	for _, layer := range s.Net {
		if d, ok := layer.(*Dropout); ok {
			res = append(res, d)
		}
	}
	return res
}

func (s *SequenceDNN) setTraining(training bool) {
	for _, d := range s.dropouts() {
		d.Enabled = training
	}
}

func (s *SequenceDNN) convParameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, layer := range s.Net {
		if conv, ok := layer.(*anyconv.Conv); ok {
			res = append(res, conv.Parameters()...)
		}
	}
	return res
}

func newFC(c anyvec.Creator, rng *rand.Rand, in, out int) *anynet.FC {
	res := anynet.NewFCZero(c, in, out)
	anyvec.Rand(res.Weights.Vector, anyvec.Normal, rng)
	res.Weights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	return res
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
