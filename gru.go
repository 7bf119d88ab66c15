package dragonn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

func init() {
	var g GRU
	serializer.RegisterTypedDeserializer(g.SerializerType(), DeserializeGRU)
	var t TimeDistributed
	serializer.RegisterTypedDeserializer(t.SerializerType(), DeserializeTimeDistributed)
}

// A GRUGate is one of the three affine transforms in a
// GRU.
type GRUGate struct {
	InputWeights *anydiff.Var
	StateWeights *anydiff.Var
	Biases       *anydiff.Var
}

func newGRUGate(c anyvec.Creator, rng *rand.Rand, in, out int) *GRUGate {
	res := &GRUGate{
		InputWeights: anydiff.NewVar(c.MakeVector(in * out)),
		StateWeights: anydiff.NewVar(c.MakeVector(out * out)),
		Biases:       anydiff.NewVar(c.MakeVector(out)),
	}
	anyvec.Rand(res.InputWeights.Vector, anyvec.Normal, rng)
	anyvec.Rand(res.StateWeights.Vector, anyvec.Normal, rng)
	res.InputWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(in))))
	res.StateWeights.Vector.Scale(c.MakeNumeric(1 / math.Sqrt(float64(out))))
	return res
}

func (g *GRUGate) apply(in, state anydiff.Res, inCount, outCount int) anydiff.Res {
	wIn := applyWeights(inCount, outCount, g.InputWeights, in)
	wState := applyWeights(outCount, outCount, g.StateWeights, state)
	return anydiff.AddRepeated(anydiff.Add(wIn, wState), g.Biases)
}

func (g *GRUGate) parameters() []*anydiff.Var {
	return []*anydiff.Var{g.InputWeights, g.StateWeights, g.Biases}
}

// GRU is a gated recurrent unit.
//
// A GRU is an anyrnn.Block, and it is also an anynet.Layer
// which runs the block over the positions of a row-major
// depth-minor tensor and returns the state at every
// position.
// As a layer, the input for each sample is a Steps x
// InCount tensor, and the output is a Steps x OutCount
// tensor.
//
// The state is computed as
//
//     z := sigmoid(Update(x, h))
//     r := sigmoid(Reset(x, h))
//     c := tanh(Candidate(x, r*h))
//     h' := z*h + (1-z)*c
//
// where the start state is zero.
type GRU struct {
	InCount  int
	OutCount int
	Steps    int

	Update    *GRUGate
	Reset     *GRUGate
	Candidate *GRUGate
}

// NewGRU creates a randomized GRU.
func NewGRU(c anyvec.Creator, rng *rand.Rand, in, out, steps int) *GRU {
	return &GRU{
		InCount:   in,
		OutCount:  out,
		Steps:     steps,
		Update:    newGRUGate(c, rng, in, out),
		Reset:     newGRUGate(c, rng, in, out),
		Candidate: newGRUGate(c, rng, in, out),
	}
}

// DeserializeGRU deserializes a GRU.
func DeserializeGRU(d []byte) (*GRU, error) {
	var steps serializer.Int
	var vecs [9]*anyvecsave.S
	args := []interface{}{&steps}
	for i := range vecs {
		args = append(args, &vecs[i])
	}
	if err := serializer.DeserializeAny(d, args...); err != nil {
		return nil, essentials.AddCtx("deserialize GRU", err)
	}
	var gates [3]*GRUGate
	for i := range gates {
		gates[i] = &GRUGate{
			InputWeights: anydiff.NewVar(vecs[i*3].Vector),
			StateWeights: anydiff.NewVar(vecs[i*3+1].Vector),
			Biases:       anydiff.NewVar(vecs[i*3+2].Vector),
		}
	}
	out := gates[0].Biases.Vector.Len()
	if out == 0 || gates[0].StateWeights.Vector.Len() != out*out {
		return nil, errors.New("deserialize GRU: invalid state matrix size")
	}
	in := gates[0].InputWeights.Vector.Len() / out
	return &GRU{
		InCount:   in,
		OutCount:  out,
		Steps:     int(steps),
		Update:    gates[0],
		Reset:     gates[1],
		Candidate: gates[2],
	}, nil
}

// Start returns a zero start state.
func (g *GRU) Start(n int) anyrnn.State {
	return g.block().Start(n)
}

// PropagateStart does nothing, since the start state is
// constant.
func (g *GRU) PropagateStart(s anyrnn.StateGrad, grad anydiff.Grad) {
	g.block().PropagateStart(s, grad)
}

// Step performs one timestep.
func (g *GRU) Step(s anyrnn.State, in anyvec.Vector) anyrnn.Res {
	return g.block().Step(s, in)
}

// Apply maps the block over the positions of each sample
// in a batch.
func (g *GRU) Apply(in anydiff.Res, n int) anydiff.Res {
	if in.Output().Len() != n*g.Steps*g.InCount {
		panic(fmt.Sprintf("input length should be %d, but got %d",
			n*g.Steps*g.InCount, in.Output().Len()))
	}
	c := in.Output().Creator()
	seq := anyseq.PoolFromVec(in, func(in anydiff.Res) anyseq.Seq {
		present := make([]bool, n)
		for i := range present {
			present[i] = true
		}
		var steps []*anyseq.ResBatch
		for t := 0; t < g.Steps; t++ {
			steps = append(steps, &anyseq.ResBatch{
				Packed:  gatherStep(in, n, g.Steps, g.InCount, t),
				Present: present,
			})
		}
		return anyseq.ResSeq(c, steps)
	})
	return newSeqTensor(anyrnn.Map(seq, g), n)
}

// Parameters returns the parameters of the update, reset,
// and candidate gates, in that order.
func (g *GRU) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	for _, gate := range []*GRUGate{g.Update, g.Reset, g.Candidate} {
		res = append(res, gate.parameters()...)
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a GRU with the serializer package.
func (g *GRU) SerializerType() string {
	return "github.com/Wainberg/dragonn.GRU"
}

// Serialize serializes the GRU.
func (g *GRU) Serialize() ([]byte, error) {
	args := []interface{}{serializer.Int(g.Steps)}
	for _, p := range g.Parameters() {
		args = append(args, &anyvecsave.S{Vector: p.Vector})
	}
	return serializer.SerializeAny(args...)
}

func (g *GRU) block() *anyrnn.FuncBlock {
	c := g.Update.Biases.Vector.Creator()
	return &anyrnn.FuncBlock{
		Func: func(x, state anydiff.Res, n int) (out, newState anydiff.Res) {
			return nil, g.step(x, state)
		},
		MakeStart: func(n int) anydiff.Res {
			return anydiff.NewConst(c.MakeVector(n * g.OutCount))
		},
	}
}

func (g *GRU) step(x, state anydiff.Res) anydiff.Res {
	update := anydiff.Sigmoid(g.Update.apply(x, state, g.InCount, g.OutCount))
	reset := anydiff.Sigmoid(g.Reset.apply(x, state, g.InCount, g.OutCount))
	candidate := anydiff.Tanh(g.Candidate.apply(x, anydiff.Mul(reset, state),
		g.InCount, g.OutCount))
	return anydiff.Pool(update, func(update anydiff.Res) anydiff.Res {
		return anydiff.Add(
			anydiff.Mul(update, state),
			anydiff.Mul(anydiff.Complement(update), candidate),
		)
	})
}

// A TimeDistributed layer applies a layer separately to
// every position of a row-major depth-minor tensor.
type TimeDistributed struct {
	Steps int
	Layer anynet.Layer
}

// DeserializeTimeDistributed deserializes a
// TimeDistributed layer.
func DeserializeTimeDistributed(d []byte) (*TimeDistributed, error) {
	var steps serializer.Int
	var layer anynet.Layer
	if err := serializer.DeserializeAny(d, &steps, &layer); err != nil {
		return nil, essentials.AddCtx("deserialize TimeDistributed", err)
	}
	return &TimeDistributed{Steps: int(steps), Layer: layer}, nil
}

// Apply applies the wrapped layer with a batch size of
// n*t.Steps.
func (t *TimeDistributed) Apply(in anydiff.Res, n int) anydiff.Res {
	return t.Layer.Apply(in, n*t.Steps)
}

// Parameters returns the wrapped layer's parameters.
func (t *TimeDistributed) Parameters() []*anydiff.Var {
	if p, ok := t.Layer.(anynet.Parameterizer); ok {
		return p.Parameters()
	}
	return nil
}

// SerializerType returns the unique ID used to serialize
// a TimeDistributed with the serializer package.
func (t *TimeDistributed) SerializerType() string {
	return "github.com/Wainberg/dragonn.TimeDistributed"
}

// Serialize serializes the layer.
// The wrapped layer must be a serializer.Serializer.
func (t *TimeDistributed) Serialize() ([]byte, error) {
	s, ok := t.Layer.(serializer.Serializer)
	if !ok {
		return nil, fmt.Errorf("not a Serializer: %T", t.Layer)
	}
	return serializer.SerializeAny(serializer.Int(t.Steps), s)
}

// gatherStep extracts the rows at position t from a batch
// of n sample-major tensors.
func gatherStep(in anydiff.Res, n, steps, depth, t int) anydiff.Res {
	var rows []anydiff.Res
	for i := 0; i < n; i++ {
		start := (i*steps + t) * depth
		rows = append(rows, anydiff.Slice(in, start, start+depth))
	}
	return anydiff.Concat(rows...)
}

// seqTensorRes packs a batch of equal-length sequences
// into a sample-major [n][steps][depth] tensor.
type seqTensorRes struct {
	In     anyseq.Seq
	N      int
	OutVec anyvec.Vector
}

func newSeqTensor(s anyseq.Seq, n int) *seqTensorRes {
	batches := s.Output()
	depth := batches[0].Packed.Len() / n
	var parts []anyvec.Vector
	for i := 0; i < n; i++ {
		for _, b := range batches {
			parts = append(parts, b.Packed.Slice(i*depth, (i+1)*depth))
		}
	}
	return &seqTensorRes{In: s, N: n, OutVec: s.Creator().Concat(parts...)}
}

func (s *seqTensorRes) Output() anyvec.Vector {
	return s.OutVec
}

func (s *seqTensorRes) Vars() anydiff.VarSet {
	return s.In.Vars()
}

func (s *seqTensorRes) Propagate(u anyvec.Vector, g anydiff.Grad) {
	batches := s.In.Output()
	steps := len(batches)
	depth := u.Len() / (s.N * steps)
	upstream := make([]*anyseq.Batch, steps)
	for t, b := range batches {
		var parts []anyvec.Vector
		for i := 0; i < s.N; i++ {
			start := (i*steps + t) * depth
			parts = append(parts, u.Slice(start, start+depth))
		}
		upstream[t] = &anyseq.Batch{
			Packed:  u.Creator().Concat(parts...),
			Present: b.Present,
		}
	}
	s.In.Propagate(upstream, g)
}

func applyWeights(in, out int, weights anydiff.Res, batch anydiff.Res) anydiff.Res {
	weightMat := &anydiff.Matrix{Data: weights, Rows: out, Cols: in}
	inMat := &anydiff.Matrix{Data: batch, Rows: batch.Output().Len() / in, Cols: in}
	return anydiff.MatMul(false, true, inMat, weightMat).Data
}
