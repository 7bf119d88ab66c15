package dragonn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anydiff/anydifftest"
	"github.com/unixpickle/anydiff/anyseq"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/serializer"
)

func TestGRUOutputSize(t *testing.T) {
	c := anyvec64.CurrentCreator()
	g := NewGRU(c, rand.New(rand.NewSource(1)), 3, 2, 4)
	in := c.MakeVector(2 * 4 * 3)
	out := g.Apply(anydiff.NewConst(in), 2).Output()
	if out.Len() != 2*4*2 {
		t.Fatalf("expected %d outputs but got %d", 2*4*2, out.Len())
	}
	if len(g.Parameters()) != 9 {
		t.Errorf("expected 9 parameters but got %d", len(g.Parameters()))
	}
}

func TestGRUBatchIndependence(t *testing.T) {
	c := anyvec64.CurrentCreator()
	rng := rand.New(rand.NewSource(2))
	g := NewGRU(c, rng, 3, 2, 4)
	anyvec.Rand(g.Update.Biases.Vector, anyvec.Normal, rng)
	anyvec.Rand(g.Candidate.Biases.Vector, anyvec.Normal, rng)

	samples := make([]anyvec.Vector, 3)
	for i := range samples {
		samples[i] = c.MakeVector(4 * 3)
		anyvec.Rand(samples[i], anyvec.Normal, rng)
	}
	joined := g.Apply(anydiff.NewConst(c.Concat(samples...)), 3).Output()
	joinedData := joined.Data().([]float64)
	for i, sample := range samples {
		single := g.Apply(anydiff.NewConst(sample), 1).Output().Data().([]float64)
		for j, x := range single {
			y := joinedData[i*len(single)+j]
			if math.Abs(x-y) > 1e-9 {
				t.Errorf("sample %d component %d: expected %f but got %f", i, j, x, y)
			}
		}
	}
}

func TestGRUBlock(t *testing.T) {
	c := anyvec64.CurrentCreator()
	rng := rand.New(rand.NewSource(4))
	g := NewGRU(c, rng, 3, 2, 4)
	var _ anyrnn.Block = g

	seqs := make([][]anyvec.Vector, 2)
	var packed []anyvec.Vector
	for i := range seqs {
		for j := 0; j < 4; j++ {
			v := c.MakeVector(3)
			anyvec.Rand(v, anyvec.Normal, rng)
			seqs[i] = append(seqs[i], v)
			packed = append(packed, v)
		}
	}
	layerOut := g.Apply(anydiff.NewConst(c.Concat(packed...)), 2).Output().Data().([]float64)

	mapped := anyseq.SeparateSeqs(anyrnn.Map(anyseq.ConstSeqList(c, seqs), g).Output())
	for i, seq := range mapped {
		if len(seq) != 4 {
			t.Fatalf("sequence %d: expected 4 steps but got %d", i, len(seq))
		}
		for j, v := range seq {
			for k, x := range v.Data().([]float64) {
				y := layerOut[(i*4+j)*2+k]
				if math.Abs(x-y) > 1e-9 {
					t.Errorf("seq %d step %d: expected %f but got %f", i, j, x, y)
				}
			}
		}
	}

	// Shorter sequences in the same batch must match
	// running them alone.
	ragged := [][]anyvec.Vector{seqs[0][:2], seqs[1]}
	out := anyseq.SeparateSeqs(anyrnn.Map(anyseq.ConstSeqList(c, ragged), g).Output())
	alone := anyseq.SeparateSeqs(anyrnn.Map(anyseq.ConstSeqList(c, ragged[:1]), g).Output())
	if len(out[0]) != 2 || len(out[1]) != 4 {
		t.Fatalf("unexpected lengths: %d, %d", len(out[0]), len(out[1]))
	}
	for j, v := range alone[0] {
		x := v.Data().([]float64)
		y := out[0][j].Data().([]float64)
		for k := range x {
			if math.Abs(x[k]-y[k]) > 1e-9 {
				t.Errorf("step %d: expected %f but got %f", j, x[k], y[k])
			}
		}
	}
}

func TestGRUFirstStep(t *testing.T) {
	c := anyvec64.CurrentCreator()
	g := NewGRU(c, rand.New(rand.NewSource(3)), 1, 1, 2)
	setVec := func(v *anydiff.Var, x float64) {
		v.Vector.SetData(c.MakeNumericList([]float64{x}))
	}
	for _, gate := range []*GRUGate{g.Update, g.Reset, g.Candidate} {
		setVec(gate.InputWeights, 1)
		setVec(gate.StateWeights, 0)
		setVec(gate.Biases, 0)
	}
	in := anyvec64.MakeVectorData([]float64{0.5, 0})
	out := g.Apply(anydiff.NewConst(in), 1).Output().Data().([]float64)

	// With a zero start state, h = (1-z)*c.
	z := 1 / (1 + math.Exp(-0.5))
	expected := (1 - z) * math.Tanh(0.5)
	if math.Abs(out[0]-expected) > 1e-9 {
		t.Errorf("expected %f but got %f", expected, out[0])
	}
	next := 0.5 * out[0]
	if math.Abs(out[1]-next) > 1e-9 {
		t.Errorf("expected %f but got %f", next, out[1])
	}
}

func TestGRUProp(t *testing.T) {
	c := anyvec64.CurrentCreator()
	rng := rand.New(rand.NewSource(4))
	g := NewGRU(c, rng, 2, 3, 3)
	inVec := c.MakeVector(2 * 3 * 2)
	anyvec.Rand(inVec, anyvec.Normal, rng)
	in := anydiff.NewVar(inVec)
	checker := &anydifftest.ResChecker{
		F: func() anydiff.Res {
			return g.Apply(in, 2)
		},
		V: append([]*anydiff.Var{in}, g.Parameters()...),
	}
	checker.FullCheck(t)
}

func TestTimeDistributed(t *testing.T) {
	c := anyvec64.CurrentCreator()
	rng := rand.New(rand.NewSource(5))
	fc := newFC(c, rng, 3, 2)
	layer := &TimeDistributed{Steps: 4, Layer: fc}

	in := c.MakeVector(2 * 4 * 3)
	anyvec.Rand(in, anyvec.Normal, rng)
	actual := layer.Apply(anydiff.NewConst(in), 2).Output().Data().([]float64)
	data := in.Data().([]float64)
	for row := 0; row < 8; row++ {
		rowVec := anyvec64.MakeVectorData(append([]float64{}, data[row*3:row*3+3]...))
		expected := fc.Apply(anydiff.NewConst(rowVec), 1).Output().Data().([]float64)
		for j, x := range expected {
			if math.Abs(actual[row*2+j]-x) > 1e-9 {
				t.Errorf("row %d component %d: expected %f but got %f", row, j, x,
					actual[row*2+j])
			}
		}
	}
	if len(layer.Parameters()) != 2 {
		t.Errorf("expected 2 parameters but got %d", len(layer.Parameters()))
	}
}

func TestGRUSerialize(t *testing.T) {
	c := anyvec64.CurrentCreator()
	rng := rand.New(rand.NewSource(6))
	net := anynet.Net{
		NewGRU(c, rng, 3, 2, 5),
		&TimeDistributed{Steps: 5, Layer: newFC(c, rng, 2, 4)},
	}
	data, err := serializer.SerializeAny(net)
	if err != nil {
		t.Fatal(err)
	}
	var newNet anynet.Net
	if err := serializer.DeserializeAny(data, &newNet); err != nil {
		t.Fatal(err)
	}
	g, ok := newNet[0].(*GRU)
	if !ok {
		t.Fatalf("unexpected layer type: %T", newNet[0])
	}
	if g.InCount != 3 || g.OutCount != 2 || g.Steps != 5 {
		t.Errorf("unexpected shape: %d, %d, %d", g.InCount, g.OutCount, g.Steps)
	}
	td, ok := newNet[1].(*TimeDistributed)
	if !ok || td.Steps != 5 {
		t.Fatalf("unexpected layer: %#v", newNet[1])
	}

	in := c.MakeVector(5 * 3)
	anyvec.Rand(in, anyvec.Normal, rng)
	expected := net.Apply(anydiff.NewConst(in), 1).Output().Data().([]float64)
	actual := newNet.Apply(anydiff.NewConst(in), 1).Output().Data().([]float64)
	for i, x := range expected {
		if math.Abs(actual[i]-x) > 1e-12 {
			t.Errorf("component %d: expected %f but got %f", i, x, actual[i])
		}
	}
}

func TestDropout(t *testing.T) {
	twos := make([]float64, 1000)
	for i := range twos {
		twos[i] = 2
	}
	in := anyvec64.MakeVectorData(twos)

	d := &Dropout{KeepProb: 0.25}
	disabled := d.Apply(anydiff.NewConst(in), 1).Output().Data().([]float64)
	for i, x := range disabled {
		if x != 0.5 {
			t.Fatalf("component %d: expected 0.5 but got %f", i, x)
		}
	}

	masks := make([][]float64, 2)
	for i := range masks {
		d := &Dropout{Enabled: true, KeepProb: 0.25, Rand: rand.New(rand.NewSource(7))}
		masks[i] = d.Apply(anydiff.NewConst(in), 1).Output().Data().([]float64)
	}
	var kept int
	for i, x := range masks[0] {
		if x != masks[1][i] {
			t.Fatalf("component %d: masks differ for the same seed", i)
		}
		if x == 2 {
			kept++
		} else if x != 0 {
			t.Fatalf("component %d: unexpected value %f", i, x)
		}
	}
	if kept < 180 || kept > 320 {
		t.Errorf("kept %d of 1000 with probability 0.25", kept)
	}
}

func TestDropoutSerialize(t *testing.T) {
	d := &Dropout{Enabled: true, KeepProb: 0.3, Rand: rand.New(rand.NewSource(1))}
	data, err := serializer.SerializeAny(d)
	if err != nil {
		t.Fatal(err)
	}
	var newD *Dropout
	if err := serializer.DeserializeAny(data, &newD); err != nil {
		t.Fatal(err)
	}
	if newD.KeepProb != 0.3 || newD.Enabled {
		t.Errorf("unexpected layer: %#v", newD)
	}
}
