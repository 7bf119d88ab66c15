package dragonn

import (
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
)

// WeightedSigmoidCE combines a sigmoid output activation
// with a class-weighted cross-entropy loss.
//
// Desired outputs above 0.5 are positives, desired
// outputs in [0, 0.5] are negatives, and negative desired
// outputs are missing labels which contribute no cost.
//
// The cost of each sample is averaged over its outputs.
type WeightedSigmoidCE struct {
	PosWeight float64
	NegWeight float64
}

// NewWeightedSigmoidCE weights each class by the inverse
// of its frequency in d, so that both classes contribute
// equally to the total cost.
func NewWeightedSigmoidCE(d *Dataset) *WeightedSigmoidCE {
	pos, neg := d.ClassCounts()
	total := float64(pos + neg)
	res := &WeightedSigmoidCE{PosWeight: 1, NegWeight: 1}
	if pos > 0 {
		res.PosWeight = total / float64(pos)
	}
	if neg > 0 {
		res.NegWeight = total / float64(neg)
	}
	return res
}

// Cost computes the weighted cross-entropy of
// sigmoid(actual) with respect to desired.
func (w *WeightedSigmoidCE) Cost(desired, actual anydiff.Res, n int) anydiff.Res {
	c := actual.Output().Creator()
	targets, weights := w.targetsAndWeights(desired.Output())
	targetRes := anydiff.NewConst(targets)
	weightRes := anydiff.NewConst(weights)

	costProducts := anydiff.Pool(actual, func(actual anydiff.Res) anydiff.Res {
		logRegular := anydiff.LogSigmoid(actual)
		logComplement := anydiff.LogSigmoid(anydiff.Scale(actual, c.MakeNumeric(-1)))
		return anydiff.Mul(weightRes, anydiff.Add(
			anydiff.Mul(targetRes, logRegular),
			anydiff.Mul(anydiff.Complement(targetRes), logComplement),
		))
	})
	cols := actual.Output().Len() / n
	res := anydiff.SumCols(&anydiff.Matrix{
		Data: costProducts,
		Rows: n,
		Cols: cols,
	})
	return anydiff.Scale(res, c.MakeNumeric(-1/float64(cols)))
}

func (w *WeightedSigmoidCE) targetsAndWeights(desired anyvec.Vector) (targets,
	weights anyvec.Vector) {
	c := desired.Creator()
	raw := vecFloats(desired)
	t := make([]float64, len(raw))
	ws := make([]float64, len(raw))
	for i, x := range raw {
		if x > 0.5 {
			t[i] = 1
			ws[i] = w.PosWeight
		} else if x >= 0 {
			ws[i] = w.NegWeight
		}
	}
	return c.MakeVectorData(c.MakeNumericList(t)), c.MakeVectorData(c.MakeNumericList(ws))
}

// L1Reg wraps a Cost and adds an L1 penalty.
//
// The penalty is the sum of the absolute values of the
// parameters, multiplied by Penalty.
type L1Reg struct {
	Penalty float64
	Params  []*anydiff.Var
	Wrapped anynet.Cost
}

// Cost computes the cost from l.Wrapped and adds the L1
// penalty to each component.
func (l *L1Reg) Cost(desired, actual anydiff.Res, n int) anydiff.Res {
	c := actual.Output().Creator()
	var sum anydiff.Res
	sum = anydiff.NewConst(c.MakeVector(1))
	for _, p := range l.Params {
		// |x| = x*sign(x), where sign(x) is treated as a
		// constant to get the subgradient.
		sign := anydiff.NewConst(signVector(p.Vector))
		sum = anydiff.Add(sum, anydiff.Sum(anydiff.Mul(p, sign)))
	}
	sum = anydiff.Scale(sum, c.MakeNumeric(l.Penalty))
	return anydiff.AddRepeated(l.Wrapped.Cost(desired, actual, n), sum)
}

func signVector(v anyvec.Vector) anyvec.Vector {
	raw := vecFloats(v)
	res := make([]float64, len(raw))
	for i, x := range raw {
		if x > 0 {
			res[i] = 1
		} else if x < 0 {
			res[i] = -1
		}
	}
	c := v.Creator()
	return c.MakeVectorData(c.MakeNumericList(res))
}

func vecFloats(v anyvec.Vector) []float64 {
	switch data := v.Data().(type) {
	case []float64:
		return data
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	default:
		panic("unsupported numeric type")
	}
}
