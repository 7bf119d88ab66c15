package dragonn

import (
	"errors"
	"math"

	"github.com/Wainberg/dragonn/metrics"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anynet/anyff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/essentials"
)

// An EpochStatus summarizes a finished training epoch.
type EpochStatus struct {
	Epoch int
	Train *metrics.ClassificationResult
	Valid *metrics.ClassificationResult

	// Best is true if the epoch had the best validation
	// auPRC so far.
	Best bool
}

// TrainOptions configures optional training hooks.
// A nil *TrainOptions is valid.
type TrainOptions struct {
	// StatusFunc, if non-nil, is called after every epoch.
	StatusFunc func(s *EpochStatus)

	// BatchFunc, if non-nil, is called after every
	// mini-batch with the batch's average cost.
	BatchFunc func(epoch, batch int, cost float64)

	// Stop, if non-nil, ends training early when it is
	// closed.
	// The epoch in progress is not evaluated.
	Stop <-chan struct{}
}

// Train fits the model to a training set.
//
// Every epoch, the training set is reshuffled and split
// into mini-batches for Adam.
// After every epoch, the model is evaluated on both sets.
// Training stops after Hyperparameters.NumEpochs epochs,
// or once the mean validation auPRC has not improved for
// Hyperparameters.Patience epochs.
// The parameters from the best epoch are restored before
// returning.
func (s *SequenceDNN) Train(train, valid *Dataset, opts *TrainOptions) error {
	if opts == nil {
		opts = &TrainOptions{}
	}
	h := &s.Hyperparameters
	if err := checkDataset(train, h); err != nil {
		return essentials.AddCtx("train", err)
	}
	if err := checkDataset(valid, h); err != nil {
		return essentials.AddCtx("train: validation", err)
	}
	if s.rand == nil {
		return errors.New("train: no random source")
	}

	params := s.Parameters()
	var cost anynet.Cost = NewWeightedSigmoidCE(train)
	if h.L1 > 0 {
		cost = &L1Reg{Penalty: h.L1, Params: s.convParameters(), Wrapped: cost}
	}
	trainer := &anyff.Trainer{
		Net:     s.Net,
		Cost:    cost,
		Params:  params,
		Average: true,
	}
	transformer := &anysgd.Adam{}
	rater := anysgd.ConstRater(h.LearningRate)

	samples := train.Copy()
	var bestParams []anyvec.Vector
	bestScore := math.Inf(-1)
	var wait int
	var numProcessed int

	for epoch := 1; epoch <= h.NumEpochs; epoch++ {
		s.setTraining(true)
		Shuffle(s.rand, samples)
		for i, batchIdx := 0, 0; i < samples.Len(); i, batchIdx = i+h.BatchSize, batchIdx+1 {
			if stopped(opts.Stop) {
				s.restore(params, bestParams)
				return nil
			}
			end := essentials.MinInt(i+h.BatchSize, samples.Len())
			batch, err := trainer.Fetch(samples.Slice(i, end))
			if err != nil {
				return essentials.AddCtx("train", err)
			}
			grad := transformer.Transform(trainer.Gradient(batch))
			rate := rater.Rate(float64(numProcessed) / float64(samples.Len()))
			scaleGrad(grad, -rate)
			grad.AddToVars()
			numProcessed += end - i
			if opts.BatchFunc != nil {
				opts.BatchFunc(epoch, batchIdx, numericFloat(trainer.LastCost))
			}
		}

		trainRes, err := s.Test(train)
		if err != nil {
			return essentials.AddCtx("train", err)
		}
		validRes, err := s.Test(valid)
		if err != nil {
			return essentials.AddCtx("train", err)
		}
		s.TrainMetrics = append(s.TrainMetrics, trainRes)
		s.ValidMetrics = append(s.ValidMetrics, validRes)

		status := &EpochStatus{Epoch: epoch, Train: trainRes, Valid: validRes}
		score := validRes.Mean(metrics.AuPRC)
		if bestParams == nil || score > bestScore {
			bestScore = score
			bestParams = snapshot(params)
			status.Best = true
			wait = 0
		} else {
			wait++
		}
		if opts.StatusFunc != nil {
			opts.StatusFunc(status)
		}
		if wait > h.Patience {
			break
		}
	}

	s.restore(params, bestParams)
	return nil
}

func (s *SequenceDNN) restore(params []*anydiff.Var, saved []anyvec.Vector) {
	if saved == nil {
		return
	}
	for i, p := range params {
		p.Vector.Set(saved[i])
	}
}

func snapshot(params []*anydiff.Var) []anyvec.Vector {
	res := make([]anyvec.Vector, len(params))
	for i, p := range params {
		res[i] = p.Vector.Copy()
	}
	return res
}

func scaleGrad(g anydiff.Grad, s float64) {
	for _, v := range g {
		g.Scale(v.Creator().MakeNumeric(s))
		return
	}
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func numericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return math.NaN()
	}
}
