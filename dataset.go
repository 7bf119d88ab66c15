// Package dragonn trains convolutional (and optionally
// recurrent) neural networks to classify DNA sequences.
//
// Networks are built from anynet layers.
// All randomness, including weight initialization,
// dropout, and shuffling, comes from an explicit
// *rand.Rand so that a run is reproducible from its seed.
package dragonn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/Wainberg/dragonn/dna"
	"github.com/unixpickle/anynet/anyff"
	"github.com/unixpickle/anynet/anysgd"
	"github.com/unixpickle/anyvec"
)

// A Dataset is a list of encoded sequences and their
// labels, with one label per task.
//
// Labels are 1 for positive, 0 for negative, and negative
// numbers for missing.
//
// A Dataset implements anyff.SampleList.
type Dataset struct {
	Inputs []anyvec.Vector
	Labels [][]float64
}

// NewDataset encodes sequences into a Dataset.
func NewDataset(c anyvec.Creator, seqs []string, labels [][]float64) (*Dataset, error) {
	if len(seqs) != len(labels) {
		return nil, fmt.Errorf("new dataset: %d sequences but %d labels", len(seqs), len(labels))
	}
	inputs, err := dna.OneHotBatch(c, seqs)
	if err != nil {
		return nil, err
	}
	return &Dataset{Inputs: inputs, Labels: labels}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Inputs)
}

// Swap swaps two samples.
func (d *Dataset) Swap(i, j int) {
	d.Inputs[i], d.Inputs[j] = d.Inputs[j], d.Inputs[i]
	d.Labels[i], d.Labels[j] = d.Labels[j], d.Labels[i]
}

// Slice copies a sub-slice of the dataset.
func (d *Dataset) Slice(i, j int) anysgd.SampleList {
	return &Dataset{
		Inputs: append([]anyvec.Vector{}, d.Inputs[i:j]...),
		Labels: append([][]float64{}, d.Labels[i:j]...),
	}
}

// GetSample returns the sample at the index.
func (d *Dataset) GetSample(idx int) (*anyff.Sample, error) {
	c := d.Inputs[idx].Creator()
	return &anyff.Sample{
		Input:  d.Inputs[idx],
		Output: c.MakeVectorData(c.MakeNumericList(d.Labels[idx])),
	}, nil
}

// NumTasks returns the number of labels per sample.
func (d *Dataset) NumTasks() int {
	if len(d.Labels) == 0 {
		return 0
	}
	return len(d.Labels[0])
}

// Copy creates a shallow copy of the dataset which can be
// reordered independently.
func (d *Dataset) Copy() *Dataset {
	return d.Slice(0, d.Len()).(*Dataset)
}

// ClassCounts counts the known positive and negative
// labels across all tasks.
func (d *Dataset) ClassCounts() (pos, neg int) {
	for _, l := range d.Labels {
		for _, x := range l {
			if x > 0.5 {
				pos++
			} else if x >= 0 {
				neg++
			}
		}
	}
	return
}

// TrainTestSplit randomly partitions a dataset.
//
// The test set receives ceil(testFraction*n) samples and
// the training set receives the rest.
// The order of both sets follows a single random
// permutation drawn from rng.
func TrainTestSplit(rng *rand.Rand, d *Dataset, testFraction float64) (train,
	test *Dataset, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("train/test split: invalid test fraction %f", testFraction)
	}
	numTest := int(math.Ceil(testFraction * float64(d.Len())))
	numTrain := d.Len() - numTest
	if numTest == 0 || numTrain <= 0 {
		return nil, nil, fmt.Errorf("train/test split: cannot split %d samples with fraction %f",
			d.Len(), testFraction)
	}
	perm := rng.Perm(d.Len())
	test = &Dataset{}
	train = &Dataset{}
	for i, idx := range perm {
		dst := train
		if i < numTest {
			dst = test
		}
		dst.Inputs = append(dst.Inputs, d.Inputs[idx])
		dst.Labels = append(dst.Labels, d.Labels[idx])
	}
	return train, test, nil
}

// AugmentReverseComplement creates a dataset containing
// every sample of d followed by the reverse complement of
// every sample of d, with labels duplicated.
func AugmentReverseComplement(d *Dataset) *Dataset {
	res := &Dataset{
		Inputs: append([]anyvec.Vector{}, d.Inputs...),
		Labels: append([][]float64{}, d.Labels...),
	}
	for i, in := range d.Inputs {
		res.Inputs = append(res.Inputs, dna.ReverseComplementVec(in))
		res.Labels = append(res.Labels, append([]float64{}, d.Labels[i]...))
	}
	return res
}

// Shuffle applies one random permutation to the dataset
// in place.
func Shuffle(rng *rand.Rand, d *Dataset) {
	for i := 0; i < d.Len(); i++ {
		j := i + rng.Intn(d.Len()-i)
		d.Swap(i, j)
	}
}

func checkDataset(d *Dataset, h *Hyperparameters) error {
	if d == nil || d.Len() == 0 {
		return errors.New("empty dataset")
	}
	inSize := h.SeqLength * dna.Depth
	for i, in := range d.Inputs {
		if in.Len() != inSize {
			return fmt.Errorf("sample %d: input size %d (expected %d)", i, in.Len(), inSize)
		}
		if len(d.Labels[i]) != h.NumTasks {
			return fmt.Errorf("sample %d: %d labels (expected %d)", i, len(d.Labels[i]),
				h.NumTasks)
		}
	}
	return nil
}
