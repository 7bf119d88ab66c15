package dragonn

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/Wainberg/dragonn/dna"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

func testDataset(t *testing.T, n int) *Dataset {
	rng := rand.New(rand.NewSource(1))
	seqs := make([]string, n)
	labels := make([][]float64, n)
	for i := range seqs {
		var b strings.Builder
		for j := 0; j < 8; j++ {
			b.WriteByte(dna.Alphabet[rng.Intn(dna.Depth)])
		}
		seqs[i] = b.String()
		labels[i] = []float64{float64(i % 2)}
	}
	d, err := NewDataset(anyvec64.CurrentCreator(), seqs, labels)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestNewDatasetErrors(t *testing.T) {
	c := anyvec64.CurrentCreator()
	if _, err := NewDataset(c, []string{"ACGT"}, nil); err == nil {
		t.Error("expected error for missing labels")
	}
	if _, err := NewDataset(c, []string{"ACGT", "AC"}, [][]float64{{1}, {0}}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestTrainTestSplit(t *testing.T) {
	for _, tc := range []struct {
		n        int
		fraction float64
		numTest  int
	}{
		{200, 0.2, 40},
		{10, 0.25, 3},
		{7, 0.5, 4},
	} {
		d := testDataset(t, tc.n)
		train, test, err := TrainTestSplit(rand.New(rand.NewSource(2)), d, tc.fraction)
		if err != nil {
			t.Fatal(err)
		}
		if test.Len() != tc.numTest || train.Len() != tc.n-tc.numTest {
			t.Errorf("n=%d fraction=%f: got %d train and %d test", tc.n, tc.fraction,
				train.Len(), test.Len())
		}
		seen := map[anyvec.Vector]bool{}
		for _, part := range []*Dataset{train, test} {
			for i, in := range part.Inputs {
				if seen[in] {
					t.Fatal("sample appears twice")
				}
				seen[in] = true
				if len(part.Labels[i]) != 1 {
					t.Fatal("labels not carried")
				}
			}
		}
		for i, in := range d.Inputs {
			if !seen[in] {
				t.Errorf("sample %d missing from split", i)
			}
		}
	}
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	d := testDataset(t, 50)
	_, test1, _ := TrainTestSplit(rand.New(rand.NewSource(3)), d, 0.2)
	_, test2, _ := TrainTestSplit(rand.New(rand.NewSource(3)), d, 0.2)
	for i := range test1.Inputs {
		if test1.Inputs[i] != test2.Inputs[i] {
			t.Fatal("splits differ for the same seed")
		}
	}
}

func TestTrainTestSplitErrors(t *testing.T) {
	d := testDataset(t, 3)
	rng := rand.New(rand.NewSource(1))
	for _, fraction := range []float64{0, 1, -0.5, 1.5, 0.99} {
		if _, _, err := TrainTestSplit(rng, d, fraction); err == nil {
			t.Errorf("fraction %f: expected error", fraction)
		}
	}
}

func TestAugmentReverseComplement(t *testing.T) {
	d := testDataset(t, 5)
	aug := AugmentReverseComplement(d)
	if aug.Len() != 10 {
		t.Fatalf("expected 10 samples but got %d", aug.Len())
	}
	for i := 0; i < 5; i++ {
		if aug.Inputs[i] != d.Inputs[i] {
			t.Errorf("sample %d: original not preserved", i)
		}
		orig := dna.Decode(d.Inputs[i])
		rc := dna.Decode(aug.Inputs[i+5])
		if rc != dna.ReverseComplement(orig) {
			t.Errorf("sample %d: expected %s but got %s", i, dna.ReverseComplement(orig), rc)
		}
		if aug.Labels[i+5][0] != d.Labels[i][0] {
			t.Errorf("sample %d: label not duplicated", i)
		}
	}
	aug.Labels[5][0] = -1
	if d.Labels[0][0] == -1 {
		t.Error("duplicated labels share storage with the original")
	}
}

func TestShuffle(t *testing.T) {
	d1 := testDataset(t, 30)
	d2 := d1.Copy()
	Shuffle(rand.New(rand.NewSource(4)), d1)
	Shuffle(rand.New(rand.NewSource(4)), d2)

	orig := testDataset(t, 30)
	counts := map[string]int{}
	for _, in := range orig.Inputs {
		counts[dna.Decode(in)]++
	}
	var moved bool
	for i, in := range d1.Inputs {
		if in != d2.Inputs[i] {
			t.Fatal("shuffles differ for the same seed")
		}
		seq := dna.Decode(in)
		counts[seq]--
		if seq != dna.Decode(orig.Inputs[i]) {
			moved = true
		}
	}
	for seq, count := range counts {
		if count != 0 {
			t.Errorf("sequence %s count off by %d", seq, count)
		}
	}
	if !moved {
		t.Error("shuffle did not reorder")
	}
}

func TestClassCounts(t *testing.T) {
	d := &Dataset{Labels: [][]float64{{1, 0}, {0, -1}, {1, 1}}}
	pos, neg := d.ClassCounts()
	if pos != 3 || neg != 2 {
		t.Errorf("expected 3/2 but got %d/%d", pos, neg)
	}
	if d.NumTasks() != 2 {
		t.Errorf("expected 2 tasks but got %d", d.NumTasks())
	}
}

func TestGetSample(t *testing.T) {
	d := testDataset(t, 2)
	s, err := d.GetSample(1)
	if err != nil {
		t.Fatal(err)
	}
	if s.Input != d.Inputs[1] {
		t.Error("unexpected input")
	}
	if out := s.Output.Data().([]float64); len(out) != 1 || out[0] != 1 {
		t.Errorf("unexpected output: %v", out)
	}
}
