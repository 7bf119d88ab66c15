// Package simdna simulates DNA sequences with embedded
// transcription-factor motifs.
//
// Every simulation draws from an explicitly supplied
// random source, so a fixed seed yields the same data
// regardless of what else the process does.
package simdna

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/Wainberg/dragonn/dna"
	"github.com/Wainberg/dragonn/motif"
)

// An Embedding records a motif instance placed in a
// sequence.
type Embedding struct {
	Position int
	Motif    string
	Sequence string

	// Reverse is true if the instance was drawn from the
	// reverse complement of the motif.
	Reverse bool
}

// A Dataset is a list of simulated sequences with one
// label vector per sequence.
type Dataset struct {
	Sequences  []string
	Labels     [][]float64
	Embeddings [][]Embedding
}

// Len returns the number of sequences.
func (d *Dataset) Len() int {
	return len(d.Sequences)
}

// Background generates a sequence of i.i.d. bases with
// the given expected GC fraction.
func Background(rng *rand.Rand, length int, gcFraction float64) string {
	probs := backgroundProbs(gcFraction)
	res := make([]byte, length)
	for i := range res {
		x := rng.Float64()
		j := 0
		for ; j < dna.Depth-1; j++ {
			x -= probs[j]
			if x < 0 {
				break
			}
		}
		res[i] = dna.Alphabet[j]
	}
	return string(res)
}

// SimulateSingleMotifDetection generates numPos sequences
// containing one instance of the motif followed by numNeg
// background sequences.
// Labels are 1 for the positives and 0 for the negatives.
func SimulateSingleMotifDetection(rng *rand.Rand, motifName string, seqLength,
	numPos, numNeg int, gcFraction float64) (*Dataset, error) {
	if err := checkParams(seqLength, numPos, numNeg, gcFraction); err != nil {
		return nil, err
	}
	pwm, err := motif.Lookup(motifName)
	if err != nil {
		return nil, err
	}
	if pwm.Len() > seqLength {
		return nil, fmt.Errorf("motif %s (length %d) does not fit in length %d",
			motifName, pwm.Len(), seqLength)
	}

	res := &Dataset{}
	for i := 0; i < numPos; i++ {
		seq := []byte(Background(rng, seqLength, gcFraction))
		pos := rng.Intn(seqLength - pwm.Len() + 1)
		emb := embed(rng, seq, pwm, pos)
		res.add(string(seq), []float64{1}, []Embedding{emb})
	}
	for i := 0; i < numNeg; i++ {
		res.add(Background(rng, seqLength, gcFraction), []float64{0}, nil)
	}
	return res, nil
}

// SimulateMotifDensity generates numPos sequences with
// between minCount and maxCount (inclusive) instances of
// a motif, followed by numNeg background sequences.
//
// Instances never overlap.
func SimulateMotifDensity(rng *rand.Rand, motifName string, seqLength, numPos, numNeg,
	minCount, maxCount int, gcFraction float64) (*Dataset, error) {
	if err := checkParams(seqLength, numPos, numNeg, gcFraction); err != nil {
		return nil, err
	}
	if minCount < 1 || maxCount < minCount {
		return nil, fmt.Errorf("invalid motif count range [%d, %d]", minCount, maxCount)
	}
	pwm, err := motif.Lookup(motifName)
	if err != nil {
		return nil, err
	}
	if pwm.Len()*maxCount > seqLength {
		return nil, fmt.Errorf("%d instances of motif %s do not fit in length %d",
			maxCount, motifName, seqLength)
	}

	res := &Dataset{}
	for i := 0; i < numPos; i++ {
		count := minCount + rng.Intn(maxCount-minCount+1)
		pwms := make([]*motif.PWM, count)
		for j := range pwms {
			pwms[j] = pwm
		}
		seq, embs := embedMany(rng, seqLength, gcFraction, pwms)
		res.add(seq, []float64{1}, embs)
	}
	for i := 0; i < numNeg; i++ {
		res.add(Background(rng, seqLength, gcFraction), []float64{0}, nil)
	}
	return res, nil
}

// SimulateMultiMotifEmbedding generates numSeqs sequences
// which each contain between minMotifs and maxMotifs
// distinct motifs from motifNames.
//
// There is one label per motif, set to 1 when the motif
// is present in the sequence.
func SimulateMultiMotifEmbedding(rng *rand.Rand, motifNames []string, seqLength,
	minMotifs, maxMotifs, numSeqs int, gcFraction float64) (*Dataset, error) {
	if err := checkParams(seqLength, numSeqs, 0, gcFraction); err != nil {
		return nil, err
	}
	if minMotifs < 0 || maxMotifs < minMotifs || maxMotifs > len(motifNames) {
		return nil, fmt.Errorf("invalid motif count range [%d, %d] for %d motifs",
			minMotifs, maxMotifs, len(motifNames))
	}
	pwms := make([]*motif.PWM, len(motifNames))
	var totalLen int
	for i, name := range motifNames {
		p, err := motif.Lookup(name)
		if err != nil {
			return nil, err
		}
		pwms[i] = p
		totalLen += p.Len()
	}
	if totalLen > seqLength {
		return nil, errors.New("motifs do not fit in the sequence length")
	}

	res := &Dataset{}
	for i := 0; i < numSeqs; i++ {
		count := minMotifs + rng.Intn(maxMotifs-minMotifs+1)
		chosen := rng.Perm(len(pwms))[:count]
		label := make([]float64, len(pwms))
		var selected []*motif.PWM
		for _, idx := range chosen {
			label[idx] = 1
			selected = append(selected, pwms[idx])
		}
		seq, embs := embedMany(rng, seqLength, gcFraction, selected)
		res.add(seq, label, embs)
	}
	return res, nil
}

func (d *Dataset) add(seq string, label []float64, embs []Embedding) {
	d.Sequences = append(d.Sequences, seq)
	d.Labels = append(d.Labels, label)
	d.Embeddings = append(d.Embeddings, embs)
}

func checkParams(seqLength, numPos, numNeg int, gcFraction float64) error {
	if seqLength <= 0 {
		return fmt.Errorf("invalid sequence length: %d", seqLength)
	}
	if numPos < 0 || numNeg < 0 {
		return fmt.Errorf("invalid sequence counts: %d positive, %d negative", numPos, numNeg)
	}
	if gcFraction < 0 || gcFraction > 1 {
		return fmt.Errorf("invalid GC fraction: %f", gcFraction)
	}
	return nil
}

func backgroundProbs(gcFraction float64) [dna.Depth]float64 {
	at := (1 - gcFraction) / 2
	gc := gcFraction / 2
	return [dna.Depth]float64{at, gc, gc, at}
}

// embed writes a sampled motif instance into seq.
func embed(rng *rand.Rand, seq []byte, pwm *motif.PWM, pos int) Embedding {
	reverse := rng.Intn(2) == 1
	source := pwm
	if reverse {
		source = pwm.ReverseComplement()
	}
	instance := source.Sample(rng)
	copy(seq[pos:], instance)
	return Embedding{
		Position: pos,
		Motif:    pwm.Name,
		Sequence: instance,
		Reverse:  reverse,
	}
}

// embedMany places non-overlapping instances of every
// motif in a fresh background sequence.
//
// Positions are chosen by distributing the free space
// uniformly between the motifs, in a random order.
func embedMany(rng *rand.Rand, seqLength int, gcFraction float64,
	pwms []*motif.PWM) (string, []Embedding) {
	seq := []byte(Background(rng, seqLength, gcFraction))
	if len(pwms) == 0 {
		return string(seq), nil
	}
	order := rng.Perm(len(pwms))
	var used int
	for _, p := range pwms {
		used += p.Len()
	}
	free := seqLength - used

	// Split the free space into len(pwms)+1 gaps.
	cuts := make([]int, len(pwms))
	for i := range cuts {
		cuts[i] = rng.Intn(free + 1)
	}
	sort.Ints(cuts)

	var embs []Embedding
	pos := 0
	prevCut := 0
	for i, idx := range order {
		pos += cuts[i] - prevCut
		prevCut = cuts[i]
		embs = append(embs, embed(rng, seq, pwms[idx], pos))
		pos += pwms[idx].Len()
	}
	return string(seq), embs
}
