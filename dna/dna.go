// Package dna converts nucleotide sequences to and from
// the tensors consumed by sequence models.
//
// Encoded sequences are row-major depth-minor tensors of
// shape [length][4], which is the layout anyconv uses for
// an image of height 1.
// The depth axis is ordered A, C, G, T.
package dna

import (
	"fmt"
	"strings"

	"github.com/unixpickle/anyvec"
)

// Alphabet is the nucleotide order of the depth axis.
const Alphabet = "ACGT"

// Depth is the number of channels per position.
const Depth = len(Alphabet)

var complement [256]byte

func init() {
	pairs := []string{"AT", "CG", "RY", "SS", "WW", "KM", "BV", "DH", "NN"}
	for _, p := range pairs {
		complement[p[0]] = p[1]
		complement[p[1]] = p[0]
		complement[lower(p[0])] = lower(p[1])
		complement[lower(p[1])] = lower(p[0])
	}
}

func lower(b byte) byte {
	return b + 'a' - 'A'
}

// BaseIndex returns the depth index of a nucleotide, or -1
// if the byte is not one of A, C, G, T (in either case).
func BaseIndex(b byte) int {
	switch b {
	case 'A', 'a':
		return 0
	case 'C', 'c':
		return 1
	case 'G', 'g':
		return 2
	case 'T', 't':
		return 3
	default:
		return -1
	}
}

// OneHot encodes a sequence.
// Unknown bases (such as N) become all-zero rows.
func OneHot(c anyvec.Creator, seq string) anyvec.Vector {
	data := make([]float64, len(seq)*Depth)
	for i := 0; i < len(seq); i++ {
		if idx := BaseIndex(seq[i]); idx >= 0 {
			data[i*Depth+idx] = 1
		}
	}
	return c.MakeVectorData(c.MakeNumericList(data))
}

// OneHotBatch encodes a list of equally long sequences.
func OneHotBatch(c anyvec.Creator, seqs []string) ([]anyvec.Vector, error) {
	res := make([]anyvec.Vector, len(seqs))
	for i, s := range seqs {
		if len(s) != len(seqs[0]) {
			return nil, fmt.Errorf("one-hot encode: sequence %d has length %d (expected %d)",
				i, len(s), len(seqs[0]))
		}
		res[i] = OneHot(c, s)
	}
	return res, nil
}

// Decode converts an encoded tensor back to a string.
// Each row becomes the base with the largest value, or N
// if the row is entirely zero.
func Decode(v anyvec.Vector) string {
	data := Floats(v)
	if len(data)%Depth != 0 {
		panic("tensor size must be divisible by depth")
	}
	var res strings.Builder
	for i := 0; i < len(data); i += Depth {
		best := -1
		for j := 0; j < Depth; j++ {
			if data[i+j] > 0 && (best < 0 || data[i+j] > data[i+best]) {
				best = j
			}
		}
		if best < 0 {
			res.WriteByte('N')
		} else {
			res.WriteByte(Alphabet[best])
		}
	}
	return res.String()
}

// ReverseComplement computes the reverse complement of a
// sequence using IUPAC complements.
// Unrecognized symbols become N.
func ReverseComplement(seq string) string {
	n := len(seq)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		c := complement[seq[n-1-i]]
		if c == 0 {
			c = 'N'
		}
		out[i] = c
	}
	return string(out)
}

// ReverseComplementVec computes the reverse complement of
// an encoded sequence.
//
// Since complementary bases sit at mirrored depth indices
// (A=0/T=3, C=1/G=2), reversing the positions and the
// depth axis is the same as reversing the raw data.
func ReverseComplementVec(v anyvec.Vector) anyvec.Vector {
	if v.Len()%Depth != 0 {
		panic("tensor size must be divisible by depth")
	}
	data := Floats(v)
	rev := make([]float64, len(data))
	for i, x := range data {
		rev[len(data)-1-i] = x
	}
	c := v.Creator()
	return c.MakeVectorData(c.MakeNumericList(rev))
}

// GCFraction returns the fraction of G and C bases among
// the known bases in seq.
func GCFraction(seq string) float64 {
	var gc, total int
	for i := 0; i < len(seq); i++ {
		switch BaseIndex(seq[i]) {
		case 1, 2:
			gc++
			total++
		case 0, 3:
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(gc) / float64(total)
}

// Floats copies a vector's components into a []float64.
//
// The vector's numeric list must be []float32 or
// []float64.
func Floats(v anyvec.Vector) []float64 {
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
		panic(fmt.Sprintf("unsupported numeric list: %T", data))
	}
}
