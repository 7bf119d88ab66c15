// Package motif provides position weight matrices for
// transcription-factor binding motifs.
package motif

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Wainberg/dragonn/dna"
	"github.com/unixpickle/essentials"
)

const sumTolerance = 1e-3

//go:embed motifs.txt
var builtinText string

var (
	builtinLock sync.Mutex
	builtin     map[string]*PWM
)

// A PWM is a position weight matrix.
// Each row holds the probabilities of A, C, G and T at
// one position of the motif.
type PWM struct {
	Name  string
	Probs [][dna.Depth]float64
}

// Len returns the number of positions in the motif.
func (p *PWM) Len() int {
	return len(p.Probs)
}

// Validate checks that every row is a probability
// distribution.
func (p *PWM) Validate() error {
	if len(p.Probs) == 0 {
		return fmt.Errorf("motif %s: no positions", p.Name)
	}
	for i, row := range p.Probs {
		var sum float64
		for _, x := range row {
			if x < 0 || math.IsNaN(x) {
				return fmt.Errorf("motif %s: position %d: invalid probability %f",
					p.Name, i, x)
			}
			sum += x
		}
		if math.Abs(sum-1) > sumTolerance {
			return fmt.Errorf("motif %s: position %d: probabilities sum to %f",
				p.Name, i, sum)
		}
	}
	return nil
}

// Consensus returns the most likely base at every
// position.
func (p *PWM) Consensus() string {
	res := make([]byte, len(p.Probs))
	for i, row := range p.Probs {
		best := 0
		for j, x := range row {
			if x > row[best] {
				best = j
			}
		}
		res[i] = dna.Alphabet[best]
	}
	return string(res)
}

// Sample draws a motif instance, choosing each base
// independently from its row.
func (p *PWM) Sample(rng *rand.Rand) string {
	res := make([]byte, len(p.Probs))
	for i, row := range p.Probs {
		res[i] = sampleBase(rng, row)
	}
	return string(res)
}

// ReverseComplement returns the motif for the opposite
// strand.
func (p *PWM) ReverseComplement() *PWM {
	res := &PWM{Name: p.Name, Probs: make([][dna.Depth]float64, len(p.Probs))}
	for i, row := range p.Probs {
		var rc [dna.Depth]float64
		for j, x := range row {
			rc[dna.Depth-1-j] = x
		}
		res.Probs[len(p.Probs)-1-i] = rc
	}
	return res
}

// LogOdds scores a sequence of the motif's length against
// the motif, relative to a background distribution.
func (p *PWM) LogOdds(seq string, background [dna.Depth]float64) float64 {
	if len(seq) != len(p.Probs) {
		panic("sequence length must match motif length")
	}
	var res float64
	for i, row := range p.Probs {
		idx := dna.BaseIndex(seq[i])
		if idx < 0 {
			continue
		}
		res += math.Log(math.Max(row[idx], 1e-9) / background[idx])
	}
	return res
}

// Parse reads motifs in a FASTA-like text format.
//
// Each motif starts with a ">NAME" line and is followed
// by one line per position with four probabilities.
// Lines starting with "#" are ignored.
func Parse(r io.Reader) ([]*PWM, error) {
	var res []*PWM
	var cur *PWM
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line[0] == '>' {
			name := strings.TrimSpace(line[1:])
			if name == "" {
				return nil, fmt.Errorf("parse motifs: line %d: empty name", lineNum)
			}
			cur = &PWM{Name: name}
			res = append(res, cur)
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("parse motifs: line %d: row before header", lineNum)
		}
		fields := strings.Fields(line)
		if len(fields) != dna.Depth {
			return nil, fmt.Errorf("parse motifs: line %d: expected %d columns but got %d",
				lineNum, dna.Depth, len(fields))
		}
		var row [dna.Depth]float64
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, essentials.AddCtx(fmt.Sprintf("parse motifs: line %d", lineNum), err)
			}
			row[i] = x
		}
		cur.Probs = append(cur.Probs, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("parse motifs", err)
	}
	for _, p := range res {
		if err := p.Validate(); err != nil {
			return nil, essentials.AddCtx("parse motifs", err)
		}
	}
	return res, nil
}

// Lookup finds a built-in motif by name.
func Lookup(name string) (*PWM, error) {
	lib, err := library()
	if err != nil {
		return nil, err
	}
	if p, ok := lib[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown motif: %s", name)
}

// Names returns the sorted names of the built-in motifs.
func Names() []string {
	lib, err := library()
	if err != nil {
		panic(err)
	}
	var res []string
	for name := range lib {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

func library() (map[string]*PWM, error) {
	builtinLock.Lock()
	defer builtinLock.Unlock()
	if builtin != nil {
		return builtin, nil
	}
	motifs, err := Parse(strings.NewReader(builtinText))
	if err != nil {
		return nil, essentials.AddCtx("load built-in motifs", err)
	}
	lib := map[string]*PWM{}
	for _, p := range motifs {
		if _, ok := lib[p.Name]; ok {
			return nil, errors.New("load built-in motifs: duplicate motif " + p.Name)
		}
		lib[p.Name] = p
	}
	builtin = lib
	return lib, nil
}

func sampleBase(rng *rand.Rand, probs [dna.Depth]float64) byte {
	x := rng.Float64()
	for i, p := range probs {
		x -= p
		if x < 0 {
			return dna.Alphabet[i]
		}
	}
	return dna.Alphabet[dna.Depth-1]
}
