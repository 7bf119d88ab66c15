// Package golden compares regression outcomes against
// previously recorded values.
package golden

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/Wainberg/dragonn/metrics"
	"github.com/unixpickle/essentials"
)

// Default tolerances, matching numpy.allclose.
const (
	DefaultRTol = 1e-5
	DefaultATol = 1e-8
)

// A Snapshot is a recorded regression outcome.
type Snapshot struct {
	Label         string         `json:"label"`
	FirstSequence string         `json:"first_sequence"`
	Results       metrics.Result `json:"results"`
}

// A MismatchError reports a deviation from a Snapshot.
type MismatchError struct {
	Label  string
	Field  string
	Actual interface{}
	Golden interface{}
}

// Error formats the actual and golden values.
func (m *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s = %v, golden = %v", m.Label, m.Field, m.Actual, m.Golden)
}

// AllClose checks that every element of a is within
// atol + rtol*|b| of the corresponding element of b.
//
// NaNs are never close, and slices of different lengths
// are never close.
func AllClose(a, b []float64, rtol, atol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i, x := range a {
		y := b[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			return false
		}
		if math.IsInf(x, 0) || math.IsInf(y, 0) {
			if x != y {
				return false
			}
			continue
		}
		if math.Abs(x-y) > atol+rtol*math.Abs(y) {
			return false
		}
	}
	return true
}

// Check compares an outcome to a snapshot.
//
// The first sequence must match exactly, and the result
// values must be close according to AllClose with the
// default tolerances.
func (s *Snapshot) Check(firstSequence string, result metrics.Result) error {
	if firstSequence != s.FirstSequence {
		return &MismatchError{
			Label:  s.Label,
			Field:  "first sequence",
			Actual: firstSequence,
			Golden: s.FirstSequence,
		}
	}
	if !AllClose(result.Values(), s.Results.Values(), DefaultRTol, DefaultATol) {
		return &MismatchError{
			Label:  s.Label,
			Field:  "result",
			Actual: formatResult(result),
			Golden: formatResult(s.Results),
		}
	}
	return nil
}

// Load reads a snapshot from a JSON file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load golden", err)
	}
	var res Snapshot
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, essentials.AddCtx("load golden "+path, err)
	}
	return &res, nil
}

// Save writes a snapshot to a JSON file, creating the
// parent directory if necessary.
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return essentials.AddCtx("save golden", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return essentials.AddCtx("save golden", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return essentials.AddCtx("save golden", err)
	}
	return nil
}

// Filename converts a scenario label into a file name.
func Filename(label string) string {
	res := make([]byte, 0, len(label)+5)
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'A' && c <= 'Z':
			res = append(res, c+'a'-'A')
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			res = append(res, c)
		default:
			res = append(res, '_')
		}
	}
	return string(res) + ".json"
}

func formatResult(r metrics.Result) string {
	var res []byte
	res = append(res, '{')
	for i, m := range r {
		if i > 0 {
			res = append(res, ", "...)
		}
		res = append(res, fmt.Sprintf("%q: %v", m.Name, m.Value)...)
	}
	return string(append(res, '}'))
}
