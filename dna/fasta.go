package dna

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/unixpickle/essentials"
)

// lineWidth is the number of bases written per FASTA line.
const lineWidth = 60

// A Record is a named sequence from a FASTA file.
type Record struct {
	ID  string
	Seq string
}

// WriteFASTA writes records in FASTA format.
func WriteFASTA(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, ">%s\n", r.ID); err != nil {
			return essentials.AddCtx("write FASTA", err)
		}
		for i := 0; i < len(r.Seq); i += lineWidth {
			end := i + lineWidth
			if end > len(r.Seq) {
				end = len(r.Seq)
			}
			if _, err := fmt.Fprintln(bw, r.Seq[i:end]); err != nil {
				return essentials.AddCtx("write FASTA", err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return essentials.AddCtx("write FASTA", err)
	}
	return nil
}

// ReadFASTA reads every record from a FASTA stream.
//
// Sequences are upper-cased and may span multiple lines.
// The record ID is the first word of the header.
func ReadFASTA(r io.Reader) ([]Record, error) {
	var res []Record
	var seq strings.Builder
	var id string
	var started bool

	flush := func() {
		if started {
			res = append(res, Record{ID: id, Seq: seq.String()})
		}
		seq.Reset()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			flush()
			fields := strings.Fields(line[1:])
			if len(fields) == 0 {
				return nil, errors.New("read FASTA: empty header")
			}
			id = fields[0]
			started = true
			continue
		}
		if !started {
			return nil, errors.New("read FASTA: sequence data before first header")
		}
		seq.WriteString(strings.ToUpper(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, essentials.AddCtx("read FASTA", err)
	}
	flush()
	return res, nil
}
