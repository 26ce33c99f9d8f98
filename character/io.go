package character

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

//ReadPhylip will read a sequential phylip matrix: a header line with the number of taxa and characters, then one "name sequence" line per taxon
func ReadPhylip(r io.Reader, a Alphabet) (*Matrix, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	var ntax, nchar int
	header := false
	m := NewMatrix(a)
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if ln == "" {
			continue
		}
		fields := strings.Fields(ln)
		if !header {
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: phylip header %q", ErrFormat, ln)
			}
			var err error
			if ntax, err = strconv.Atoi(fields[0]); err != nil {
				return nil, fmt.Errorf("%w: phylip header %q", ErrFormat, ln)
			}
			if nchar, err = strconv.Atoi(fields[1]); err != nil {
				return nil, fmt.Errorf("%w: phylip header %q", ErrFormat, ln)
			}
			header = true
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %q has no sequence", ErrFormat, ln)
		}
		if err := m.AddSequence(fields[0], strings.Join(fields[1:], "")); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !header {
		return nil, fmt.Errorf("%w: empty phylip input", ErrFormat)
	}
	if m.NumberOfTaxa() != ntax || m.NumberOfCharacters() != nchar {
		return nil, fmt.Errorf("%w: header declares %d taxa x %d characters, read %d x %d", ErrFormat, ntax, nchar, m.NumberOfTaxa(), m.NumberOfCharacters())
	}
	return m, nil
}

//ReadFasta will read a fasta matrix where sequences may span several lines
func ReadFasta(r io.Reader, a Alphabet) (*Matrix, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	m := NewMatrix(a)
	var name string
	var seq strings.Builder
	flush := func() error {
		if name == "" {
			return nil
		}
		err := m.AddSequence(name, seq.String())
		seq.Reset()
		return err
	}
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if ln == "" {
			continue
		}
		if strings.HasPrefix(ln, ">") {
			if err := flush(); err != nil {
				return nil, err
			}
			name = strings.TrimSpace(ln[1:])
			if name == "" {
				return nil, fmt.Errorf("%w: unnamed fasta record", ErrFormat)
			}
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("%w: sequence before the first fasta header", ErrFormat)
		}
		seq.WriteString(ln)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if m.NumberOfTaxa() == 0 {
		return nil, fmt.Errorf("%w: empty fasta input", ErrFormat)
	}
	return m, nil
}

//ReadMatrixFile will read a phylip or fasta file, choosing by the first non-blank character
func ReadMatrixFile(path string, a Alphabet) (*Matrix, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, ">") {
		return ReadFasta(strings.NewReader(s), a)
	}
	return ReadPhylip(strings.NewReader(s), a)
}

//WritePhylip will write m as a sequential phylip matrix, one tab-separated taxon per line
func WritePhylip(w io.Writer, m *Matrix) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\t%d\n", m.NumberOfTaxa(), m.NumberOfCharacters())
	for _, name := range m.TaxOrder {
		seq, err := m.Sequence(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(bw, "%s\t%s\n", name, seq)
	}
	return bw.Flush()
}
