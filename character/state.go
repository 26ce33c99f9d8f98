package character

import (
	"fmt"
	"math/bits"
	"strings"
)

// Character is one observed cell of a discrete character matrix. Bits holds
// the set of compatible states; more than one bit set means the observation
// is ambiguous. Missing observations carry every state.
type Character struct {
	Bits    uint64
	Gap     bool
	Missing bool
}

// IsAmbiguous reports whether more than one state is compatible.
func (c Character) IsAmbiguous() bool {
	return bits.OnesCount64(c.Bits) > 1
}

// NumObserved returns the number of compatible states.
func (c Character) NumObserved() int {
	return bits.OnesCount64(c.Bits)
}

// StateIndex returns the lowest compatible state or -1 for an empty set.
func (c Character) StateIndex() int {
	if c.Bits == 0 {
		return -1
	}
	return bits.TrailingZeros64(c.Bits)
}

// Alphabet is a fixed-cardinality set of character states able to convert
// between symbols and state sets.
type Alphabet interface {
	Name() string
	NumStates() int
	ParseSequence(seq string) ([]Character, error)
	Format(c Character) string
	StateSymbol(i int) string
}

// AllStates returns the bitmask with every state of a set.
func AllStates(a Alphabet) uint64 {
	n := a.NumStates()
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n)) - 1
}

// FromIndex returns an unambiguous character for state i.
func FromIndex(i int) Character {
	return Character{Bits: uint64(1) << uint(i)}
}

type dna struct{}

// DNA is the four-state nucleotide alphabet with IUPAC ambiguity codes.
var DNA Alphabet = dna{}

var dnaCodes = map[byte]uint64{
	'A': 1, 'C': 2, 'G': 4, 'T': 8, 'U': 8,
	'R': 1 | 4, 'Y': 2 | 8, 'M': 1 | 2, 'K': 4 | 8, 'S': 2 | 4, 'W': 1 | 8,
	'H': 1 | 2 | 8, 'B': 2 | 4 | 8, 'V': 1 | 2 | 4, 'D': 1 | 4 | 8,
	'N': 15,
}

func (dna) Name() string   { return "DNA" }
func (dna) NumStates() int { return 4 }

func (dna) StateSymbol(i int) string { return string("ACGT"[i]) }

func (d dna) ParseSequence(seq string) ([]Character, error) {
	var ret []Character
	for i := 0; i < len(seq); i++ {
		s := seq[i]
		switch {
		case s == ' ' || s == '\t':
			continue
		case s == '-':
			ret = append(ret, Character{Gap: true})
		case s == '?':
			ret = append(ret, Character{Bits: 15, Missing: true})
		default:
			b, ok := dnaCodes[upper(s)]
			if !ok {
				return nil, fmt.Errorf("%w: %q is not a DNA symbol", ErrSymbol, s)
			}
			ret = append(ret, Character{Bits: b})
		}
	}
	return ret, nil
}

func (dna) Format(c Character) string {
	switch {
	case c.Gap:
		return "-"
	case c.Missing:
		return "?"
	}
	for k, v := range dnaCodes {
		if v == c.Bits && k != 'U' {
			return string(k)
		}
	}
	return "?"
}

const standardSymbols = "0123456789ABCDEFGHIJKLMNOPQRSTUV"

// Standard is a k-state morphological alphabet with symbols 0-9 then A-V.
// Ambiguity is written as {01} or (01).
type Standard struct {
	K int
}

// NewStandard returns a k-state alphabet.
func NewStandard(k int) (Standard, error) {
	if k < 2 || k > len(standardSymbols) {
		return Standard{}, fmt.Errorf("%w: %d states", ErrAlphabetSize, k)
	}
	return Standard{K: k}, nil
}

func (s Standard) Name() string             { return fmt.Sprintf("Standard(%d)", s.K) }
func (s Standard) NumStates() int           { return s.K }
func (s Standard) StateSymbol(i int) string { return string(standardSymbols[i]) }

func (s Standard) symbol(b byte) (int, error) {
	i := strings.IndexByte(standardSymbols, upper(b))
	if i < 0 || i >= s.K {
		return -1, fmt.Errorf("%w: %q is not a state of %s", ErrSymbol, b, s.Name())
	}
	return i, nil
}

func (s Standard) ParseSequence(seq string) ([]Character, error) {
	var ret []Character
	all := AllStates(s)
	for i := 0; i < len(seq); i++ {
		b := seq[i]
		switch b {
		case ' ', '\t':
			continue
		case '-':
			ret = append(ret, Character{Gap: true})
		case '?':
			ret = append(ret, Character{Bits: all, Missing: true})
		case '{', '(':
			closing := byte('}')
			if b == '(' {
				closing = ')'
			}
			end := strings.IndexByte(seq[i:], closing)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated ambiguity set", ErrSymbol)
			}
			var mask uint64
			for _, m := range []byte(seq[i+1 : i+end]) {
				if m == ' ' || m == ',' {
					continue
				}
				idx, err := s.symbol(m)
				if err != nil {
					return nil, err
				}
				mask |= 1 << uint(idx)
			}
			ret = append(ret, Character{Bits: mask})
			i += end
		default:
			idx, err := s.symbol(b)
			if err != nil {
				return nil, err
			}
			ret = append(ret, FromIndex(idx))
		}
	}
	return ret, nil
}

func (s Standard) Format(c Character) string {
	switch {
	case c.Gap:
		return "-"
	case c.Missing:
		return "?"
	case c.IsAmbiguous():
		var b strings.Builder
		b.WriteString("{")
		for i := 0; i < s.K; i++ {
			if c.Bits&(1<<uint(i)) != 0 {
				b.WriteByte(standardSymbols[i])
			}
		}
		b.WriteString("}")
		return b.String()
	}
	if i := c.StateIndex(); i >= 0 {
		return string(standardSymbols[i])
	}
	return "?"
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
