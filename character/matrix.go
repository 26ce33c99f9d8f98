package character

import (
	"fmt"
	"sort"
)

//Matrix will store the discrete characters of every taxon along with the set of excluded sites
type Matrix struct {
	Alphabet Alphabet
	TaxOrder []string // stores the order that taxa were added in
	rows     map[string][]Character
	nchar    int
	excluded map[int]bool
}

//NewMatrix will initialize an empty Matrix over the given alphabet
func NewMatrix(a Alphabet) *Matrix {
	m := new(Matrix)
	m.Alphabet = a
	m.rows = make(map[string][]Character)
	m.excluded = make(map[int]bool)
	m.nchar = -1
	return m
}

//AddTaxon will append a row of characters for the named taxon
func (m *Matrix) AddTaxon(name string, chars []Character) error {
	if _, ok := m.rows[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTaxon, name)
	}
	if m.nchar >= 0 && len(chars) != m.nchar {
		return fmt.Errorf("%w: %q has %d characters, expected %d", ErrSequenceLength, name, len(chars), m.nchar)
	}
	m.nchar = len(chars)
	m.rows[name] = chars
	m.TaxOrder = append(m.TaxOrder, name)
	return nil
}

//AddSequence will parse seq with the matrix alphabet and add it as a row
func (m *Matrix) AddSequence(name, seq string) error {
	chars, err := m.Alphabet.ParseSequence(seq)
	if err != nil {
		return fmt.Errorf("taxon %q: %w", name, err)
	}
	return m.AddTaxon(name, chars)
}

//NumberOfTaxa will return the number of rows
func (m *Matrix) NumberOfTaxa() int { return len(m.TaxOrder) }

//NumberOfCharacters will return the number of columns, excluded ones included
func (m *Matrix) NumberOfCharacters() int {
	if m.nchar < 0 {
		return 0
	}
	return m.nchar
}

// Row returns the characters of a taxon.
func (m *Matrix) Row(name string) ([]Character, bool) {
	r, ok := m.rows[name]
	return r, ok
}

// Character returns one cell of the matrix.
func (m *Matrix) Character(name string, site int) (Character, error) {
	r, ok := m.rows[name]
	if !ok {
		return Character{}, fmt.Errorf("%w: %q", ErrUnknownTaxon, name)
	}
	if site < 0 || site >= len(r) {
		return Character{}, fmt.Errorf("%w: %d", ErrSiteIndex, site)
	}
	return r[site], nil
}

// ExcludeCharacter drops a column from every analysis until it is included again.
func (m *Matrix) ExcludeCharacter(site int) error {
	if site < 0 || site >= m.NumberOfCharacters() {
		return fmt.Errorf("%w: %d", ErrSiteIndex, site)
	}
	m.excluded[site] = true
	return nil
}

// IncludeCharacter reverses ExcludeCharacter.
func (m *Matrix) IncludeCharacter(site int) error {
	if site < 0 || site >= m.NumberOfCharacters() {
		return fmt.Errorf("%w: %d", ErrSiteIndex, site)
	}
	delete(m.excluded, site)
	return nil
}

func (m *Matrix) IsExcluded(site int) bool { return m.excluded[site] }

// NumberOfIncludedCharacters returns the number of columns not excluded.
func (m *Matrix) NumberOfIncludedCharacters() int {
	return m.NumberOfCharacters() - len(m.excluded)
}

// IncludedSiteIndices returns the first n included columns in order. n<0
// selects every included column. Asking for more columns than are included
// is an error, as is a request that would leave included columns unused.
func (m *Matrix) IncludedSiteIndices(n int) ([]int, error) {
	inc := m.NumberOfIncludedCharacters()
	if n < 0 {
		n = inc
	}
	if n > inc {
		return nil, fmt.Errorf("%w: requested %d, %d included", ErrNotEnoughIncludedSites, n, inc)
	}
	if n < inc {
		return nil, fmt.Errorf("%w: requested %d, %d included", ErrTooManyIncludedSites, n, inc)
	}
	ret := make([]int, 0, n)
	for i := 0; i < m.NumberOfCharacters() && len(ret) < n; i++ {
		if !m.excluded[i] {
			ret = append(ret, i)
		}
	}
	return ret, nil
}

// ExcludedSites returns the excluded column indices in ascending order.
func (m *Matrix) ExcludedSites() []int {
	ret := make([]int, 0, len(m.excluded))
	for k := range m.excluded {
		ret = append(ret, k)
	}
	sort.Ints(ret)
	return ret
}

// Sequence formats the row of a taxon with the matrix alphabet.
func (m *Matrix) Sequence(name string) (string, error) {
	r, ok := m.rows[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTaxon, name)
	}
	var b []byte
	for _, c := range r {
		b = append(b, m.Alphabet.Format(c)...)
	}
	return string(b), nil
}
