package ctmc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GTR is the general time-reversible model over n states. Rates holds the
// n(n-1)/2 exchangeabilities of the upper triangle in row order. The rate
// matrix is rescaled so that the expected number of changes per unit time is
// one.
type GTR struct {
	n     int
	rates []float64
	freqs []float64

	evals []float64
	left  *mat.Dense // D^{-1/2} V
	right *mat.Dense // V^T D^{1/2}
	ready bool
}

//NewGTR will build and decompose a GTR model
func NewGTR(rates, freqs []float64) (*GTR, error) {
	n := len(freqs)
	if n < 2 {
		return nil, fmt.Errorf("%w: %d", ErrNumStates, n)
	}
	g := &GTR{n: n}
	if err := g.SetFrequencies(freqs); err != nil {
		return nil, err
	}
	if err := g.SetRates(rates); err != nil {
		return nil, err
	}
	return g, nil
}

//NewJC will return the Jukes-Cantor model
func NewJC() *GTR {
	g, _ := NewGTR([]float64{1, 1, 1, 1, 1, 1}, []float64{.25, .25, .25, .25})
	return g
}

//NewHKY will return the HKY85 model for nucleotides ordered ACGT
func NewHKY(kappa float64, freqs []float64) (*GTR, error) {
	// AC AG AT CG CT GT
	return NewGTR([]float64{1, kappa, 1, 1, kappa, 1}, freqs)
}

func (g *GTR) NumStates() int { return g.n }

// StationaryFrequencies returns a copy of the equilibrium frequencies.
func (g *GTR) StationaryFrequencies() ([]float64, bool) {
	return append([]float64(nil), g.freqs...), true
}

// SetRates replaces the exchangeabilities and re-decomposes the rate matrix.
func (g *GTR) SetRates(rates []float64) error {
	if len(rates) != g.n*(g.n-1)/2 {
		return fmt.Errorf("%w: got %d rates for %d states", ErrExchangeRates, len(rates), g.n)
	}
	for _, r := range rates {
		if !(r > 0) {
			return fmt.Errorf("%w: %g", ErrExchangeRates, r)
		}
	}
	g.rates = append(g.rates[:0], rates...)
	if g.freqs == nil {
		return nil
	}
	return g.decompose()
}

// SetFrequencies replaces the stationary frequencies, normalising them to
// sum to one, and re-decomposes the rate matrix.
func (g *GTR) SetFrequencies(freqs []float64) error {
	if len(freqs) != g.n {
		return fmt.Errorf("%w: got %d frequencies for %d states", ErrFrequencies, len(freqs), g.n)
	}
	for _, f := range freqs {
		if !(f > 0) {
			return fmt.Errorf("%w: %g", ErrFrequencies, f)
		}
	}
	g.freqs = append(g.freqs[:0], freqs...)
	floats.Scale(1/floats.Sum(g.freqs), g.freqs)
	if g.rates == nil {
		return nil
	}
	return g.decompose()
}

// RateMatrix returns the normalised instantaneous rate matrix Q.
func (g *GTR) RateMatrix() *mat.Dense {
	q := mat.NewDense(g.n, g.n, nil)
	k := 0
	for i := 0; i < g.n; i++ {
		for j := i + 1; j < g.n; j++ {
			q.Set(i, j, g.rates[k]*g.freqs[j])
			q.Set(j, i, g.rates[k]*g.freqs[i])
			k++
		}
	}
	mu := 0.
	for i := 0; i < g.n; i++ {
		row := floats.Sum(q.RawRowView(i))
		q.Set(i, i, -row)
		mu += g.freqs[i] * row
	}
	q.Scale(1/mu, q)
	return q
}

// decompose symmetrises Q as S = D^{1/2} Q D^{-1/2} with D = diag(freqs) and
// factorises S = V L V^T, so that P(t) = D^{-1/2} V exp(Lt) V^T D^{1/2}.
func (g *GTR) decompose() error {
	q := g.RateMatrix()
	sq := make([]float64, g.n)
	for i, f := range g.freqs {
		sq[i] = math.Sqrt(f)
	}
	s := mat.NewSymDense(g.n, nil)
	for i := 0; i < g.n; i++ {
		for j := i; j < g.n; j++ {
			s.SetSym(i, j, q.At(i, j)*sq[i]/sq[j])
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(s, true); !ok {
		g.ready = false
		return ErrDecomposition
	}
	g.evals = es.Values(nil)
	var v mat.Dense
	es.VectorsTo(&v)
	g.left = mat.NewDense(g.n, g.n, nil)
	g.right = mat.NewDense(g.n, g.n, nil)
	for i := 0; i < g.n; i++ {
		for k := 0; k < g.n; k++ {
			g.left.Set(i, k, v.At(i, k)/sq[i])
			g.right.Set(k, i, v.At(i, k)*sq[i])
		}
	}
	g.ready = true
	return nil
}

// TransitionProbabilities fills out with P(t) for t=(start-end)*rate. Small
// negative entries produced by rounding are clamped to zero.
func (g *GTR) TransitionProbabilities(start, end, rate float64, out *mat.Dense) {
	if !g.ready {
		panic(ErrNotInitialized)
	}
	t := (start - end) * rate
	for i := 0; i < g.n; i++ {
		for j := 0; j < g.n; j++ {
			p := 0.
			for k := 0; k < g.n; k++ {
				p += g.left.At(i, k) * math.Exp(g.evals[k]*t) * g.right.At(k, j)
			}
			if p < 0 {
				p = 0
			}
			out.Set(i, j, p)
		}
	}
}
