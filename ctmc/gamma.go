package ctmc

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// DiscreteGamma returns k equal-probability rate categories of a mean-one
// gamma distribution with shape alpha. With median set each category is
// represented by its median rescaled to mean one, otherwise by its mean.
func DiscreteGamma(alpha float64, k int, median bool) ([]float64, error) {
	if !(alpha > 0) {
		return nil, fmt.Errorf("%w: %g", ErrGammaShape, alpha)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: %d", ErrGammaNumCats, k)
	}
	rates := make([]float64, k)
	if k == 1 {
		rates[0] = 1
		return rates, nil
	}
	g := distuv.Gamma{Alpha: alpha, Beta: alpha}
	if median {
		for i := range rates {
			rates[i] = g.Quantile((2*float64(i) + 1) / (2 * float64(k)))
		}
		floats.Scale(float64(k)/floats.Sum(rates), rates)
		return rates, nil
	}
	// E[X; a<X<b] for Gamma(alpha, rate alpha) is P(alpha+1, alpha*b)-P(alpha+1, alpha*a)
	prev := 0.
	for i := 0; i < k; i++ {
		cur := 1.
		if i < k-1 {
			cur = mathext.GammaIncReg(alpha+1, alpha*g.Quantile(float64(i+1)/float64(k)))
		}
		rates[i] = (cur - prev) * float64(k)
		prev = cur
	}
	return rates, nil
}
