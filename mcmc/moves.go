package mcmc

import (
	"math"
	"math/rand/v2"
)

// minLogBrlen is the reflection boundary of the branch-length multiplier.
var minLogBrlen = math.Log(0.001)

func singleBrlenMultiplierProp(rng *rand.Rand, theta, epsilon float64) (thetaStar, propRat float64) {
	u := rng.Float64()
	c := math.Exp((u - 0.5) * epsilon)
	thetaStar = theta * c
	propRat = c
	if math.Log(thetaStar) < minLogBrlen { //place a lower constraint on brlen
		thetaStar = math.Exp(2*minLogBrlen - math.Log(thetaStar))
		propRat = thetaStar / theta
	}
	return
}

func cladeBrlenMultiplierProp(rng *rand.Rand, theta []float64, epsilon float64) (thetaStar []float64, propRat float64) {
	u := rng.Float64()
	c := math.Exp((u - 0.5) * epsilon)
	propRat = math.Pow(c, float64(len(theta)))
	thetaStar = make([]float64, len(theta))
	for i := range theta {
		thetaStar[i] = theta[i] * c
	}
	return
}

// unitSlidingWindow proposes a value in [0,1], reflecting at both ends.
func unitSlidingWindow(rng *rand.Rand, theta, wsize float64) float64 {
	thetaStar := theta - wsize/2 + wsize*rng.Float64()
	for thetaStar < 0 || thetaStar > 1 {
		if thetaStar < 0 {
			thetaStar = -thetaStar
		}
		if thetaStar > 1 {
			thetaStar = 2 - thetaStar
		}
	}
	return thetaStar
}

// adjustStepLength rescales the multiplier step length towards the optimal
// acceptance ratio for uniform proposals.
func adjustStepLength(epsilon, acceptanceRatio float64) float64 {
	const acceptanceRatioStar = 0.44
	s := math.Pi / 2.
	epsilonStar := epsilon * (math.Tan(s*acceptanceRatio) / math.Tan(s*acceptanceRatioStar))
	return math.Min(math.Max(epsilonStar, minStepLength), maxStepLength)
}

const (
	minStepLength = 1e-3
	maxStepLength = 10
)
