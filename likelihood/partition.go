package likelihood

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mewbak/revbayes/character"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Partitioned splits the site patterns into contiguous blocks, one engine
// per block, evaluates the blocks concurrently and broadcasts the summed
// log-likelihood back to every engine.
type Partitioned struct {
	engines []*Engine
}

// NewPartitioned builds n engines over the same tree and data. model is
// called once per engine; operators may be shared as long as they are not
// mutated during an evaluation.
func NewPartitioned(n int, topo Topology, data *character.Matrix, model func() Model, opts ...Option) (*Partitioned, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d processes", ErrProcessIndex, n)
	}
	p := &Partitioned{}
	for pid := 0; pid < n; pid++ {
		e, err := NewEngine(topo, data, model(), opts...)
		if err != nil {
			p.Close()
			return nil, err
		}
		e.SetNumberOfProcesses(n)
		e.SetActiveProcess(pid)
		if err := e.prepare(); err != nil {
			e.Close()
			p.Close()
			return nil, err
		}
		p.engines = append(p.engines, e)
	}
	return p, nil
}

// Engines returns the per-block engines ordered by process index.
func (p *Partitioned) Engines() []*Engine { return p.engines }

// Close unsubscribes every engine.
func (p *Partitioned) Close() {
	for _, e := range p.engines {
		e.Close()
	}
}

// ComputeLnProbability evaluates every block and returns their sum.
func (p *Partitioned) ComputeLnProbability() (float64, error) {
	// subscriptions and rebuilds mutate shared state, so they run first
	for _, e := range p.engines {
		if err := e.prepare(); err != nil {
			return math.Inf(-1), err
		}
	}
	vals := make([]float64, len(p.engines))
	var g errgroup.Group
	for i, e := range p.engines {
		g.Go(func() error {
			v, err := e.evaluate()
			vals[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return math.Inf(-1), err
	}
	total := floats.Sum(vals)
	for _, e := range p.engines {
		e.SetCombinedLnProbability(total)
	}
	return total, nil
}

func (p *Partitioned) Touch(a Affecter) {
	for _, e := range p.engines {
		e.Touch(a)
	}
}

func (p *Partitioned) Keep(a Affecter) error {
	for _, e := range p.engines {
		if err := e.Keep(a); err != nil {
			return err
		}
	}
	return nil
}

func (p *Partitioned) Restore(a Affecter) error {
	for _, e := range p.engines {
		if err := e.Restore(a); err != nil {
			return err
		}
	}
	return nil
}

func (p *Partitioned) InTransaction() bool {
	for _, e := range p.engines {
		if e.InTransaction() {
			return true
		}
	}
	return false
}

func (p *Partitioned) SetPInv(v float64) error {
	for _, e := range p.engines {
		if err := e.SetPInv(v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Partitioned) PInv() float64 { return p.engines[0].PInv() }

func (p *Partitioned) SetClockRate(r float64) {
	for _, e := range p.engines {
		e.SetClockRate(r)
	}
}

func (p *Partitioned) ClockRate() float64 { return p.engines[0].ClockRate() }

// Bootstrap resamples the pattern counts once and hands the same counts
// to every block.
func (p *Partitioned) Bootstrap(rng *rand.Rand) error {
	pat, err := p.engines[0].compress()
	if err != nil {
		return err
	}
	pat.Resample(rng)
	for _, e := range p.engines {
		if err := e.usePatterns(pat); err != nil {
			return err
		}
	}
	return nil
}
