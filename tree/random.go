package tree

import "math/rand/v2"

//RandomizeBranchLengths will draw every branch length below the root uniformly from (0,1)
func (t *Tree) RandomizeBranchLengths(rng *rand.Rand) {
	for i, n := range t.nodes {
		if i == t.Root() {
			continue
		}
		n.LEN = rng.Float64()
	}
	t.computeAges()
	t.fire(ChangeEvent{Node: t.Root(), All: true})
}
