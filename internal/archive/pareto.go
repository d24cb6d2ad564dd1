package archive

// paretoRanks computes the Pareto rank of each vector in vectors (same
// order as input): rank 0 is the non-dominated front (coordinate-wise ≥
// with at least one strict >, maximize-oriented after sign inversion for
// minimize metrics), peeled repeatedly until every vector is assigned.
func paretoRanks(vectors [][]float64) []int {
	n := len(vectors)
	ranks := make([]int, n)
	assigned := make([]bool, n)
	remaining := n

	for rank := 0; remaining > 0; rank++ {
		var front []int
		for i := 0; i < n; i++ {
			if assigned[i] {
				continue
			}
			dominated := false
			for j := 0; j < n; j++ {
				if j == i || assigned[j] {
					continue
				}
				if dominates(vectors[j], vectors[i]) {
					dominated = true
					break
				}
			}
			if !dominated {
				front = append(front, i)
			}
		}
		for _, i := range front {
			ranks[i] = rank
			assigned[i] = true
			remaining--
		}
		if len(front) == 0 {
			// Defensive: break an otherwise infinite loop if something odd
			// leaves remaining candidates unassignable (should not happen
			// for finite, well-formed vectors).
			break
		}
	}
	return ranks
}

// dominates reports whether a dominates b: coordinate-wise a >= b with at
// least one strict a > b.
func dominates(a, b []float64) bool {
	strictlyBetter := false
	for i := range a {
		if a[i] < b[i] {
			return false
		}
		if a[i] > b[i] {
			strictlyBetter = true
		}
	}
	return strictlyBetter
}
