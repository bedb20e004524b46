package timetable

import "math/rand"

// TournamentSelect samples k individuals uniformly with replacement and returns the fittest.
// The population must already be evaluated. The returned pointer aliases pop; clone it
// before changing genes.
func TournamentSelect(pop []*Individual, k int, rng *rand.Rand) *Individual {
	if k < 1 {
		k = 1
	}
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < k; i++ {
		candidate := pop[rng.Intn(len(pop))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

// Crossover is single point at floor(len/2): the child takes the first half of its genes
// from p1 and the rest from p2, by position. Both parents come from the same template so
// positions line up.
func Crossover(p1, p2 *Individual) *Individual {
	n := len(p1.Genes)
	point := n / 2
	genes := make([]Gene, n)
	copy(genes[:point], p1.Genes[:point])
	copy(genes[point:], p2.Genes[point:])
	return &Individual{Genes: genes}
}

// Mutate returns a copy of ind where each gene, with probability rate, has exactly one of
// its classroom, day or time-slot fields redrawn. Fitness and Conflicts are carried over
// unchanged and are stale until the next Evaluate.
func Mutate(ind *Individual, c *Catalog, rate float64, rng *rand.Rand) *Individual {
	child := ind.Clone()
	for i := range child.Genes {
		if rng.Float64() >= rate {
			continue
		}
		g := &child.Genes[i]
		switch rng.Intn(3) {
		case 0:
			g.ClassroomIdx = rng.Intn(len(c.Classrooms))
		case 1:
			g.DayIdx = rng.Intn(len(c.Days))
		default:
			g.TimeSlotIdx = rng.Intn(len(c.TimeSlots))
		}
	}
	return child
}
