package timetable

const (
	// ConflictPenalty is subtracted from the distribution score for every conflict.
	ConflictPenalty = 500.0

	dayBonus        = 15.0
	spreadBonus     = 5.0
	roomDiversity   = 20.0
	roomDiversityAt = 3
)

// DistributionScore rewards spreading each assignment's meetings over distinct days and
// using a variety of classrooms. Higher is better; there is no upper bound.
func DistributionScore(ind *Individual, c *Catalog) float64 {
	type span struct {
		days     map[int]struct{}
		min, max int
	}
	spans := make(map[int]*span)
	rooms := make(map[int]struct{})

	for _, g := range ind.Genes {
		rooms[g.ClassroomIdx] = struct{}{}
		s, ok := spans[g.AssignmentIdx]
		if !ok {
			s = &span{days: make(map[int]struct{}), min: g.DayIdx, max: g.DayIdx}
			spans[g.AssignmentIdx] = s
		}
		s.days[g.DayIdx] = struct{}{}
		if g.DayIdx < s.min {
			s.min = g.DayIdx
		}
		if g.DayIdx > s.max {
			s.max = g.DayIdx
		}
	}

	score := 0.0
	for _, s := range spans {
		distinct := len(s.days)
		score += float64(distinct) * dayBonus
		if distinct > 1 {
			score += float64(s.max-s.min) * spreadBonus
		}
	}
	if len(rooms) >= min(roomDiversityAt, len(c.Classrooms)) {
		score += roomDiversity
	}
	return score
}

// Evaluate recomputes Conflicts and Fitness for ind. It must run after every gene change;
// values carried over from a parent are stale until then.
func Evaluate(ind *Individual, c *Catalog) {
	evaluate(ind, c, newIndex(c))
}

func evaluate(ind *Individual, c *Catalog, idx *index) ConflictBreakdown {
	breakdown := countConflicts(ind, idx)
	ind.Conflicts = breakdown.Total()
	ind.Fitness = DistributionScore(ind, c) - ConflictPenalty*float64(ind.Conflicts)
	return breakdown
}

// DistributionRange returns the lowest and highest distribution score any complete
// schedule of c can reach.
func DistributionRange(c *Catalog) (floor, ceiling float64) {
	days := len(c.Days)
	for _, a := range c.Assignments {
		if a.TimesPerWeek <= 0 {
			continue
		}
		floor += dayBonus
		used := min(a.TimesPerWeek, days)
		ceiling += float64(used) * dayBonus
		if used > 1 {
			ceiling += float64(days-1) * spreadBonus
		}
	}
	ceiling += roomDiversity
	rooms := len(c.Classrooms)
	if rooms == 0 || (rooms == 1 && c.TotalDemand() > 0) {
		floor += roomDiversity
	}
	return floor, ceiling
}

// PenaltyDominates reports whether one conflict always outweighs any distribution
// difference for c, i.e. every conflict-free schedule outranks every schedule with conflicts.
func PenaltyDominates(c *Catalog) bool {
	floor, ceiling := DistributionRange(c)
	return ceiling-floor < ConflictPenalty
}
