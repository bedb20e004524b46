package timetable

// ConflictBreakdown counts double-bookings per resource kind.
type ConflictBreakdown struct {
	Faculty   int `json:"faculty"`
	Classroom int `json:"classroom"`
	Cohort    int `json:"cohort"`
}

// Total is the sum of all three kinds.
func (b ConflictBreakdown) Total() int {
	return b.Faculty + b.Classroom + b.Cohort
}

type occupancyKey struct {
	owner string
	day   int
	slot  int
}

// CountConflicts recomputes the conflict breakdown from scratch. Every extra occupant of an
// already occupied (owner, day, slot) cell counts as one conflict, so three meetings in the
// same cell count two, not three pairs.
func CountConflicts(ind *Individual, c *Catalog) ConflictBreakdown {
	return countConflicts(ind, newIndex(c))
}

func countConflicts(ind *Individual, idx *index) ConflictBreakdown {
	n := len(ind.Genes)
	faculty := make(map[occupancyKey]int, n)
	rooms := make(map[occupancyKey]int, n)
	cohorts := make(map[occupancyKey]int, n)

	for _, g := range ind.Genes {
		faculty[occupancyKey{owner: g.FacultyID, day: g.DayIdx, slot: g.TimeSlotIdx}]++
		rooms[occupancyKey{owner: idx.roomNames[g.ClassroomIdx], day: g.DayIdx, slot: g.TimeSlotIdx}]++
		// a course without a cohort contributes nothing to cohort conflicts
		if cohortID, ok := idx.cohortByCourse[g.CourseID]; ok {
			cohorts[occupancyKey{owner: cohortID, day: g.DayIdx, slot: g.TimeSlotIdx}]++
		}
	}

	return ConflictBreakdown{
		Faculty:   surplus(faculty),
		Classroom: surplus(rooms),
		Cohort:    surplus(cohorts),
	}
}

func surplus(counts map[occupancyKey]int) int {
	total := 0
	for _, n := range counts {
		if n > 1 {
			total += n - 1
		}
	}
	return total
}
