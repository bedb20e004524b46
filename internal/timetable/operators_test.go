package timetable

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCatalog() *Catalog {
	return &Catalog{
		Cohorts: []Cohort{
			{ID: "g10", Name: "Grade 10", Courses: []Course{
				{ID: "math", Code: "MTH", Name: "Mathematics"},
				{ID: "phy", Code: "PHY", Name: "Physics"},
			}},
			{ID: "g11", Name: "Grade 11", Courses: []Course{
				{ID: "bio", Code: "BIO", Name: "Biology"},
				{ID: "chem", Code: "CHM", Name: "Chemistry"},
			}},
		},
		Faculty: []Faculty{
			{ID: "f1", Code: "AR", Name: "A. Rahman"},
			{ID: "f2", Code: "SW", Name: "S. Wijaya"},
		},
		Classrooms: []Classroom{{Name: "R101"}, {Name: "R102"}, {Name: "LAB"}},
		Days:       []Day{{Label: "Mon"}, {Label: "Tue"}, {Label: "Wed"}, {Label: "Thu"}, {Label: "Fri"}},
		TimeSlots: []TimeSlot{
			{Label: "P1", Start: "07:00", End: "07:45"},
			{Label: "P2", Start: "07:45", End: "08:30"},
			{Label: "P3", Start: "08:45", End: "09:30"},
			{Label: "P4", Start: "09:30", End: "10:15"},
		},
		Assignments: []Assignment{
			{ID: "a1", CourseID: "math", FacultyID: "f1", TimesPerWeek: 3},
			{ID: "a2", CourseID: "phy", FacultyID: "f2", TimesPerWeek: 3},
			{ID: "a3", CourseID: "bio", FacultyID: "f1", TimesPerWeek: 2},
			{ID: "a4", CourseID: "chem", FacultyID: "f2", TimesPerWeek: 2},
		},
	}
}

func gene(assignment int, course, faculty string, room, day, slot int) Gene {
	return Gene{
		AssignmentIdx: assignment,
		CourseID:      course,
		FacultyID:     faculty,
		ClassroomIdx:  room,
		DayIdx:        day,
		TimeSlotIdx:   slot,
	}
}

func TestCountConflictsSameFacultySameSlot(t *testing.T) {
	c := sampleCatalog()
	ind := &Individual{Genes: []Gene{
		gene(0, "math", "f1", 0, 0, 0),
		gene(2, "bio", "f1", 1, 0, 0),
	}}

	breakdown := CountConflicts(ind, c)
	assert.Equal(t, 1, breakdown.Faculty)
	assert.Equal(t, 0, breakdown.Classroom)
	assert.Equal(t, 0, breakdown.Cohort)
	assert.Equal(t, 1, breakdown.Total())
}

func TestCountConflictsDistinctSlotsAreClean(t *testing.T) {
	c := sampleCatalog()
	ind := &Individual{Genes: []Gene{
		gene(0, "math", "f1", 0, 0, 0),
		gene(2, "bio", "f1", 0, 0, 1),
	}}

	assert.Equal(t, 0, CountConflicts(ind, c).Total())
}

func TestCountConflictsCountsExtraOccupants(t *testing.T) {
	c := sampleCatalog()
	ind := &Individual{Genes: []Gene{
		gene(0, "math", "f1", 2, 1, 1),
		gene(1, "phy", "f2", 2, 1, 1),
		gene(2, "bio", "f1", 2, 1, 1),
	}}

	breakdown := CountConflicts(ind, c)
	assert.Equal(t, 2, breakdown.Classroom, "three meetings in one room cell are two conflicts")
	assert.Equal(t, 1, breakdown.Faculty)
	assert.Equal(t, 1, breakdown.Cohort, "math and phy share Grade 10")
}

func TestCountConflictsIgnoresCohortlessCourse(t *testing.T) {
	c := sampleCatalog()
	c.Faculty = append(c.Faculty, Faculty{ID: "f3", Name: "Guest"})
	ind := &Individual{Genes: []Gene{
		gene(0, "orphan", "f1", 0, 0, 0),
		gene(1, "orphan", "f3", 1, 0, 0),
	}}

	assert.Equal(t, 0, CountConflicts(ind, c).Cohort)
}

func TestCountConflictsIsOrderIndependent(t *testing.T) {
	c := sampleCatalog()
	ind := randomIndividual(newTemplate(c), c, rand.New(rand.NewSource(7)))
	forward := CountConflicts(ind, c)

	reversed := ind.Clone()
	for i, j := 0, len(reversed.Genes)-1; i < j; i, j = i+1, j-1 {
		reversed.Genes[i], reversed.Genes[j] = reversed.Genes[j], reversed.Genes[i]
	}
	assert.Equal(t, forward, CountConflicts(reversed, c))
}

func TestDistributionScore(t *testing.T) {
	c := sampleCatalog()

	spread := &Individual{Genes: []Gene{
		gene(0, "math", "f1", 0, 0, 0),
		gene(0, "math", "f1", 0, 3, 0),
	}}
	assert.Equal(t, 2*dayBonus+3*spreadBonus, DistributionScore(spread, c))

	sameDay := &Individual{Genes: []Gene{
		gene(0, "math", "f1", 0, 2, 0),
		gene(0, "math", "f1", 1, 2, 1),
		gene(1, "phy", "f2", 2, 4, 0),
	}}
	assert.Equal(t, 2*dayBonus+roomDiversity, DistributionScore(sameDay, c))
}

func TestEvaluateConflictFreeOutranksConflicted(t *testing.T) {
	c := sampleCatalog()
	clean := &Individual{Genes: []Gene{
		gene(0, "math", "f1", 0, 0, 0),
		gene(2, "bio", "f1", 0, 0, 1),
	}}
	clash := &Individual{Genes: []Gene{
		gene(0, "math", "f1", 0, 0, 0),
		gene(2, "bio", "f1", 1, 0, 0),
	}}

	Evaluate(clean, c)
	Evaluate(clash, c)

	assert.Equal(t, 0, clean.Conflicts)
	assert.Equal(t, 1, clash.Conflicts)
	assert.Greater(t, clean.Fitness, clash.Fitness)
	assert.Equal(t, DistributionScore(clash, c)-ConflictPenalty, clash.Fitness)
}

func TestPenaltyDominatesSmallCatalog(t *testing.T) {
	assert.True(t, PenaltyDominates(sampleCatalog()))

	floor, ceiling := DistributionRange(sampleCatalog())
	assert.LessOrEqual(t, floor, ceiling)
}

func TestTournamentSelect(t *testing.T) {
	weak := &Individual{Fitness: -1000}
	mid := &Individual{Fitness: 10}
	strong := &Individual{Fitness: 90}
	rng := rand.New(rand.NewSource(1))

	assert.Same(t, weak, TournamentSelect([]*Individual{weak}, 5, rng))
	assert.Same(t, strong, TournamentSelect([]*Individual{weak, mid, strong}, 100, rng))
}

func TestCrossoverSplitsAtMidpoint(t *testing.T) {
	c := sampleCatalog()
	tmpl := newTemplate(c)
	p1 := randomIndividual(tmpl, c, rand.New(rand.NewSource(1)))
	p2 := randomIndividual(tmpl, c, rand.New(rand.NewSource(2)))

	child := Crossover(p1, p2)
	require.Len(t, child.Genes, len(p1.Genes))
	point := len(p1.Genes) / 2
	assert.Equal(t, p1.Genes[:point], child.Genes[:point])
	assert.Equal(t, p2.Genes[point:], child.Genes[point:])

	child.Genes[0].DayIdx = 99
	assert.NotEqual(t, 99, p1.Genes[0].DayIdx, "child must not share storage with its parents")
}

func TestMutateLeavesParentUntouched(t *testing.T) {
	c := sampleCatalog()
	parent := randomIndividual(newTemplate(c), c, rand.New(rand.NewSource(3)))
	parent.Fitness = 12.5
	parent.Conflicts = 4
	snapshot := parent.Clone()

	child := Mutate(parent, c, 1, rand.New(rand.NewSource(4)))

	assert.Equal(t, snapshot, parent)
	assert.Equal(t, 12.5, child.Fitness, "fitness is carried over until re-evaluated")
	assert.Equal(t, 4, child.Conflicts)
	require.Len(t, child.Genes, len(parent.Genes))
	for i, g := range child.Genes {
		before := parent.Genes[i]
		changed := 0
		if g.ClassroomIdx != before.ClassroomIdx {
			changed++
		}
		if g.DayIdx != before.DayIdx {
			changed++
		}
		if g.TimeSlotIdx != before.TimeSlotIdx {
			changed++
		}
		assert.LessOrEqual(t, changed, 1, "gene %d", i)
		assert.Equal(t, before.AssignmentIdx, g.AssignmentIdx)
		assert.Equal(t, before.Instance, g.Instance)
		assertInRange(t, c, g)
	}
}

func TestMutateZeroRateIsIdentity(t *testing.T) {
	c := sampleCatalog()
	parent := randomIndividual(newTemplate(c), c, rand.New(rand.NewSource(5)))

	child := Mutate(parent, c, 0, rand.New(rand.NewSource(6)))
	assert.Equal(t, parent.Genes, child.Genes)
}

func TestTemplateMatchesDemand(t *testing.T) {
	c := sampleCatalog()
	tmpl := newTemplate(c)
	require.Len(t, tmpl, c.TotalDemand())

	perAssignment := make(map[string]int)
	for _, g := range tmpl {
		assert.Equal(t, perAssignment[g.AssignmentID], g.Instance)
		perAssignment[g.AssignmentID]++
	}
	for _, a := range c.Assignments {
		assert.Equal(t, a.TimesPerWeek, perAssignment[a.ID])
	}
}

func TestCatalogLookups(t *testing.T) {
	c := sampleCatalog()
	assert.Equal(t, 10, c.TotalDemand())
	assert.Equal(t, 60, c.Capacity())
	assert.Equal(t, 20, c.WeeklySlots())

	cohort, ok := c.CohortOf("chem")
	require.True(t, ok)
	assert.Equal(t, "g11", cohort.ID)

	_, ok = c.CohortOf("missing")
	assert.False(t, ok)

	f, ok := c.FacultyByID("f2")
	require.True(t, ok)
	assert.Equal(t, "S. Wijaya", f.Name)
}

func assertInRange(t *testing.T, c *Catalog, g Gene) {
	t.Helper()
	assert.GreaterOrEqual(t, g.ClassroomIdx, 0)
	assert.Less(t, g.ClassroomIdx, len(c.Classrooms))
	assert.GreaterOrEqual(t, g.DayIdx, 0)
	assert.Less(t, g.DayIdx, len(c.Days))
	assert.GreaterOrEqual(t, g.TimeSlotIdx, 0)
	assert.Less(t, g.TimeSlotIdx, len(c.TimeSlots))
}
