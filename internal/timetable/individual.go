package timetable

import "math/rand"

// Gene is one concrete meeting: which assignment instance meets where and when.
type Gene struct {
	AssignmentIdx int    `json:"assignmentIdx"`
	AssignmentID  string `json:"assignmentId"`
	CourseID      string `json:"courseId"`
	FacultyID     string `json:"facultyId"`
	Instance      int    `json:"instance"`

	ClassroomIdx int `json:"classroomIdx"`
	DayIdx       int `json:"dayIdx"`
	TimeSlotIdx  int `json:"timeSlotIdx"`
}

// Individual is one candidate schedule. Fitness and Conflicts are only meaningful after Evaluate.
type Individual struct {
	Genes     []Gene  `json:"genes"`
	Fitness   float64 `json:"fitness"`
	Conflicts int     `json:"conflicts"`
}

// Clone returns a deep copy that shares no gene storage with ind.
func (ind *Individual) Clone() *Individual {
	genes := make([]Gene, len(ind.Genes))
	copy(genes, ind.Genes)
	return &Individual{
		Genes:     genes,
		Fitness:   ind.Fitness,
		Conflicts: ind.Conflicts,
	}
}

// newTemplate builds the canonical gene sequence for a catalog: assignments in input order,
// instances 0..TimesPerWeek-1 within each. Every individual of a run is derived from this
// template, so position i always refers to the same assignment instance and positional
// crossover stays aligned.
func newTemplate(c *Catalog) []Gene {
	genes := make([]Gene, 0, c.TotalDemand())
	for i, a := range c.Assignments {
		for n := 0; n < a.TimesPerWeek; n++ {
			genes = append(genes, Gene{
				AssignmentIdx: i,
				AssignmentID:  a.ID,
				CourseID:      a.CourseID,
				FacultyID:     a.FacultyID,
				Instance:      n,
			})
		}
	}
	return genes
}

// randomIndividual draws every slot field independently and uniformly. Collisions are
// allowed here and penalised by Evaluate.
func randomIndividual(template []Gene, c *Catalog, rng *rand.Rand) *Individual {
	genes := make([]Gene, len(template))
	copy(genes, template)
	for i := range genes {
		genes[i].ClassroomIdx = rng.Intn(len(c.Classrooms))
		genes[i].DayIdx = rng.Intn(len(c.Days))
		genes[i].TimeSlotIdx = rng.Intn(len(c.TimeSlots))
	}
	return &Individual{Genes: genes}
}
