// Package timetable assigns recurring course meetings to (classroom, day, time-slot) slots
// with a generational genetic search.
//
// The package is pure computation: callers hand in an already validated Catalog and get back
// the best schedule found within the configured budget. Nothing here performs I/O.
package timetable

// Course is a single subject taught to one cohort.
type Course struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Cohort is a group of students (a "standard") that attends its courses together.
type Cohort struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Courses []Course `json:"courses"`
}

// Faculty is a teaching staff member.
type Faculty struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Classroom is identified by its label.
type Classroom struct {
	Name string `json:"name"`
}

// Day is a teaching day label, e.g. "Monday".
type Day struct {
	Label string `json:"label"`
}

// TimeSlot is a period within a day. Start and End are informational (HH:MM).
type TimeSlot struct {
	Label string `json:"label"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Assignment is one course taught by one faculty member TimesPerWeek times.
type Assignment struct {
	ID           string `json:"id"`
	CourseID     string `json:"courseId"`
	FacultyID    string `json:"facultyId"`
	TimesPerWeek int    `json:"timesPerWeek"`
}

// Catalog holds the read-only constraint data for a run.
type Catalog struct {
	Cohorts     []Cohort     `json:"cohorts"`
	Faculty     []Faculty    `json:"faculty"`
	Classrooms  []Classroom  `json:"classrooms"`
	Days        []Day        `json:"days"`
	TimeSlots   []TimeSlot   `json:"timeSlots"`
	Assignments []Assignment `json:"assignments"`
}

// TotalDemand is the number of meetings to place, i.e. the gene count of every individual.
func (c *Catalog) TotalDemand() int {
	total := 0
	for _, a := range c.Assignments {
		if a.TimesPerWeek > 0 {
			total += a.TimesPerWeek
		}
	}
	return total
}

// Capacity is the number of distinct (classroom, day, time-slot) cells.
func (c *Catalog) Capacity() int {
	return len(c.Classrooms) * len(c.Days) * len(c.TimeSlots)
}

// WeeklySlots is the number of (day, time-slot) pairs a single faculty member or cohort can occupy.
func (c *Catalog) WeeklySlots() int {
	return len(c.Days) * len(c.TimeSlots)
}

// CohortOf returns the first cohort, in catalog order, that lists courseID.
func (c *Catalog) CohortOf(courseID string) (Cohort, bool) {
	for _, cohort := range c.Cohorts {
		for _, course := range cohort.Courses {
			if course.ID == courseID {
				return cohort, true
			}
		}
	}
	return Cohort{}, false
}

// Course looks up a course across all cohorts.
func (c *Catalog) Course(courseID string) (Course, bool) {
	for _, cohort := range c.Cohorts {
		for _, course := range cohort.Courses {
			if course.ID == courseID {
				return course, true
			}
		}
	}
	return Course{}, false
}

// FacultyByID looks up a faculty member.
func (c *Catalog) FacultyByID(id string) (Faculty, bool) {
	for _, f := range c.Faculty {
		if f.ID == id {
			return f, true
		}
	}
	return Faculty{}, false
}

// index caches the lookups the evaluator needs on every pass.
type index struct {
	cohortByCourse map[string]string
	roomNames      []string
}

func newIndex(c *Catalog) *index {
	idx := &index{
		cohortByCourse: make(map[string]string),
		roomNames:      make([]string, len(c.Classrooms)),
	}
	for _, cohort := range c.Cohorts {
		for _, course := range cohort.Courses {
			if _, exists := idx.cohortByCourse[course.ID]; exists {
				continue
			}
			idx.cohortByCourse[course.ID] = cohort.ID
		}
	}
	for i, room := range c.Classrooms {
		idx.roomNames[i] = room.Name
	}
	return idx
}
