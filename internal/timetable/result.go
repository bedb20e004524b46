package timetable

import (
	"sort"
	"time"
)

// Result is the outcome of a run: the best individual ever seen and how the run ended.
type Result struct {
	Best              *Individual
	Breakdown         ConflictBreakdown
	DistributionScore float64
	Generations       int
	StopReason        StopReason
	Seed              int64
	Duration          time.Duration

	catalog *Catalog
}

// Meeting is a gene resolved against the catalog into display values.
type Meeting struct {
	AssignmentID string   `json:"assignmentId"`
	Instance     int      `json:"instance"`
	CourseID     string   `json:"courseId"`
	CourseCode   string   `json:"courseCode"`
	CourseName   string   `json:"courseName"`
	CohortID     string   `json:"cohortId,omitempty"`
	CohortName   string   `json:"cohortName,omitempty"`
	FacultyID    string   `json:"facultyId"`
	FacultyName  string   `json:"facultyName"`
	Classroom    string   `json:"classroom"`
	Day          string   `json:"day"`
	DayIdx       int      `json:"dayIdx"`
	TimeSlot     TimeSlot `json:"timeSlot"`
	TimeSlotIdx  int      `json:"timeSlotIdx"`
}

// Meetings resolves the best individual's genes, ordered by day, time slot, then classroom.
func (r *Result) Meetings() []Meeting {
	if r.Best == nil || r.catalog == nil {
		return nil
	}
	return ResolveMeetings(r.Best, r.catalog)
}

// ResolveMeetings turns ind into display rows for c.
func ResolveMeetings(ind *Individual, c *Catalog) []Meeting {
	courses := make(map[string]Course)
	cohorts := make(map[string]Cohort)
	for _, cohort := range c.Cohorts {
		for _, course := range cohort.Courses {
			if _, ok := courses[course.ID]; ok {
				continue
			}
			courses[course.ID] = course
			cohorts[course.ID] = cohort
		}
	}
	faculty := make(map[string]Faculty, len(c.Faculty))
	for _, f := range c.Faculty {
		faculty[f.ID] = f
	}

	meetings := make([]Meeting, 0, len(ind.Genes))
	for _, g := range ind.Genes {
		course := courses[g.CourseID]
		cohort := cohorts[g.CourseID]
		m := Meeting{
			AssignmentID: g.AssignmentID,
			Instance:     g.Instance,
			CourseID:     g.CourseID,
			CourseCode:   course.Code,
			CourseName:   course.Name,
			CohortID:     cohort.ID,
			CohortName:   cohort.Name,
			FacultyID:    g.FacultyID,
			FacultyName:  faculty[g.FacultyID].Name,
			DayIdx:       g.DayIdx,
			TimeSlotIdx:  g.TimeSlotIdx,
		}
		if g.ClassroomIdx >= 0 && g.ClassroomIdx < len(c.Classrooms) {
			m.Classroom = c.Classrooms[g.ClassroomIdx].Name
		}
		if g.DayIdx >= 0 && g.DayIdx < len(c.Days) {
			m.Day = c.Days[g.DayIdx].Label
		}
		if g.TimeSlotIdx >= 0 && g.TimeSlotIdx < len(c.TimeSlots) {
			m.TimeSlot = c.TimeSlots[g.TimeSlotIdx]
		}
		meetings = append(meetings, m)
	}

	sort.SliceStable(meetings, func(i, j int) bool {
		a, b := meetings[i], meetings[j]
		if a.DayIdx != b.DayIdx {
			return a.DayIdx < b.DayIdx
		}
		if a.TimeSlotIdx != b.TimeSlotIdx {
			return a.TimeSlotIdx < b.TimeSlotIdx
		}
		return a.Classroom < b.Classroom
	})
	return meetings
}
