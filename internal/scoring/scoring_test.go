package scoring

import (
	"testing"
	"time"

	"github.com/coursereg/registrar/internal/domain"
)

func testCourse() domain.Course {
	return domain.Course{
		ID:                "CS101",
		Name:              "Distributed Systems",
		Category:          "core",
		Difficulty:        domain.Advanced,
		MinGPARecommended: 7.0,
		Prerequisites:     []string{"CS100"},
		Keywords:          []string{"distributed systems", "consensus"},
		Seats:             domain.SeatConfig{CourseID: "CS101", Rows: 2, SeatsPerRow: 2, BookingStatus: "OPEN"},
	}
}

func testStudent() domain.Student {
	return domain.Student{
		ID:           "stu-1",
		GPA:          8.5,
		YearOfStudy:  4,
		Branch:       "CSE",
		Interests:    []string{"distributed systems"},
		CompletedIDs: []string{"CS100"},
	}
}

func TestScoreWithinBounds(t *testing.T) {
	e := NewEngine(DefaultWeights())
	comps, composite := e.Score(testStudent(), testCourse(), time.Now())

	for name, v := range map[string]float64{
		"gpa": comps.GPAScore, "interest": comps.InterestScore, "time": comps.TimeScore,
		"year": comps.YearScore, "prereq": comps.PrereqScore,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s score out of [0,1]: %v", name, v)
		}
	}
	if composite < 0 || composite > 1 {
		t.Errorf("composite score out of [0,1]: %v", composite)
	}
}

func TestPrereqScorePerfectMatch(t *testing.T) {
	e := NewEngine(DefaultWeights())
	comps, _ := e.Score(testStudent(), testCourse(), time.Now())
	if comps.PrereqScore != 1.0 {
		t.Errorf("expected prereq score 1.0 with all prerequisites completed, got %v", comps.PrereqScore)
	}
}

func TestPrereqScoreEmptyPrereqsIsPerfect(t *testing.T) {
	course := testCourse()
	course.Prerequisites = nil
	e := NewEngine(DefaultWeights())
	comps, _ := e.Score(testStudent(), course, time.Now())
	if comps.PrereqScore != 1.0 {
		t.Errorf("expected prereq score 1.0 for a course with no prerequisites, got %v", comps.PrereqScore)
	}
}

func TestTimeScoreDecaysWithAge(t *testing.T) {
	e := NewEngine(DefaultWeights())
	course := testCourse()
	student := testStudent()

	opensAt := time.Now()
	course.Seats.BookingOpensAt = &opensAt
	earlyComps, _ := e.Score(student, course, opensAt)

	lateAppliedAt := opensAt.Add(168 * time.Hour)
	lateComps, _ := e.Score(student, course, lateAppliedAt)

	if !(earlyComps.TimeScore > lateComps.TimeScore) {
		t.Errorf("expected an application closer to booking open to score higher on time component: early=%v late=%v", earlyComps.TimeScore, lateComps.TimeScore)
	}
}

func TestTimeScoreAtOneWeekIsHalf(t *testing.T) {
	e := NewEngine(DefaultWeights())
	course := testCourse()
	opensAt := time.Now().Add(-168 * time.Hour)
	course.Seats.BookingOpensAt = &opensAt
	appliedAt := opensAt.Add(168 * time.Hour)
	comps, _ := e.Score(testStudent(), course, appliedAt)
	if diff := comps.TimeScore - 0.5; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected timeScore ~= 0.5 at 168h decay point, got %v", comps.TimeScore)
	}
}

func TestWeightsFallbackToDefaultOnZeroSum(t *testing.T) {
	e := NewEngine(ScoreWeights{})
	comps, composite := e.Score(testStudent(), testCourse(), time.Now())
	if composite == 0 && comps.GPAScore == 0 {
		t.Errorf("expected zero-value weights to fall back to DefaultWeights, not compute an all-zero score")
	}
}

func TestYearScoreExactMatchBeatsDistant(t *testing.T) {
	e := NewEngine(DefaultWeights())
	course := testCourse() // Advanced -> prefers senior years

	senior := testStudent()
	senior.YearOfStudy = 4
	junior := testStudent()
	junior.YearOfStudy = 1

	seniorComps, _ := e.Score(senior, course, time.Now())
	juniorComps, _ := e.Score(junior, course, time.Now())

	if !(seniorComps.YearScore > juniorComps.YearScore) {
		t.Errorf("expected a senior to score higher on an Advanced course's year component: senior=%v junior=%v",
			seniorComps.YearScore, juniorComps.YearScore)
	}
}
