// Package scoring computes the composite priority score used by the
// waitlist and the direct-apply tie-breaker.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/rs/zerolog/log"
)

// ScoreWeights holds the five component weights. An implementation must
// warn when the sum deviates from 1.0 by more than 0.01, but never reject
// or panic.
type ScoreWeights struct {
	GPA      float64 `json:"gpa"`
	Interest float64 `json:"interest"`
	Time     float64 `json:"time"`
	Year     float64 `json:"year"`
	Prereq   float64 `json:"prereq"`
}

// DefaultWeights returns the weights named in the composite-score formula.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		GPA:      0.35,
		Interest: 0.30,
		Time:     0.20,
		Year:     0.10,
		Prereq:   0.05,
	}
}

func (w ScoreWeights) sum() float64 {
	return w.GPA + w.Interest + w.Time + w.Year + w.Prereq
}

// Engine computes component and composite scores. It is pure given its
// inputs and returns no error: callers pass resolved entities in, so an
// unknown student or course is reported as domain.NotFound by the
// Repository lookup before scoring is reached.
type Engine struct {
	weights ScoreWeights
}

// NewEngine constructs a scoring Engine. A nil-equivalent (zero-value)
// weights struct falls back to DefaultWeights.
func NewEngine(weights ScoreWeights) *Engine {
	if weights.sum() == 0 {
		weights = DefaultWeights()
	}
	if math.Abs(weights.sum()-1.0) > 0.01 {
		log.Warn().
			Float64("sum", weights.sum()).
			Msg("scoring: configured weights do not sum to 1.0")
	}
	return &Engine{weights: weights}
}

// Components holds the five component scores before weighting.
type Components struct {
	GPAScore      float64
	InterestScore float64
	TimeScore     float64
	YearScore     float64
	PrereqScore   float64
}

// Score computes the component scores and the weighted composite for a
// (student, course, appliedAt) triple.
func (e *Engine) Score(student domain.Student, course domain.Course, appliedAt time.Time) (Components, float64) {
	c := Components{
		GPAScore:      gpaScore(student.GPA, course.MinGPARecommended),
		InterestScore: interestScore(student.Interests, student.Branch, course.Keywords),
		TimeScore:     timeScore(course.Seats.BookingOpensAt, appliedAt),
		YearScore:     yearScore(student.YearOfStudy, course.Difficulty),
		PrereqScore:   prereqScore(student.CompletedIDs, course.Prerequisites),
	}
	composite := e.weights.GPA*c.GPAScore +
		e.weights.Interest*c.InterestScore +
		e.weights.Time*c.TimeScore +
		e.weights.Year*c.YearScore +
		e.weights.Prereq*c.PrereqScore
	return c, composite
}

func gpaScore(gpa, minRecommended float64) float64 {
	if gpa < minRecommended {
		return 0
	}
	bonus := math.Min(0.10, 0.05*(gpa-minRecommended))
	return math.Min(1, gpa/4.0+bonus)
}

func interestScore(interests []string, branch string, keywords []string) float64 {
	studentSet := make(map[string]struct{}, len(interests)+1)
	for _, i := range interests {
		studentSet[strings.ToLower(i)] = struct{}{}
	}
	if branch != "" {
		studentSet[strings.ToLower(branch)] = struct{}{}
	}
	courseSet := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		courseSet[strings.ToLower(k)] = struct{}{}
	}
	if len(studentSet) == 0 || len(courseSet) == 0 {
		return 0.5
	}
	return jaccard(studentSet, courseSet)
}

func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.5
	}
	return float64(intersection) / float64(union)
}

func timeScore(bookingOpensAt *time.Time, appliedAt time.Time) float64 {
	if bookingOpensAt == nil {
		return 1.0
	}
	deltaHours := appliedAt.Sub(*bookingOpensAt).Hours()
	if deltaHours < 0 {
		deltaHours = 0
	}
	score := math.Exp(-math.Ln2 * deltaHours / 168)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func yearScore(year int, difficulty domain.Difficulty) float64 {
	var preferred []int
	switch difficulty {
	case domain.Beginner:
		preferred = []int{1, 2}
	case domain.Intermediate:
		preferred = []int{2, 3}
	case domain.Advanced:
		preferred = []int{3, 4}
	default:
		preferred = []int{1, 2}
	}
	for _, p := range preferred {
		if year == p {
			return 1.0
		}
	}
	for _, p := range preferred {
		if abs(year-p) == 1 {
			return 0.5
		}
	}
	return 0.25
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func prereqScore(completed, prerequisites []string) float64 {
	if len(prerequisites) == 0 {
		return 1.0
	}
	completedSet := make(map[string]struct{}, len(completed))
	for _, c := range completed {
		completedSet[c] = struct{}{}
	}
	matched := 0
	for _, p := range prerequisites {
		if _, ok := completedSet[p]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(prerequisites))
}
