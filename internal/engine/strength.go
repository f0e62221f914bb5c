package engine

import (
	"errors"
	"math"
	"time"

	"habittracker/internal/model"
)

// Status thresholds on habit strength.
const (
	FormedThreshold   = 0.8
	BuildingThreshold = 0.5
)

// Status is the coarse classification of a strength value.
type Status string

const (
	StatusFormed     Status = "formed"
	StatusBuilding   Status = "building"
	StatusStruggling Status = "struggling"
)

// Params parameterize the logistic habit-formation curve H(d) = 1 / (1 + e^(-K(d-D0))).
type Params struct {
	K          float64 `yaml:"k"`
	D0         float64 `yaml:"d0"`
	Target     float64 `yaml:"target"`
	WindowDays int     `yaml:"window_days"`
}

// DefaultParams puts the inflection at day 25 and reaches 0.8 after 33 successful days.
var DefaultParams = Params{
	K:          0.19,
	D0:         25,
	Target:     0.8,
	WindowDays: 60,
}

// Validate rejects parameter sets the estimate cannot work with.
func (p Params) Validate() error {
	switch {
	case !(p.K > 0) || math.IsInf(p.K, 0):
		return errors.New("strength: k must be positive")
	case math.IsNaN(p.D0) || math.IsInf(p.D0, 0):
		return errors.New("strength: d0 must be finite")
	case !(p.Target > 0 && p.Target < 1):
		return errors.New("strength: target must be in (0, 1)")
	case p.WindowDays < 1:
		return errors.New("strength: window_days must be at least 1")
	}
	return nil
}

// Strength returns H(d) for d successful days.
func (p Params) Strength(d int) float64 {
	return 1 / (1 + math.Exp(-p.K*(float64(d)-p.D0)))
}

// ClassifyStatus maps a strength value to formed, building or struggling.
func ClassifyStatus(s float64) Status {
	switch {
	case s >= FormedThreshold:
		return StatusFormed
	case s >= BuildingThreshold:
		return StatusBuilding
	default:
		return StatusStruggling
	}
}

// Progress converts strength to a percentage capped at 100.
func Progress(s float64) float64 {
	return math.Max(0, math.Min(100, s*100))
}

// DaysToFormation estimates how many more successful days are needed to reach Target.
// The result n is tight: H(d+n) >= Target and H(d+n-1) < Target. It is 0 once reached.
func (p Params) DaysToFormation(d int) int {
	if p.Strength(d) >= p.Target {
		return 0
	}
	dTarget := p.D0 - math.Log(1/p.Target-1)/p.K
	n := int(math.Ceil(dTarget - float64(d)))
	if n < 1 {
		n = 1
	}
	for p.Strength(d+n) < p.Target {
		n++
	}
	for n > 1 && p.Strength(d+n-1) >= p.Target {
		n--
	}
	return n
}

// SuccessRate is 100*|C|/(|C|+|M|) over unique date keys, 0 when nothing was tracked.
func SuccessRate(completed, missed []string) float64 {
	c := len(KeySet(completed))
	m := len(KeySet(missed))
	if c+m == 0 {
		return 0
	}
	return 100 * float64(c) / float64(c+m)
}

// SuccessfulDays counts unique completed days in the trailing window ending at today.
func (p Params) SuccessfulDays(completed []string, today time.Time) int {
	start := AddDays(today, -(p.WindowDays - 1))
	n := 0
	for _, day := range uniqueDays(completed) {
		if !day.Before(start) && !day.After(today) {
			n++
		}
	}
	return n
}

// Evaluation is the derived progress of one habit.
type Evaluation struct {
	CurrentValue   float64 `json:"currentValue"`
	Progress       float64 `json:"progress"`
	Status         Status  `json:"status"`
	DaysToHabit    int     `json:"daysToHabit"`
	SuccessRate    float64 `json:"successRate"`
	SuccessfulDays int     `json:"successfulDays"`
}

// Evaluate derives the progress view of h as of today (a day produced by Day).
func (p Params) Evaluate(h model.Habit, today time.Time) Evaluation {
	d := p.SuccessfulDays(h.CompletedDates, today)
	s := p.Strength(d)
	return Evaluation{
		CurrentValue:   s,
		Progress:       Progress(s),
		Status:         ClassifyStatus(s),
		DaysToHabit:    p.DaysToFormation(d),
		SuccessRate:    SuccessRate(h.CompletedDates, h.MissedDates),
		SuccessfulDays: d,
	}
}

// CurvePoint is one sample of the formation curve.
type CurvePoint struct {
	Day      int     `json:"day"`
	Strength float64 `json:"strength"`
}

// Curve is graph data for one habit.
type Curve struct {
	Points    []CurvePoint `json:"points"`
	Threshold float64      `json:"threshold"`
	Target    float64      `json:"target"`
	Current   CurvePoint   `json:"current"`
}

// Curve samples H(d) for d = 0..WindowDays and marks the habit's current position.
func (p Params) Curve(successfulDays int) Curve {
	points := make([]CurvePoint, 0, p.WindowDays+1)
	for d := 0; d <= p.WindowDays; d++ {
		points = append(points, CurvePoint{Day: d, Strength: p.Strength(d)})
	}
	return Curve{
		Points:    points,
		Threshold: BuildingThreshold,
		Target:    p.Target,
		Current:   CurvePoint{Day: successfulDays, Strength: p.Strength(successfulDays)},
	}
}
