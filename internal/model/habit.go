package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Category of a habit; the set is fixed.
type Category string

const (
	CategoryHealthFitness Category = "Health & Fitness"
	CategoryLearning      Category = "Learning"
	CategoryProductivity  Category = "Productivity"
	CategoryMindfulness   Category = "Mindfulness"
	CategoryCreative      Category = "Creative"
	CategorySocial        Category = "Social"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryHealthFitness,
	CategoryLearning,
	CategoryProductivity,
	CategoryMindfulness,
	CategoryCreative,
	CategorySocial,
}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// MaxNameLength bounds habit and session names, in runes.
const MaxNameLength = 100

// Habit is one tracked habit owned by a single session (UserID).
// CompletedDates and MissedDates hold YYYY-MM-DD keys and never share a date.
// X1 and X2 mirror their sizes.
type Habit struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Name            string     `json:"name"`
	Category        Category   `json:"category"`
	X1              int        `json:"x1"`
	X2              int        `json:"x2"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastTrackedDate *time.Time `json:"lastTrackedDate,omitempty"`
	CompletedDates  []string   `json:"completedDates"`
	MissedDates     []string   `json:"missedDates"`

	// Version is bumped by every successful store write; updates are conditional on it.
	Version int64 `json:"-"`
}

// Clone returns a deep copy.
func (h Habit) Clone() Habit {
	out := h
	if h.LastTrackedDate != nil {
		t := *h.LastTrackedDate
		out.LastTrackedDate = &t
	}
	out.CompletedDates = append([]string{}, h.CompletedDates...)
	out.MissedDates = append([]string{}, h.MissedDates...)
	return out
}

// NewHabitInput is the body of a create request.
type NewHabitInput struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

// Normalize trims the name.
func (in *NewHabitInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
}

// Validate checks the name and category.
func (in NewHabitInput) Validate() error {
	var v ValidationError
	validateName(&v, in.Name)
	if !in.Category.Valid() {
		v.Add("category", "must be one of the supported categories")
	}
	return v.OrNil()
}

// UpdateHabitInput is the body of a PATCH request; nil fields are left alone.
type UpdateHabitInput struct {
	Name     *string   `json:"name,omitempty"`
	Category *Category `json:"category,omitempty"`
}

// Normalize trims the name, if present.
func (in *UpdateHabitInput) Normalize() {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
}

// Validate checks the fields that are present; an empty patch is rejected.
func (in UpdateHabitInput) Validate() error {
	var v ValidationError
	if in.Name == nil && in.Category == nil {
		v.Add("body", "at least one of name or category is required")
	}
	if in.Name != nil {
		validateName(&v, *in.Name)
	}
	if in.Category != nil && !in.Category.Valid() {
		v.Add("category", "must be one of the supported categories")
	}
	return v.OrNil()
}

func validateName(v *ValidationError, name string) {
	switch {
	case name == "":
		v.Add("name", "habit name is required")
	case utf8.RuneCountInString(name) > MaxNameLength:
		v.Add("name", "must be at most 100 characters")
	}
}
