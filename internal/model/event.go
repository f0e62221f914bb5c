package model

import "time"

// Routing keys for habit events.
const (
	EventHabitCreated   = "habit.created"
	EventHabitCompleted = "habit.completed"
	EventHabitMissed    = "habit.missed"
	EventHabitDeleted   = "habit.deleted"
)

// HabitEvent is the payload published for every habit state change.
type HabitEvent struct {
	HabitID    string    `json:"habit_id"`
	UserID     string    `json:"user_id"`
	Dates      []string  `json:"dates,omitempty"`
	X1         int       `json:"x1"`
	X2         int       `json:"x2"`
	OccurredAt time.Time `json:"occurred_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}

// Event pairs a routing key with its payload; stores persist or publish it with the write.
type Event struct {
	RoutingKey string
	Payload    HabitEvent
}
