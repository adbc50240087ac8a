package models

import (
	"time"

	"github.com/google/uuid"
)

// HourlyObservation is a single (timestamp, temperature) pair for one location.
// Timestamps are UTC; temperatures are degrees Celsius as delivered by the source.
type HourlyObservation struct {
	Timestamp   time.Time
	Temperature float64
}

// DailyClassification marks one calendar day as tropical or not. Days without
// any observation never appear as a DailyClassification.
type DailyClassification struct {
	Date          time.Time // midnight UTC of the classified day
	TropicalNight bool
}

// AnnualSummary is the number of tropical nights observed in one calendar year.
type AnnualSummary struct {
	Year           int
	TropicalNights int
}

// User is the opaque authenticated-user record handed to request handlers.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// City is one saved city row, scoped to its owning user. Name is free-form and
// only meaningful when it matches the static catalog.
type City struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
