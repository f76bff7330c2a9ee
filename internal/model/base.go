package model

import (
	"time"
)

// Base contains common fields for all models
type Base struct {
	ID        int64     `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// DateLayout is the wire and storage format of calendar days.
const DateLayout = "2006-01-02"

// TimeLayout is the wire and storage format of slot start times.
const TimeLayout = "15:04"

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}
