package model

import (
	"time"

	"github.com/lib/pq"
)

type UrgencyLevel string

const (
	UrgencyLow       UrgencyLevel = "low"
	UrgencyMedium    UrgencyLevel = "medium"
	UrgencyHigh      UrgencyLevel = "high"
	UrgencyEmergency UrgencyLevel = "emergency"
)

// TriageAssessment is clinical intake data owned by one booking. It is
// never updated after insert. The medical history fields are stored
// encrypted.
type TriageAssessment struct {
	ID                 int64          `json:"id" db:"id"`
	PainLevel          int            `json:"painLevel" db:"pain_level"`
	UrgencyLevel       UrgencyLevel   `json:"urgencyLevel" db:"urgency_level"`
	Symptoms           pq.StringArray `json:"symptoms" db:"symptoms"`
	SymptomDuration    string         `json:"symptomDuration,omitempty" db:"symptom_duration"`
	HasSwelling        bool           `json:"hasSwelling" db:"has_swelling"`
	HasTrauma          bool           `json:"hasTrauma" db:"has_trauma"`
	HasBleeding        bool           `json:"hasBleeding" db:"has_bleeding"`
	HasInfection       bool           `json:"hasInfection" db:"has_infection"`
	AnxietyLevel       string         `json:"anxietyLevel,omitempty" db:"anxiety_level"`
	MedicalConditions  string         `json:"medicalConditions,omitempty" db:"medical_conditions"`
	CurrentMedications string         `json:"currentMedications,omitempty" db:"current_medications"`
	Allergies          string         `json:"allergies,omitempty" db:"allergies"`
	CreatedAt          time.Time      `json:"createdAt" db:"created_at"`
}

// TriageInput is the clinical part of a booking request.
type TriageInput struct {
	PainLevel          *int         `json:"painLevel" binding:"required,min=0,max=10" validate:"required,min=0,max=10"`
	UrgencyLevel       UrgencyLevel `json:"urgencyLevel" binding:"required,oneof=low medium high emergency" validate:"required,oneof=low medium high emergency"`
	Symptoms           []string     `json:"symptoms" binding:"max=20,dive,max=200" validate:"max=20,dive,max=200"`
	SymptomDuration    string       `json:"symptomDuration" binding:"max=100" validate:"max=100"`
	HasSwelling        bool         `json:"hasSwelling"`
	HasTrauma          bool         `json:"hasTrauma"`
	HasBleeding        bool         `json:"hasBleeding"`
	HasInfection       bool         `json:"hasInfection"`
	AnxietyLevel       string       `json:"anxietyLevel" binding:"omitempty,oneof=none mild moderate severe" validate:"omitempty,oneof=none mild moderate severe"`
	MedicalConditions  string       `json:"medicalConditions" binding:"max=2000" validate:"max=2000"`
	CurrentMedications string       `json:"currentMedications" binding:"max=2000" validate:"max=2000"`
	Allergies          string       `json:"allergies" binding:"max=2000" validate:"max=2000"`
}
