package model

import (
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending  BookingStatus = "pending_approval"
	BookingStatusApproved BookingStatus = "approved"
	BookingStatusRejected BookingStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusApproved || s == BookingStatusRejected
}

// Booking is a patient's request to occupy a slot. It is mutated exactly
// once by an approve or reject decision and never deleted.
type Booking struct {
	Base
	UserID             int64          `json:"userId" db:"user_id"`
	AppointmentID      int64          `json:"appointmentId" db:"appointment_id"`
	TriageAssessmentID *int64         `json:"triageAssessmentId,omitempty" db:"triage_assessment_id"`
	Status             BookingStatus  `json:"status" db:"status"`
	ApprovalStatus     *BookingStatus `json:"approvalStatus,omitempty" db:"approval_status"`
	ApprovedBy         *int64         `json:"approvedBy,omitempty" db:"approved_by"`
	ApprovedAt         *time.Time     `json:"approvedAt,omitempty" db:"approved_at"`
	TreatmentCategory  string         `json:"treatmentCategory" db:"treatment_category"`
	SpecialRequests    *string        `json:"specialRequests,omitempty" db:"special_requests"`
	AccessibilityNeeds *string        `json:"accessibilityNeeds,omitempty" db:"accessibility_needs"`
}

// IsPending checks if booking is awaiting a decision
func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}

// StatusChange is a guarded transition applied by a repository.
type StatusChange struct {
	From       BookingStatus
	To         BookingStatus
	ApprovedBy *int64
	ApprovedAt *time.Time
	At         time.Time
}

// Apply mutates b according to the change. Callers check From first.
func (c StatusChange) Apply(b *Booking) {
	to := c.To
	b.Status = to
	b.ApprovalStatus = &to
	if c.ApprovedBy != nil {
		b.ApprovedBy = c.ApprovedBy
		b.ApprovedAt = c.ApprovedAt
	}
	b.UpdatedAt = c.At
}

// BookingDetail is the practice/patient facing projection of a booking,
// joined with its slot, patient contact details and triage.
type BookingDetail struct {
	Booking
	PracticeID       int64             `json:"practiceId" db:"practice_id"`
	DentistID        int64             `json:"dentistId" db:"dentist_id"`
	TreatmentID      *int64            `json:"treatmentId,omitempty" db:"treatment_id"`
	AppointmentDate  string            `json:"appointmentDate" db:"appointment_date"`
	AppointmentTime  string            `json:"appointmentTime" db:"appointment_time"`
	Duration         int               `json:"duration" db:"duration"`
	PatientFirstName string            `json:"patientFirstName" db:"patient_first_name"`
	PatientLastName  string            `json:"patientLastName" db:"patient_last_name"`
	PatientEmail     string            `json:"patientEmail" db:"patient_email"`
	PatientPhone     *string           `json:"patientPhone,omitempty" db:"patient_phone"`
	Triage           *TriageAssessment `json:"triage,omitempty" db:"-"`
}

// SubmitBookingRequest is the body of POST /bookings.
type SubmitBookingRequest struct {
	UserID             *int64        `json:"userId" binding:"omitempty,min=1"`
	AppointmentID      int64         `json:"appointmentId" binding:"required,min=1"`
	TreatmentCategory  string        `json:"treatmentCategory" binding:"required,max=100"`
	SpecialRequests    *string       `json:"specialRequests" binding:"omitempty,max=2000"`
	AccessibilityNeeds *string       `json:"accessibilityNeeds" binding:"omitempty,max=2000"`
	Guest              *GuestDetails `json:"guest"`
	Triage             *TriageInput  `json:"triage"`
}
