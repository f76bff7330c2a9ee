package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Booking lifecycle event types, also used as broker channel names.
const (
	EventBookingSubmitted = "booking.submitted"
	EventBookingApproved  = "booking.approved"
	EventBookingRejected  = "booking.rejected"
)

// OutboxEvent is written in the same transaction as the change it
// announces and relayed to the broker by the worker.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"eventType"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"errorMessage,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retryCount"`
	RetryAt      *time.Time      `db:"retry_at" json:"retryAt,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processedAt,omitempty"`
}

// BookingEvent is the payload of booking lifecycle events.
type BookingEvent struct {
	BookingID     int64         `json:"bookingId"`
	UserID        int64         `json:"userId"`
	AppointmentID int64         `json:"appointmentId"`
	Status        BookingStatus `json:"status"`
	DecidedBy     *int64        `json:"decidedBy,omitempty"`
	OccurredAt    time.Time     `json:"occurredAt"`
}

// NewBookingEvent builds a pending outbox entry for b.
func NewBookingEvent(eventType string, b *Booking, decidedBy *int64, at time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(BookingEvent{
		BookingID:     b.ID,
		UserID:        b.UserID,
		AppointmentID: b.AppointmentID,
		Status:        b.Status,
		DecidedBy:     decidedBy,
		OccurredAt:    at,
	})
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: at,
	}, nil
}
