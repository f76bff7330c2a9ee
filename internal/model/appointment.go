package model

type AppointmentStatus string

const (
	AppointmentStatusAvailable AppointmentStatus = "available"
	AppointmentStatusBooked    AppointmentStatus = "booked"
)

// Appointment is a bookable slot. UserID is set exactly when the slot is
// booked.
type Appointment struct {
	Base
	PracticeID      int64             `db:"practice_id" json:"practiceId"`
	DentistID       int64             `db:"dentist_id" json:"dentistId"`
	TreatmentID     *int64            `db:"treatment_id" json:"treatmentId,omitempty"`
	AppointmentDate string            `db:"appointment_date" json:"appointmentDate"`
	AppointmentTime string            `db:"appointment_time" json:"appointmentTime"`
	Duration        int               `db:"duration" json:"duration"`
	Status          AppointmentStatus `db:"status" json:"status"`
	UserID          *int64            `db:"user_id" json:"userId,omitempty"`
}

func (a *Appointment) IsAvailable() bool {
	return a.Status == AppointmentStatusAvailable
}

// Consistent reports whether the booked/user invariant holds.
func (a *Appointment) Consistent() bool {
	return (a.Status == AppointmentStatusBooked) == (a.UserID != nil)
}

type CreateAppointmentRequest struct {
	DentistID       int64  `json:"dentistId" binding:"required,min=1"`
	TreatmentID     *int64 `json:"treatmentId" binding:"omitempty,min=1"`
	AppointmentDate string `json:"appointmentDate" binding:"required,calendar_date"`
	AppointmentTime string `json:"appointmentTime" binding:"required,clock_time"`
	Duration        int    `json:"duration" binding:"required,min=5,max=480"`
}
