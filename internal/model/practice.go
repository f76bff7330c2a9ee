package model

// Practice is static reference data read by every client.
type Practice struct {
	Base
	Name          string     `json:"name" db:"name"`
	Address       string     `json:"address" db:"address"`
	Phone         *string    `json:"phone,omitempty" db:"phone"`
	ConnectionTag *string    `json:"connectionTag,omitempty" db:"connection_tag"`
	Dentists      []*Dentist `json:"dentists,omitempty" db:"-"`
}

// Dentist belongs to exactly one practice.
type Dentist struct {
	Base
	PracticeID     int64  `json:"practiceId" db:"practice_id"`
	Name           string `json:"name" db:"name"`
	Specialization string `json:"specialization" db:"specialization"`
}

type CreatePracticeRequest struct {
	Name          string  `json:"name" binding:"required,max=200"`
	Address       string  `json:"address" binding:"required,max=500"`
	Phone         *string `json:"phone" binding:"omitempty,max=32"`
	ConnectionTag *string `json:"connectionTag" binding:"omitempty,alphanum,max=32"`
}

type CreateDentistRequest struct {
	Name           string `json:"name" binding:"required,max=200"`
	Specialization string `json:"specialization" binding:"required,max=100"`
}

type AddStaffRequest struct {
	UserID int64 `json:"userId" binding:"required,gt=0"`
}
