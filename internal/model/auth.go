package model

import "time"

// AuthRequest types
type LoginRequest struct {
	Email    string   `json:"email" binding:"required,email"`
	Password string   `json:"password" binding:"required"`
	UserType UserType `json:"userType" binding:"required,oneof=patient dentist"`
}

type RegisterRequest struct {
	Email       string   `json:"email" binding:"required,email"`
	Password    string   `json:"password" binding:"required"`
	FirstName   string   `json:"firstName" binding:"required,max=100"`
	LastName    string   `json:"lastName" binding:"required,max=100"`
	Phone       *string  `json:"phone" binding:"omitempty,max=32"`
	UserType    UserType `json:"userType" binding:"required,oneof=patient dentist"`
	GDPRConsent bool     `json:"gdprConsent"`
}

// LoginResponse is returned by POST /auth/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

// Session is a server-side login record. ID is the SHA-256 of the bearer
// session token; the raw token is never stored.
type Session struct {
	ID        string    `json:"-" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
