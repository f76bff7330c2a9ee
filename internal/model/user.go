package model

import (
	"strings"
	"time"
)

type UserType string

// User type constants
const (
	UserTypePatient UserType = "patient"
	UserTypeDentist UserType = "dentist"
)

func (t UserType) Valid() bool {
	return t == UserTypePatient || t == UserTypeDentist
}

// User represents a patient or dentist account. Guests are patients created
// inline by a booking request; they have no password and cannot log in.
type User struct {
	Base
	Email             string     `json:"email" db:"email"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	FirstName         string     `json:"firstName" db:"first_name"`
	LastName          string     `json:"lastName" db:"last_name"`
	Phone             *string    `json:"phone,omitempty" db:"phone"`
	UserType          UserType   `json:"userType" db:"user_type"`
	IsGuest           bool       `json:"isGuest" db:"is_guest"`
	GDPRConsentGiven  bool       `json:"gdprConsentGiven" db:"gdpr_consent_given"`
	GDPRConsentDate   *time.Time `json:"gdprConsentDate,omitempty" db:"gdpr_consent_date"`
	DataRetentionDate *time.Time `json:"dataRetentionDate,omitempty" db:"data_retention_date"`
	FailedAttempts    int        `json:"-" db:"failed_attempts"`
	LockedUntil       *time.Time `json:"-" db:"locked_until"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
	ErasedAt          *time.Time `json:"erasedAt,omitempty" db:"erased_at"`
}

// Placeholder email domains. Addresses in them never receive mail.
const (
	GuestEmailDomain  = "guest.dentalbook.invalid"
	ErasedEmailDomain = "erased.dentalbook.invalid"
)

// NormalizeEmail is applied to every email before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) IsDentist() bool {
	return u.UserType == UserTypeDentist
}

func (u *User) IsErased() bool {
	return u.ErasedAt != nil
}

// RecordConsent marks GDPR consent and pushes the retention date out.
func (u *User) RecordConsent(now time.Time, retention time.Duration) {
	u.GDPRConsentGiven = true
	u.GDPRConsentDate = &now
	until := now.Add(retention)
	u.DataRetentionDate = &until
}

// RevokeConsent clears consent. The retention date is kept so records
// already held are still governed by it.
func (u *User) RevokeConsent() {
	u.GDPRConsentGiven = false
	u.GDPRConsentDate = nil
}

// GuestDetails identifies a patient booking without an account.
type GuestDetails struct {
	Email     string  `json:"email" binding:"omitempty,email"`
	FirstName string  `json:"firstName" binding:"max=100"`
	LastName  string  `json:"lastName" binding:"max=100"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
}

// ConsentRequest toggles GDPR consent.
type ConsentRequest struct {
	Given *bool `json:"given" binding:"required"`
}

// UserExport is the GDPR subject access bundle.
type UserExport struct {
	User       *User            `json:"user"`
	Bookings   []*BookingDetail `json:"bookings"`
	AuditTrail []*AuditLog      `json:"auditTrail"`
	ExportedAt time.Time        `json:"exportedAt"`
}
