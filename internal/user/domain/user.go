package domain

import (
	"errors"
	"time"
)

// User is the core user entity. PasswordHash must never leave the service
// layer; handlers expose users through a view that omits it.
type User struct {
	ID            int64
	Email         string
	Phone         string // optional; unique when present
	Username      string
	PasswordHash  string
	FirstName     string
	LastName      string
	Age           int // 0 means unset
	Address       string
	City          string
	Country       string
	PostalCode    string
	IsActive      bool
	EmailVerified bool // flips to true once, via email OTP verification
	PhoneVerified bool // flips to true once, via phone OTP verification
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Channel identifies the out-of-band delivery channel for one-time codes.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Username == "" {
		return errors.New("username is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Age < 0 || u.Age > 150 {
		return errors.New("age must be between 0 and 150")
	}
	return nil
}
