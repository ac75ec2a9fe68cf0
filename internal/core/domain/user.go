package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a claim value onto the closed role set. Unknown values
// yield the zero Role and false.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) IsAdmin() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleUser:
		return false
	default:
		return false
	}
}

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is what a verified token proves about the caller.
type Identity struct {
	UserID string
	Role   Role
}

const (
	msgUsername = "Username must be at least 3 characters"
	msgEmail    = "Please provide a valid email"
	msgPassword = "Password must be at least 6 characters"
	msgRequired = "Password is required"
)

type Registration struct {
	Username string
	Email    string
	Password string
}

// Normalize trims the username and email and lower-cases the email.
func (r Registration) Normalize() Registration {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = NormalizeEmail(r.Email)
	return r
}

func (r Registration) Validate() error {
	v := &ValidationError{}
	if utf8.RuneCountInString(strings.TrimSpace(r.Username)) < 3 {
		v.Add("username", msgUsername)
	}
	if !ValidEmail(r.Email) {
		v.Add("email", msgEmail)
	}
	if utf8.RuneCountInString(r.Password) < 6 {
		v.Add("password", msgPassword)
	}
	return v.Err()
}

type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) Validate() error {
	v := &ValidationError{}
	if !ValidEmail(c.Email) {
		v.Add("email", msgEmail)
	}
	if c.Password == "" {
		v.Add("password", msgRequired)
	}
	return v.Err()
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail accepts a bare addr-spec, rejecting display names.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@")+1:], ".")
}
