package types

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates such as a birth date.
const DateLayout = "2006-01-02"

// User represents an account in the system.
type User struct {
	// ID is assigned by the store and never changes after creation.
	ID int `json:"id" db:"id"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// Login is the unique, case-sensitive name used to authenticate.
	Login string `json:"login" db:"login"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	BirthDate Date `json:"birth_date" db:"birth_date"`
}

// Permission holds the role flags of a user. Each user has at most one.
type Permission struct {
	UserID  int  `json:"user_id" db:"user_id"`
	Blocked bool `json:"blocked" db:"blocked"`
	IsAdmin bool `json:"is_admin" db:"is_admin"`
}

// PermissionChange holds the flags a client asked to change. A nil field
// keeps the stored value.
type PermissionChange struct {
	Blocked *bool
	IsAdmin *bool
}

// UserView is a user joined with its permission flags, as returned by listings.
type UserView struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Login     string `json:"login"`
	BirthDate Date   `json:"birth_date"`
	Blocked   bool   `json:"blocked"`
	IsAdmin   bool   `json:"is_admin"`
}

// Credentials is what the login flow needs to verify a user.
type Credentials struct {
	UserID       int
	Login        string
	PasswordHash string
	Blocked      bool
	IsAdmin      bool
}

// Date is a calendar date rendered as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
