package domain

import (
	"database/sql"
	"strings"
	"time"
)

// Role roster role
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleOperator   Role = "operator"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleSupervisor || r == RoleOperator
}

// PersonStatus soft lifecycle state; persons are never deleted
type PersonStatus string

const (
	PersonActive     PersonStatus = "active"
	PersonInactive   PersonStatus = "inactive"
	PersonLunchBreak PersonStatus = "lunch_break"
)

// Person roster entry (persons table)
type Person struct {
	PersonID       string         `db:"person_id"`
	ExternalChatID string         `db:"external_chat_id"` // NOT NULL, unique
	ExternalUserID sql.NullString `db:"external_user_id"` // unique when set

	FirstName string         `db:"first_name"` // never empty once persisted
	LastName  sql.NullString `db:"last_name"`
	Username  sql.NullString `db:"username"` // chat handle without "@"
	Phone     sql.NullString `db:"phone"`

	Role                Role           `db:"role"`
	Status              PersonStatus   `db:"status"`
	IsAvailableForLunch bool           `db:"is_available_for_lunch"`
	LunchOrder          sql.NullInt64  `db:"lunch_order"`
	ShiftID             sql.NullString `db:"shift_id"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Profile display fields observed from a chat update
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// FullName "first last", trimmed
func (p *Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName.String)
}

// Mention "@handle" when known, else the full name
func (p *Person) Mention() string {
	if p.Username.Valid && p.Username.String != "" {
		return "@" + p.Username.String
	}
	return p.FullName()
}

// IsSupervisor role check
func (p *Person) IsSupervisor() bool {
	return p.Role == RoleSupervisor
}

// IsOperator role check
func (p *Person) IsOperator() bool {
	return p.Role == RoleOperator
}

// DisplayFirstName picks the first non-empty of first name, last name, handle,
// then "User {userID}" so a persisted name is never empty.
func DisplayFirstName(profile Profile, userID string) (first, last string) {
	first = strings.TrimSpace(profile.FirstName)
	last = strings.TrimSpace(profile.LastName)
	if first != "" {
		return first, last
	}
	if last != "" {
		return last, ""
	}
	if h := strings.TrimPrefix(strings.TrimSpace(profile.Username), "@"); h != "" {
		return h, ""
	}
	if userID != "" {
		return "User " + userID, ""
	}
	return "User", ""
}

// NullString empty string is NULL
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
