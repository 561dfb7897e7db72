package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleManager Role = "manager"
)

// Roles is the fixed partition scan order.
var Roles = []Role{RoleStudent, RoleMentor, RoleManager}

func ParseRole(value string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(value)))
	switch role {
	case RoleStudent, RoleMentor, RoleManager:
		return role, true
	default:
		return "", false
	}
}

// Partition is the name of the record set holding users of this role.
func (r Role) Partition() string {
	return string(r) + "s"
}

type Avatar struct {
	ID  string `json:"public_id,omitempty" bson:"public_id,omitempty"`
	URL string `json:"url,omitempty" bson:"url,omitempty"`
}

type User struct {
	ID                string
	Name              string
	Email             string
	Role              Role
	UserID            string
	PasswordHash      string
	Avatar            *Avatar
	CountryName       string
	Timezone          string
	ResetTokenHash    *string
	ResetTokenExpires *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UserPatch lists the fields a targeted update may touch. Nil pointers are
// left unchanged; ClearResetToken wins over a reset token value.
type UserPatch struct {
	PasswordHash      *string
	ResetTokenHash    *string
	ResetTokenExpires *time.Time
	ClearResetToken   bool
	UpdatedAt         time.Time
	// Guard, when set, restricts the update to a record still holding that
	// unexpired reset token. A record that no longer matches is not found.
	Guard *ResetGuard
}

type ResetGuard struct {
	TokenHash string
	ValidAt   time.Time
}

func (g *ResetGuard) Matches(user User) bool {
	if g == nil {
		return true
	}
	return user.ResetTokenHash != nil && *user.ResetTokenHash == g.TokenHash &&
		user.ResetTokenExpires != nil && user.ResetTokenExpires.After(g.ValidAt)
}

// UserQuery is an AND of the non-empty fields.
type UserQuery struct {
	ID                string
	Email             string
	UserID            string
	ResetTokenHash    string
	ResetExpiresAfter *time.Time
}

func (q UserQuery) Empty() bool {
	return q.ID == "" && q.Email == "" && q.UserID == "" && q.ResetTokenHash == "" && q.ResetExpiresAfter == nil
}

// Matches evaluates the query against an in-memory record.
func (q UserQuery) Matches(user User) bool {
	if q.ID != "" && user.ID != q.ID {
		return false
	}
	if q.Email != "" && user.Email != q.Email {
		return false
	}
	if q.UserID != "" && user.UserID != q.UserID {
		return false
	}
	if q.ResetTokenHash != "" && (user.ResetTokenHash == nil || *user.ResetTokenHash != q.ResetTokenHash) {
		return false
	}
	if q.ResetExpiresAfter != nil && (user.ResetTokenExpires == nil || !user.ResetTokenExpires.After(*q.ResetExpiresAfter)) {
		return false
	}
	return true
}

type ScheduledClass struct {
	ID               string
	StudentID        string
	MentorID         string
	SubjectName      string
	ClassLink        string
	ClassDate        string
	ClassTime        string
	StartsAt         time.Time
	StudentTimezone  string
	MentorTimezone   string
	StudentClassDate string
	StudentClassTime string
	MentorClassDate  string
	MentorClassTime  string
	CreatedAt        time.Time
}

type ClassFilter struct {
	StudentID string
	MentorID  string
}

func (f ClassFilter) Matches(class ScheduledClass) bool {
	if f.StudentID != "" && class.StudentID != f.StudentID {
		return false
	}
	if f.MentorID != "" && class.MentorID != f.MentorID {
		return false
	}
	return true
}
