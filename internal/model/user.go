package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleClient:
		return true
	}
	return false
}

// Type is the user type implied by the role.
func (r Role) Type() UserType {
	if r == RoleClient {
		return UserTypeClient
	}
	return UserTypeInternal
}

// Rank orders roles by privilege; higher sees more.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleStaff:
		return 2
	case RoleClient:
		return 1
	}
	return 0
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q: must be one of admin, staff, client", s)
	}
	return r, nil
}

type UserType string

const (
	UserTypeInternal UserType = "internal"
	UserTypeClient   UserType = "client"
)

func (t UserType) Valid() bool {
	return t == UserTypeInternal || t == UserTypeClient
}

func ParseUserType(s string) (UserType, error) {
	t := UserType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid user type %q: must be internal or client", s)
	}
	return t, nil
}

// Lifecycle is the user's deletion state.
type Lifecycle string

const (
	LifecycleActive      Lifecycle = "active"
	LifecycleDeactivated Lifecycle = "deactivated"
	LifecyclePurged      Lifecycle = "purged"
)

type User struct {
	ID           uint64   `gorm:"primaryKey" json:"id"`
	Name         string   `gorm:"type:varchar(255);not null" json:"name"`
	Email        string   `gorm:"type:varchar(255);index;not null" json:"email"`
	PasswordHash string   `gorm:"type:varchar(255);not null" json:"-"`
	Role         Role     `gorm:"type:varchar(16);index;not null" json:"role"`
	Type         UserType `gorm:"type:varchar(16);index;not null" json:"type"`
	Company      *string  `gorm:"type:varchar(255)" json:"company"`
	DepartmentID *uint64  `gorm:"index" json:"department_id"`
	DisplayOrder int      `gorm:"not null;default:0" json:"display_order"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (u *User) IsAdmin() bool    { return u.Role == RoleAdmin }
func (u *User) IsClient() bool   { return u.Role == RoleClient }
func (u *User) IsInternal() bool { return u.Role == RoleAdmin || u.Role == RoleStaff }

// Lifecycle reports whether the user is active or deactivated. Purged users no
// longer exist in the store.
func (u *User) Lifecycle() Lifecycle {
	if u.DeletedAt.Valid {
		return LifecycleDeactivated
	}
	return LifecycleActive
}

// Normalize derives Type from Role and checks that clients carry no department
// and internal users carry no company. It returns the offending field and a
// message, or empty strings.
func (u *User) Normalize() (field, msg string) {
	u.Type = u.Role.Type()
	if u.Company != nil && *u.Company == "" {
		u.Company = nil
	}
	switch u.Type {
	case UserTypeClient:
		if u.DepartmentID != nil {
			return "department_id", "clients cannot belong to a department"
		}
	case UserTypeInternal:
		if u.Company != nil {
			return "company", "only clients can have a company"
		}
	}
	return "", ""
}
