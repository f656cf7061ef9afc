package model

import (
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Admin   UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == Student || r == Admin
}

// swagger:model User
type User struct {
	BaseModel
	Username     string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	FullName     string     `gorm:"size:100;not null" json:"full_name"`
	Role         UserRole   `gorm:"size:20;not null;default:student;index" json:"role"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	ProfileImage string     `gorm:"size:255" json:"profile_image"`
	LastLogin    *time.Time `json:"last_login"`
}

func (User) TableName() string {
	return "users"
}
