package models

import "time"

const (
	RoleAdmin      = "Admin"
	RoleSupervisor = "Supervisor"
	RoleTechnician = "Technician"
)

type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string `gorm:"uniqueIndex;not null" json:"username"`
	Email     string `gorm:"uniqueIndex;not null" json:"email"`
	Password  string `gorm:"not null" json:"-"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Role      string `gorm:"size:30;not null;default:Technician" json:"role"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt *time.Time `gorm:"autoCreateTime" json:"created_at,omitempty"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime" json:"updated_at,omitempty"`
}
