package models

import "gorm.io/gorm"

type GlobalRole string

const (
	GlobalRoleUser  GlobalRole = "USER"
	GlobalRoleAdmin GlobalRole = "ADMIN"
)

func ValidGlobalRole(s string) bool {
	switch GlobalRole(s) {
	case GlobalRoleUser, GlobalRoleAdmin:
		return true
	}
	return false
}

type User struct {
	gorm.Model

	FirstName    string     `gorm:"not null"`
	LastName     string     `gorm:"not null"`
	Email        string     `gorm:"uniqueIndex;not null"`
	PasswordHash string     `gorm:"not null"`
	Role         GlobalRole `gorm:"not null;default:USER"`

	// Opt-in for email delivery; dispatch itself lives outside this service.
	EmailNotificationsEnabled bool `gorm:"default:true"`

	// Relationships
	ProjectMemberships []ProjectMembership       `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Assignments        []VulnerabilityAssignment `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Notifications      []Notification            `gorm:"foreignKey:RecipientID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}

func (u *User) IsAdmin() bool {
	return u.Role == GlobalRoleAdmin
}
