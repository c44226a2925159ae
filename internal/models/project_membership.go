package models

import "gorm.io/gorm"

// ProjectRole is the single role a user holds within one project.
type ProjectRole string

const (
	RoleLead       ProjectRole = "LEAD"
	RoleProgrammer ProjectRole = "PROGRAMMER"
	RoleTester     ProjectRole = "TESTER"
)

// ValidProjectRole reports whether s names one of the three project roles.
func ValidProjectRole(s string) bool {
	switch ProjectRole(s) {
	case RoleLead, RoleProgrammer, RoleTester:
		return true
	}
	return false
}

type ProjectMembership struct {
	gorm.Model

	UserID    uint        `gorm:"not null;uniqueIndex:idx_user_project"`
	ProjectID uint        `gorm:"not null;uniqueIndex:idx_user_project"`
	Role      ProjectRole `gorm:"not null"`

	// Relationships
	User    User    `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Project Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
