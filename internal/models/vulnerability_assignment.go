package models

import "gorm.io/gorm"

// VulnRole is the relation a user holds on one vulnerability. REPORTER is set
// once when the vulnerability is filed; ASSIGNEE and VERIFIER come and go with
// project roles and are the links the cascade rules operate on.
type VulnRole string

const (
	VulnRoleReporter VulnRole = "REPORTER"
	VulnRoleAssignee VulnRole = "ASSIGNEE"
	VulnRoleVerifier VulnRole = "VERIFIER"
)

// VulnerabilityAssignment links a user to a vulnerability; one link per
// (user, vulnerability) pair.
type VulnerabilityAssignment struct {
	gorm.Model

	UserID          uint     `gorm:"not null;uniqueIndex:idx_user_vuln"`
	VulnerabilityID uint     `gorm:"not null;uniqueIndex:idx_user_vuln"`
	Role            VulnRole `gorm:"not null"`

	// Relationships
	User          User          `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Vulnerability Vulnerability `gorm:"foreignKey:VulnerabilityID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
