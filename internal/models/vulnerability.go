package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VulnStatus is advanced and reverted only by the assignment and membership
// services, never written directly by a handler.
type VulnStatus string

const (
	StatusReported    VulnStatus = "REPORTED"
	StatusInProgress  VulnStatus = "IN_PROGRESS"
	StatusUnderReview VulnStatus = "UNDER_REVIEW"
	StatusVerified    VulnStatus = "VERIFIED"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func ValidSeverity(s string) bool {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Vulnerability struct {
	gorm.Model

	ProjectID   uint   `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Description string
	Severity    Severity   `gorm:"not null"`
	Status      VulnStatus `gorm:"not null;default:REPORTED"`
	CveID       string
	CweID       string
	CvssData    datatypes.JSON `gorm:"type:jsonb"` // cached NVD metrics for the linked CVE
	DueAt       *time.Time

	// Relationships
	Project     Project                   `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Assignments []VulnerabilityAssignment `gorm:"foreignKey:VulnerabilityID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
