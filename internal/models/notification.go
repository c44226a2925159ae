package models

import "gorm.io/gorm"

type NotificationType string

const (
	NotifyVulnAssigned      NotificationType = "VULN_ASSIGNED"
	NotifyVulnUnassigned    NotificationType = "VULN_UNASSIGNED"
	NotifyVulnReported      NotificationType = "VULN_REPORTED"
	NotifyVulnStatusChanged NotificationType = "VULN_STATUS_CHANGED"
	NotifySelfAssigned      NotificationType = "MEMBER_SELF_ASSIGNED"
	NotifySelfRevoked       NotificationType = "MEMBER_SELF_REVOKED"
	NotifyProjectAdded      NotificationType = "PROJECT_ADDED"
	NotifyProjectRemoved    NotificationType = "PROJECT_REMOVED"
)

type Notification struct {
	gorm.Model

	RecipientID      uint             `gorm:"not null;index"`
	Type             NotificationType `gorm:"not null"`
	Message          string           `gorm:"not null;size:512"`
	RelatedProjectID *uint
	RelatedVulnID    *uint
	Read             bool `gorm:"not null;default:false"`
}
