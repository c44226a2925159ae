package models

import "gorm.io/gorm"

// Message is a project chat entry; member-only, newest 100 served ascending.
type Message struct {
	gorm.Model

	ProjectID uint   `gorm:"not null;index"`
	SenderID  uint   `gorm:"not null;index"`
	Content   string `gorm:"not null;size:2000"`

	// Relationships
	Sender  User    `gorm:"foreignKey:SenderID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Project Project `gorm:"foreignKey:ProjectID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
