package services

import (
	"log"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
)

// Event is a cascade-derived notification computed while a transaction is
// open and dispatched only after it commits.
type Event struct {
	Recipients []uint
	Type       models.NotificationType
	Message    string
	ProjectID  *uint
	VulnID     *uint
}

// Dispatch writes in-app notification rows for each event. Failures are
// logged and swallowed; a notification must never fail or roll back the
// operation that produced it.
func Dispatch(events []Event) {
	for _, event := range events {
		seen := make(map[uint]bool)

		for _, recipientID := range event.Recipients {
			if recipientID == 0 || seen[recipientID] {
				continue
			}
			seen[recipientID] = true

			notification := models.Notification{
				RecipientID:      recipientID,
				Type:             event.Type,
				Message:          event.Message,
				RelatedProjectID: event.ProjectID,
				RelatedVulnID:    event.VulnID,
			}

			if err := db.DB.Create(&notification).Error; err != nil {
				log.Printf("Failed to create notification for user %d: %v", recipientID, err)
			}
		}
	}
}
