package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
	"github.com/brentcodes/clamped/internal/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type NotificationResponse struct {
	ID               uint                    `json:"id"`
	Type             models.NotificationType `json:"type"`
	Message          string                  `json:"message"`
	RelatedProjectID *uint                   `json:"related_project_id,omitempty"`
	RelatedVulnID    *uint                   `json:"related_vuln_id,omitempty"`
	Read             bool                    `json:"read"`
	CreatedAt        string                  `json:"created_at"`
}

func ListNotifications(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var notifications []models.Notification

	err = db.DB.Where("recipient_id = ?", currentUser.ID).
		Order("created_at desc").
		Limit(100).
		Find(&notifications).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve notifications"})
		return
	}

	response := make([]NotificationResponse, 0, len(notifications))

	for _, notification := range notifications {
		response = append(response, NotificationResponse{
			ID:               notification.ID,
			Type:             notification.Type,
			Message:          notification.Message,
			RelatedProjectID: notification.RelatedProjectID,
			RelatedVulnID:    notification.RelatedVulnID,
			Read:             notification.Read,
			CreatedAt:        notification.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	ctx.JSON(http.StatusOK, response)
}

func UnreadNotificationCount(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var count int64

	err = db.DB.Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", currentUser.ID, false).
		Count(&count).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"unread": count})
}

func MarkNotificationRead(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	notificationID, err := strconv.ParseUint(ctx.Param("notification_id"), 10, 32)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	var notification models.Notification

	err = db.DB.Where("id = ? AND recipient_id = ?", notificationID, currentUser.ID).First(&notification).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve notification"})
		}
		return
	}

	if err := db.DB.Model(&notification).Update("read", true).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func MarkAllNotificationsRead(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	err = db.DB.Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", currentUser.ID, false).
		Update("read", true).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}
