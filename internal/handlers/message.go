package handlers

import (
	"net/http"
	"strings"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
	"github.com/brentcodes/clamped/internal/utils"
	"github.com/gin-gonic/gin"
)

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type MessageResponse struct {
	ID        uint   `json:"id"`
	Content   string `json:"content"`
	SenderID  uint   `json:"sender_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	SentAt    string `json:"sent_at"`
}

func messageResponse(message models.Message) MessageResponse {
	return MessageResponse{
		ID:        message.ID,
		Content:   message.Content,
		SenderID:  message.SenderID,
		FirstName: message.Sender.FirstName,
		LastName:  message.Sender.LastName,
		SentAt:    message.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// SendMessage posts to the project chat; member-only.
func SendMessage(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireMember(ctx, projectID) {
		return
	}

	currentUser, _ := utils.GetCurrentUser(ctx)

	var body SendMessageRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	content := strings.TrimSpace(body.Content)

	if content == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Message content cannot be empty"})
		return
	}

	message := models.Message{
		ProjectID: projectID,
		SenderID:  currentUser.ID,
		Content:   content,
	}

	if err := db.DB.Create(&message).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	message.Sender.FirstName = currentUser.FirstName
	message.Sender.LastName = currentUser.LastName

	BroadcastProjectEvent(ctx.Param("project_id"), "message")

	ctx.JSON(http.StatusCreated, messageResponse(message))
}

// ListMessages returns the latest 100 messages, oldest first.
func ListMessages(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireMember(ctx, projectID) {
		return
	}

	var messages []models.Message

	err = db.DB.Preload("Sender").
		Where("project_id = ?", projectID).
		Order("created_at desc").
		Limit(100).
		Find(&messages).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve messages"})
		return
	}

	// Fetched newest-first for the limit, served oldest-first.
	response := make([]MessageResponse, 0, len(messages))

	for i := len(messages) - 1; i >= 0; i-- {
		response = append(response, messageResponse(messages[i]))
	}

	ctx.JSON(http.StatusOK, response)
}
