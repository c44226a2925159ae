package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
	"github.com/brentcodes/clamped/internal/services"
	"github.com/brentcodes/clamped/internal/types"
	"github.com/brentcodes/clamped/internal/utils"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AdminCreateUserRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Role      string `json:"role"`
}

type AdminUpdateUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" binding:"omitempty,email"`
	Password  string `json:"password" binding:"omitempty,min=8"`
}

type AdminProjectResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberCount int    `json:"member_count"`
}

// requireAdmin aborts unless the caller holds the global ADMIN role.
func requireAdmin(ctx *gin.Context) bool {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return false
	}

	if !currentUser.IsAdmin() {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Administrator access required"})
		return false
	}

	return true
}

// AdminListUsers lists every account; ?email= narrows to one exact address.
func AdminListUsers(ctx *gin.Context) {
	if !requireAdmin(ctx) {
		return
	}

	if email := ctx.Query("email"); email != "" {
		user, err := services.FindUserByEmail(email)

		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}

		ctx.JSON(http.StatusOK, []types.UserResponse{userResponse(*user)})
		return
	}

	users, err := services.ListUsers()

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve users"})
		return
	}

	response := make([]types.UserResponse, 0, len(users))

	for _, user := range users {
		response = append(response, userResponse(user))
	}

	ctx.JSON(http.StatusOK, response)
}

// AdminCreateUser registers a user with a chosen global role. Defaults to
// USER when the body carries no role.
func AdminCreateUser(ctx *gin.Context) {
	if !requireAdmin(ctx) {
		return
	}

	var body AdminCreateUserRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if body.Role == "" {
		body.Role = string(models.GlobalRoleUser)
	}

	if !models.ValidGlobalRole(body.Role) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid global role"})
		return
	}

	user, err := services.CreateUser(body.FirstName, body.LastName, body.Email, body.Password, models.GlobalRole(body.Role))

	if err != nil {
		serviceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"user": userResponse(*user)})
}

// AdminUpdateUser merges profile and credential fields on any account. No
// current-password check here, the admin gate already passed.
func AdminUpdateUser(ctx *gin.Context) {
	if !requireAdmin(ctx) {
		return
	}

	targetUserID, ok := getTargetUserID(ctx)

	if !ok {
		return
	}

	var dbUser models.User

	if err := db.DB.First(&dbUser, targetUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	var body AdminUpdateUserRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	updates := make(map[string]interface{})

	if body.FirstName != "" {
		updates["first_name"] = strings.TrimSpace(body.FirstName)
	}

	if body.LastName != "" {
		updates["last_name"] = strings.TrimSpace(body.LastName)
	}

	if body.Email != "" {
		newEmail := strings.ToLower(strings.TrimSpace(body.Email))

		if newEmail != dbUser.Email {
			var existing int64

			err := db.DB.Model(&models.User{}).Where("email = ? AND id != ?", newEmail, dbUser.ID).Count(&existing).Error

			if err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				return
			}

			if existing > 0 {
				ctx.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
				return
			}
		}

		updates["email"] = newEmail
	}

	if body.Password != "" {
		passwordHash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)

		if err != nil {
			log.Printf("Failed to hash password: %v", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		updates["password_hash"] = string(passwordHash)
	}

	if len(updates) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "No valid fields to update"})
		return
	}

	if err := db.DB.Model(&dbUser).Updates(updates).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := db.DB.First(&dbUser, dbUser.ID).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": userResponse(dbUser)})
}

func AdminDeleteUser(ctx *gin.Context) {
	if !requireAdmin(ctx) {
		return
	}

	targetUserID, ok := getTargetUserID(ctx)

	if !ok {
		return
	}

	currentUser, _ := utils.GetCurrentUser(ctx)

	if targetUserID == currentUser.ID {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "You cannot delete your own account"})
		return
	}

	if err := services.DeleteUserCascade(targetUserID); err != nil {
		serviceError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func AdminListProjects(ctx *gin.Context) {
	if !requireAdmin(ctx) {
		return
	}

	var projects []models.Project

	err := db.DB.Preload("ProjectMemberships").Order("created_at asc").Find(&projects).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve projects"})
		return
	}

	response := make([]AdminProjectResponse, 0, len(projects))

	for _, project := range projects {
		response = append(response, AdminProjectResponse{
			ID:          project.ID,
			Name:        project.Name,
			Description: project.Description,
			MemberCount: len(project.ProjectMemberships),
		})
	}

	ctx.JSON(http.StatusOK, response)
}

// AdminListVulnerabilities lists vulnerabilities across all projects, with
// optional ?severity= and ?title= filters.
func AdminListVulnerabilities(ctx *gin.Context) {
	if !requireAdmin(ctx) {
		return
	}

	query := db.DB.Preload("Assignments").Preload("Assignments.User")

	if severity := ctx.Query("severity"); severity != "" {
		if !models.ValidSeverity(severity) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid severity"})
			return
		}
		query = query.Where("severity = ?", models.Severity(severity))
	}

	if title := ctx.Query("title"); title != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(title)+"%")
	}

	var vulns []models.Vulnerability

	if err := query.Order("created_at desc").Find(&vulns).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vulnerabilities"})
		return
	}

	response := make([]VulnerabilityResponse, 0, len(vulns))

	for _, vuln := range vulns {
		response = append(response, vulnerabilityResponse(vuln))
	}

	ctx.JSON(http.StatusOK, response)
}

func AdminOverdueVulnerabilities(ctx *gin.Context) {
	if !requireAdmin(ctx) {
		return
	}

	vulns, err := services.OverdueVulnerabilities()

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve overdue vulnerabilities"})
		return
	}

	response := make([]VulnerabilityResponse, 0, len(vulns))

	for _, vuln := range vulns {
		response = append(response, vulnerabilityResponse(vuln))
	}

	ctx.JSON(http.StatusOK, response)
}
