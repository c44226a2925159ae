package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/brentcodes/clamped/internal/models"
	"github.com/brentcodes/clamped/internal/services"
	"github.com/brentcodes/clamped/internal/utils"
	"github.com/gin-gonic/gin"
)

type AddMemberRequest struct {
	UserID    uint   `json:"user_id" binding:"required"`
	Role      string `json:"role" binding:"required"`
	Confirmed bool   `json:"confirmed"`
}

type ChangeRoleRequest struct {
	Role      string `json:"role" binding:"required"`
	Confirmed bool   `json:"confirmed"`
}

func getTargetUserID(ctx *gin.Context) (uint, bool) {
	userIDStr := ctx.Param("user_id")

	userID, err := strconv.ParseUint(userIDStr, 10, 32)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}

	return uint(userID), true
}

// serviceError maps the membership service's sentinel errors onto HTTP
// statuses.
func serviceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrNotAMember):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "User is not a member of this project"})
	case errors.Is(err, services.ErrAlreadyMember):
		ctx.JSON(http.StatusConflict, gin.H{"error": "User is already a member of this project"})
	case errors.Is(err, services.ErrAlreadyLinked):
		ctx.JSON(http.StatusConflict, gin.H{"error": "User is already linked to this vulnerability"})
	case errors.Is(err, services.ErrNoOpTransition):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "User already has this project role"})
	case errors.Is(err, services.ErrEmailTaken):
		ctx.JSON(http.StatusConflict, gin.H{"error": "Email already exists"})
	case errors.Is(err, services.ErrForbidden):
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Insufficient project role for this action"})
	case errors.Is(err, services.ErrConflict):
		ctx.JSON(http.StatusConflict, gin.H{"error": "Concurrent modification detected, please retry"})
	default:
		log.Printf("Membership operation failed: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// requireLead aborts unless the caller holds LEAD (or is a global admin).
func requireLead(ctx *gin.Context, projectID uint) bool {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return false
	}

	isLead, err := services.HasProjectRole(currentUser, projectID, models.RoleLead)

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return false
	}

	if !isLead {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Only project leads can manage members"})
		return false
	}

	return true
}

// requireMember aborts unless the caller is a member (or a global admin).
func requireMember(ctx *gin.Context, projectID uint) bool {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return false
	}

	isMember, err := services.IsProjectMember(currentUser, projectID)

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return false
	}

	if !isMember {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "You are not a member of this project"})
		return false
	}

	return true
}

func ListMembers(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireMember(ctx, projectID) {
		return
	}

	members, err := services.ListMembers(projectID)

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve members"})
		return
	}

	ctx.JSON(http.StatusOK, members)
}

func AddMember(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireLead(ctx, projectID) {
		return
	}

	var body AddMemberRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !models.ValidProjectRole(body.Role) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project role"})
		return
	}

	result, err := services.AddMember(projectID, body.UserID, models.ProjectRole(body.Role), body.Confirmed)

	if err != nil {
		serviceError(ctx, err)
		return
	}

	status := http.StatusCreated

	if result.Warning {
		status = http.StatusOK
	}

	ctx.JSON(status, result)
}

func ChangeMemberRole(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireLead(ctx, projectID) {
		return
	}

	targetUserID, ok := getTargetUserID(ctx)

	if !ok {
		return
	}

	var body ChangeRoleRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !models.ValidProjectRole(body.Role) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project role"})
		return
	}

	result, err := services.ChangeUserRole(projectID, targetUserID, models.ProjectRole(body.Role), body.Confirmed)

	if err != nil {
		serviceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func ValidateRemoveMember(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireLead(ctx, projectID) {
		return
	}

	targetUserID, ok := getTargetUserID(ctx)

	if !ok {
		return
	}

	result, err := services.ValidateRemoveMember(projectID, targetUserID)

	if err != nil {
		serviceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func RemoveMember(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireLead(ctx, projectID) {
		return
	}

	targetUserID, ok := getTargetUserID(ctx)

	if !ok {
		return
	}

	confirmed := ctx.Query("confirmed") == "true"

	result, err := services.RemoveMember(projectID, targetUserID, confirmed)

	if err != nil {
		serviceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func ValidateSelfRemove(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	result, err := services.ValidateSelfRemove(currentUser, projectID)

	if err != nil {
		serviceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func SelfRemove(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	confirmed := ctx.Query("confirmed") == "true"

	result, err := services.SelfRemove(currentUser, projectID, confirmed)

	if err != nil {
		serviceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}
