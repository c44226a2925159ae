package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
	"github.com/brentcodes/clamped/internal/services"
	"github.com/brentcodes/clamped/internal/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ReportVulnerabilityRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Severity    string     `json:"severity" binding:"required"`
	CveID       string     `json:"cve_id"`
	CweID       string     `json:"cwe_id"`
	DueAt       *time.Time `json:"due_at"`
}

type UpdateVulnerabilityRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Severity    string     `json:"severity"`
	CveID       string     `json:"cve_id"`
	CweID       string     `json:"cwe_id"`
	DueAt       *time.Time `json:"due_at"`
}

type AssignRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

type VulnerabilityResponse struct {
	ID          uint              `json:"id"`
	ProjectID   uint              `json:"project_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Severity    models.Severity   `json:"severity"`
	Status      models.VulnStatus `json:"status"`
	CveID       string            `json:"cve_id,omitempty"`
	CweID       string            `json:"cwe_id,omitempty"`
	DueAt       *time.Time        `json:"due_at,omitempty"`
	Links       []AssignmentLink  `json:"links"`
}

type AssignmentLink struct {
	UserID    uint            `json:"user_id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Role      models.VulnRole `json:"role"`
}

func vulnerabilityResponse(vuln models.Vulnerability) VulnerabilityResponse {
	links := make([]AssignmentLink, 0, len(vuln.Assignments))

	for _, assignment := range vuln.Assignments {
		links = append(links, AssignmentLink{
			UserID:    assignment.UserID,
			FirstName: assignment.User.FirstName,
			LastName:  assignment.User.LastName,
			Role:      assignment.Role,
		})
	}

	return VulnerabilityResponse{
		ID:          vuln.ID,
		ProjectID:   vuln.ProjectID,
		Title:       vuln.Title,
		Description: vuln.Description,
		Severity:    vuln.Severity,
		Status:      vuln.Status,
		CveID:       vuln.CveID,
		CweID:       vuln.CweID,
		DueAt:       vuln.DueAt,
		Links:       links,
	}
}

// ReportVulnerability files a vulnerability; any project member may report.
func ReportVulnerability(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireMember(ctx, projectID) {
		return
	}

	currentUser, _ := utils.GetCurrentUser(ctx)

	var body ReportVulnerabilityRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !models.ValidSeverity(body.Severity) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid severity"})
		return
	}

	vuln := models.Vulnerability{
		ProjectID:   projectID,
		Title:       body.Title,
		Description: body.Description,
		Severity:    models.Severity(body.Severity),
		CveID:       strings.ToUpper(strings.TrimSpace(body.CveID)),
		CweID:       strings.ToUpper(strings.TrimSpace(body.CweID)),
		DueAt:       body.DueAt,
	}

	if err := services.ReportVulnerability(currentUser, &vuln); err != nil {
		serviceError(ctx, err)
		return
	}

	BroadcastProjectEvent(ctx.Param("project_id"), "vulnerability_reported")

	ctx.JSON(http.StatusCreated, vulnerabilityResponse(vuln))
}

func ListVulnerabilities(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireMember(ctx, projectID) {
		return
	}

	var vulns []models.Vulnerability

	err = db.DB.Preload("Assignments").Preload("Assignments.User").
		Where("project_id = ?", projectID).
		Order("created_at desc").
		Find(&vulns).Error

	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vulnerabilities"})
		return
	}

	response := make([]VulnerabilityResponse, 0, len(vulns))

	for _, vuln := range vulns {
		response = append(response, vulnerabilityResponse(vuln))
	}

	ctx.JSON(http.StatusOK, response)
}

func GetVulnerability(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireMember(ctx, projectID) {
		return
	}

	vulnID, err := utils.GetVulnerabilityID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var vuln models.Vulnerability

	err = db.DB.Preload("Assignments").Preload("Assignments.User").
		Where("id = ? AND project_id = ?", vulnID, projectID).
		First(&vuln).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Vulnerability not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vulnerability"})
		}
		return
	}

	ctx.JSON(http.StatusOK, vulnerabilityResponse(vuln))
}

// UpdateVulnerability merges attribute fields; LEAD only. Status is never
// writable here.
func UpdateVulnerability(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireLead(ctx, projectID) {
		return
	}

	vulnID, err := utils.GetVulnerabilityID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body UpdateVulnerabilityRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var vuln models.Vulnerability

	if err := db.DB.Where("id = ? AND project_id = ?", vulnID, projectID).First(&vuln).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Vulnerability not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vulnerability"})
		}
		return
	}

	if strings.TrimSpace(body.Title) != "" {
		vuln.Title = body.Title
	}

	if strings.TrimSpace(body.Description) != "" {
		vuln.Description = body.Description
	}

	if body.Severity != "" {
		if !models.ValidSeverity(body.Severity) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid severity"})
			return
		}
		vuln.Severity = models.Severity(body.Severity)
	}

	if body.CveID != "" {
		vuln.CveID = strings.ToUpper(strings.TrimSpace(body.CveID))
	}

	if body.CweID != "" {
		vuln.CweID = strings.ToUpper(strings.TrimSpace(body.CweID))
	}

	if body.DueAt != nil {
		vuln.DueAt = body.DueAt
	}

	if err := db.DB.Save(&vuln).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update vulnerability"})
		return
	}

	ctx.JSON(http.StatusOK, vulnerabilityResponse(vuln))
}

// DeleteVulnerability removes the record and its assignment links; LEAD only.
func DeleteVulnerability(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireLead(ctx, projectID) {
		return
	}

	vulnID, err := utils.GetVulnerabilityID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var vuln models.Vulnerability

	if err := db.DB.Where("id = ? AND project_id = ?", vulnID, projectID).First(&vuln).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Vulnerability not found"})
		} else {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vulnerability"})
		}
		return
	}

	err = db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("vulnerability_id = ?", vulnID).Delete(&models.VulnerabilityAssignment{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&vuln).Error
	})

	if err != nil {
		log.Printf("Failed to delete vulnerability %d: %v", vulnID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete vulnerability"})
		return
	}

	ctx.Status(http.StatusNoContent)
}

// AssignUser links a member as assignee or verifier; LEAD only. The target's
// project role decides which relation they can hold.
func AssignUser(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireLead(ctx, projectID) {
		return
	}

	vulnID, err := utils.GetVulnerabilityID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body AssignRequest

	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	asVerifier := ctx.Query("as") == "verifier"

	if asVerifier {
		err = services.AddVerifier(projectID, vulnID, body.UserID)
	} else {
		err = services.AssignUser(projectID, vulnID, body.UserID)
	}

	if err != nil {
		serviceError(ctx, err)
		return
	}

	BroadcastProjectEvent(ctx.Param("project_id"), "assignment_changed")

	ctx.JSON(http.StatusOK, gin.H{"message": "User assigned successfully"})
}

// SelfAssign joins the caller to a vulnerability in the relation their role
// allows.
func SelfAssign(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireMember(ctx, projectID) {
		return
	}

	currentUser, _ := utils.GetCurrentUser(ctx)

	vulnID, err := utils.GetVulnerabilityID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := services.SelfAssign(currentUser, projectID, vulnID); err != nil {
		serviceError(ctx, err)
		return
	}

	BroadcastProjectEvent(ctx.Param("project_id"), "assignment_changed")

	ctx.JSON(http.StatusOK, gin.H{"message": "Self-assigned successfully"})
}

// UnassignUser removes a member's link; leads can remove anyone, members can
// remove themselves.
func UnassignUser(ctx *gin.Context) {
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

	vulnID, err := utils.GetVulnerabilityID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targetUserID, ok := getTargetUserID(ctx)

	if !ok {
		return
	}

	selfInitiated := targetUserID == currentUser.ID

	if !selfInitiated {
		isLead, err := services.HasProjectRole(currentUser, projectID, models.RoleLead)

		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
			return
		}

		if !isLead {
			ctx.JSON(http.StatusForbidden, gin.H{"error": "Only project leads can unassign other members"})
			return
		}
	}

	if err := services.RemoveLink(projectID, vulnID, targetUserID, selfInitiated); err != nil {
		serviceError(ctx, err)
		return
	}

	BroadcastProjectEvent(ctx.Param("project_id"), "assignment_changed")

	ctx.JSON(http.StatusOK, gin.H{"message": "User unassigned successfully"})
}

// VerifyVulnerability records a verifier sign-off.
func VerifyVulnerability(ctx *gin.Context) {
	projectID, err := utils.GetProjectID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !requireMember(ctx, projectID) {
		return
	}

	currentUser, _ := utils.GetCurrentUser(ctx)

	vulnID, err := utils.GetVulnerabilityID(ctx)

	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := services.MarkVerified(currentUser, projectID, vulnID); err != nil {
		serviceError(ctx, err)
		return
	}

	BroadcastProjectEvent(ctx.Param("project_id"), "status_changed")

	ctx.JSON(http.StatusOK, gin.H{"message": "Vulnerability verified"})
}
