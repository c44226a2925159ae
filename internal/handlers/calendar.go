package handlers

import (
	"net/http"
	"time"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
	"github.com/brentcodes/clamped/internal/utils"
	"github.com/gin-gonic/gin"
)

type CalendarEntry struct {
	VulnID      uint              `json:"vuln_id"`
	ProjectID   uint              `json:"project_id"`
	ProjectName string            `json:"project_name"`
	Title       string            `json:"title"`
	Severity    models.Severity   `json:"severity"`
	Status      models.VulnStatus `json:"status"`
	DueAt       time.Time         `json:"due_at"`
}

// Calendar returns the caller's due-date feed across all their projects:
// leads see every dated vulnerability in the project, other members only the
// ones they are linked to.
func Calendar(ctx *gin.Context) {
	currentUser, err := utils.GetCurrentUser(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var memberships []models.ProjectMembership

	if err := db.DB.Preload("Project").Where("user_id = ?", currentUser.ID).Find(&memberships).Error; err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve projects"})
		return
	}

	seen := make(map[uint]bool)
	entries := make([]CalendarEntry, 0)

	for _, membership := range memberships {
		var vulns []models.Vulnerability

		query := db.DB.Where("project_id = ? AND due_at IS NOT NULL", membership.ProjectID)

		if membership.Role != models.RoleLead {
			query = query.Where("id IN (?)",
				db.DB.Model(&models.VulnerabilityAssignment{}).
					Select("vulnerability_id").
					Where("user_id = ?", currentUser.ID))
		}

		if err := query.Order("due_at asc").Find(&vulns).Error; err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vulnerabilities"})
			return
		}

		for _, vuln := range vulns {
			if seen[vuln.ID] {
				continue
			}
			seen[vuln.ID] = true

			entries = append(entries, CalendarEntry{
				VulnID:      vuln.ID,
				ProjectID:   vuln.ProjectID,
				ProjectName: membership.Project.Name,
				Title:       vuln.Title,
				Severity:    vuln.Severity,
				Status:      vuln.Status,
				DueAt:       *vuln.DueAt,
			})
		}
	}

	ctx.JSON(http.StatusOK, entries)
}
