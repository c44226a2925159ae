package services

import (
	"errors"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/middleware"
	"github.com/brentcodes/clamped/internal/models"
	"gorm.io/gorm"
)

// The authorization gate. Read-only against the membership table; global
// administrators pass every check and resolve to LEAD in every project.

func HasProjectRole(actor middleware.AuthenticatedUser, projectID uint, required models.ProjectRole) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}

	var membership models.ProjectMembership

	err := db.DB.Where("user_id = ? AND project_id = ?", actor.ID, projectID).First(&membership).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	return membership.Role == required, nil
}

func IsProjectMember(actor middleware.AuthenticatedUser, projectID uint) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}

	var count int64

	err := db.DB.Model(&models.ProjectMembership{}).
		Where("user_id = ? AND project_id = ?", actor.ID, projectID).
		Count(&count).Error

	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// ProjectRoleOf resolves the actor's effective role in one project.
func ProjectRoleOf(actor middleware.AuthenticatedUser, projectID uint) (models.ProjectRole, error) {
	if actor.IsAdmin() {
		return models.RoleLead, nil
	}

	var membership models.ProjectMembership

	err := db.DB.Where("user_id = ? AND project_id = ?", actor.ID, projectID).First(&membership).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotAMember
		}
		return "", err
	}

	return membership.Role, nil
}
