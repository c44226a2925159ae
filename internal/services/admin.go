package services

import (
	"errors"
	"strings"
	"time"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Administrative operations over the global user and project inventory.
// Callers are expected to have passed the ADMIN gate already.

func ListUsers() ([]models.User, error) {
	var users []models.User

	err := db.DB.Order("created_at asc").Find(&users).Error

	return users, err
}

func FindUserByEmail(email string) (*models.User, error) {
	var user models.User

	err := db.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &user, nil
}

// CreateUser registers a user with a chosen global role, without logging them
// in. Unlike self-registration the role is caller-picked.
func CreateUser(firstName, lastName, email, password string, role models.GlobalRole) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var existing int64

	err := db.DB.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error

	if err != nil {
		return nil, err
	}

	if existing > 0 {
		return nil, ErrEmailTaken
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	if err != nil {
		return nil, err
	}

	user := models.User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: string(passwordHash),
		Role:         role,
	}

	if err := db.DB.Create(&user).Error; err != nil {
		return nil, err
	}

	return &user, nil
}

// DeleteUserCascade removes a user account and everything keyed to it: each
// membership goes through the same project-side cleanup as a removal (links
// stripped, empty projects deleted), then notifications, messages and the
// account itself. Hard deletes throughout so the email and the composite keys
// are immediately reusable.
func DeleteUserCascade(userID uint) error {
	return inTransaction(func(tx *gorm.DB) error {
		var user models.User

		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var memberships []models.ProjectMembership

		if err := tx.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
			return err
		}

		for i := range memberships {
			if err := removeMembershipAndLinks(tx, &memberships[i]); err != nil {
				return err
			}

			if err := deleteProjectIfEmpty(tx, memberships[i].ProjectID); err != nil {
				return err
			}
		}

		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&models.VulnerabilityAssignment{}).Error; err != nil {
			return err
		}

		if err := tx.Unscoped().Where("recipient_id = ?", userID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}

		if err := tx.Unscoped().Where("sender_id = ?", userID).Delete(&models.Message{}).Error; err != nil {
			return err
		}

		return tx.Unscoped().Delete(&models.User{}, userID).Error
	})
}

// OverdueVulnerabilities lists every unverified vulnerability whose due date
// has passed, across all projects.
func OverdueVulnerabilities() ([]models.Vulnerability, error) {
	var vulns []models.Vulnerability

	err := db.DB.Preload("Assignments").Preload("Assignments.User").
		Where("due_at IS NOT NULL AND due_at < ? AND status <> ?", time.Now(), models.StatusVerified).
		Order("due_at asc").
		Find(&vulns).Error

	return vulns, err
}
