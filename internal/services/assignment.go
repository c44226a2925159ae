package services

import (
	"errors"
	"fmt"

	"github.com/brentcodes/clamped/internal/middleware"
	"github.com/brentcodes/clamped/internal/models"
	"gorm.io/gorm"
)

// Assignment links drive the vulnerability workflow: the first ASSIGNEE moves
// a REPORTED vulnerability to IN_PROGRESS, the first VERIFIER moves
// IN_PROGRESS to UNDER_REVIEW, and a verifier sign-off moves UNDER_REVIEW to
// VERIFIED. Removal reverts symmetrically except for VERIFIED, which is final.

// ReportVulnerability files a new vulnerability and links the reporter.
func ReportVulnerability(actor middleware.AuthenticatedUser, vuln *models.Vulnerability) error {
	var events []Event

	err := inTransaction(func(tx *gorm.DB) error {
		vuln.Status = models.StatusReported

		if err := tx.Create(vuln).Error; err != nil {
			return err
		}

		link := models.VulnerabilityAssignment{
			UserID:          actor.ID,
			VulnerabilityID: vuln.ID,
			Role:            models.VulnRoleReporter,
		}

		if err := tx.Create(&link).Error; err != nil {
			return err
		}

		leadIDs, err := projectLeadIDs(tx, vuln.ProjectID)

		if err != nil {
			return err
		}

		pid := vuln.ProjectID
		vid := vuln.ID

		events = append(events, Event{
			Recipients: leadIDs,
			Type:       models.NotifyVulnReported,
			Message:    fmt.Sprintf("%s %s reported %q.", actor.FirstName, actor.LastName, vuln.Title),
			ProjectID:  &pid,
			VulnID:     &vid,
		})

		return nil
	})

	if err != nil {
		return err
	}

	Dispatch(events)

	return nil
}

// AssignUser links the target as ASSIGNEE; lead-initiated. The target must
// currently hold assignee capability (PROGRAMMER or LEAD) in the project.
func AssignUser(projectID, vulnID, targetUserID uint) error {
	return addLink(projectID, vulnID, targetUserID, models.VulnRoleAssignee, models.NotifyVulnAssigned,
		"You were assigned to %q.")
}

// AddVerifier links the target as VERIFIER; the target must hold verifier
// capability (TESTER or LEAD) in the project.
func AddVerifier(projectID, vulnID, targetUserID uint) error {
	return addLink(projectID, vulnID, targetUserID, models.VulnRoleVerifier, models.NotifyVulnAssigned,
		"You were added as verifier on %q.")
}

// SelfAssign lets a member join a vulnerability themselves; programmers and
// leads join as ASSIGNEE, testers as VERIFIER. Leads are notified.
func SelfAssign(actor middleware.AuthenticatedUser, projectID, vulnID uint) error {
	role, err := ProjectRoleOf(actor, projectID)

	if err != nil {
		return err
	}

	linkRole := models.VulnRoleAssignee

	if role == models.RoleTester {
		linkRole = models.VulnRoleVerifier
	}

	if err := addLink(projectID, vulnID, actor.ID, linkRole, "", ""); err != nil {
		return err
	}

	var events []Event

	err = inTransaction(func(tx *gorm.DB) error {
		var vuln models.Vulnerability

		if err := tx.First(&vuln, vulnID).Error; err != nil {
			return err
		}

		leadIDs, err := projectLeadIDs(tx, projectID)

		if err != nil {
			return err
		}

		pid := projectID
		vid := vulnID

		events = append(events, Event{
			Recipients: leadIDs,
			Type:       models.NotifySelfAssigned,
			Message:    fmt.Sprintf("%s %s self-assigned to %q.", actor.FirstName, actor.LastName, vuln.Title),
			ProjectID:  &pid,
			VulnID:     &vid,
		})

		return nil
	})

	if err != nil {
		return err
	}

	Dispatch(events)

	return nil
}

func addLink(projectID, vulnID, userID uint, linkRole models.VulnRole, notifyType models.NotificationType, messageFormat string) error {
	var events []Event

	err := inTransaction(func(tx *gorm.DB) error {
		var vuln models.Vulnerability

		if err := tx.Where("id = ? AND project_id = ?", vulnID, projectID).First(&vuln).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var membership models.ProjectMembership

		err := tx.Where("user_id = ? AND project_id = ?", userID, projectID).First(&membership).Error

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotAMember
			}
			return err
		}

		// An ASSIGNEE link requires assignee capability, a VERIFIER link
		// verifier capability; LEAD holds both.
		switch linkRole {
		case models.VulnRoleAssignee:
			if membership.Role != models.RoleProgrammer && membership.Role != models.RoleLead {
				return ErrForbidden
			}
		case models.VulnRoleVerifier:
			if membership.Role != models.RoleTester && membership.Role != models.RoleLead {
				return ErrForbidden
			}
		}

		var existing int64

		err = tx.Model(&models.VulnerabilityAssignment{}).
			Where("user_id = ? AND vulnerability_id = ?", userID, vulnID).
			Count(&existing).Error

		if err != nil {
			return err
		}

		if existing > 0 {
			return ErrAlreadyLinked
		}

		link := models.VulnerabilityAssignment{
			UserID:          userID,
			VulnerabilityID: vulnID,
			Role:            linkRole,
		}

		if err := tx.Create(&link).Error; err != nil {
			return err
		}

		switch {
		case linkRole == models.VulnRoleAssignee && vuln.Status == models.StatusReported:
			if err := tx.Model(&vuln).Update("status", models.StatusInProgress).Error; err != nil {
				return err
			}
		case linkRole == models.VulnRoleVerifier && vuln.Status == models.StatusInProgress:
			if err := tx.Model(&vuln).Update("status", models.StatusUnderReview).Error; err != nil {
				return err
			}
		}

		if notifyType != "" {
			pid := projectID
			vid := vulnID

			events = append(events, Event{
				Recipients: []uint{userID},
				Type:       notifyType,
				Message:    fmt.Sprintf(messageFormat, vuln.Title),
				ProjectID:  &pid,
				VulnID:     &vid,
			})
		}

		return nil
	})

	if err != nil {
		return err
	}

	Dispatch(events)

	return nil
}

// RemoveLink drops the user's ASSIGNEE or VERIFIER link from a vulnerability,
// reverting the status when the last holder of that relation leaves.
// selfInitiated switches the notification to the lead-facing self-revoke type.
func RemoveLink(projectID, vulnID, userID uint, selfInitiated bool) error {
	var events []Event

	err := inTransaction(func(tx *gorm.DB) error {
		var vuln models.Vulnerability

		if err := tx.Where("id = ? AND project_id = ?", vulnID, projectID).First(&vuln).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var link models.VulnerabilityAssignment

		err := tx.Where("user_id = ? AND vulnerability_id = ? AND role IN ?",
			userID, vulnID, []models.VulnRole{models.VulnRoleAssignee, models.VulnRoleVerifier}).
			First(&link).Error

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		// Hard delete so the unique (user_id, vulnerability_id) key is free
		// for a later re-link.
		if err := tx.Unscoped().Delete(&models.VulnerabilityAssignment{}, link.ID).Error; err != nil {
			return err
		}

		var remaining int64

		err = tx.Model(&models.VulnerabilityAssignment{}).
			Where("vulnerability_id = ? AND role = ?", vulnID, link.Role).
			Count(&remaining).Error

		if err != nil {
			return err
		}

		if remaining == 0 {
			switch {
			case link.Role == models.VulnRoleAssignee && vuln.Status == models.StatusInProgress:
				if err := tx.Model(&vuln).Update("status", models.StatusReported).Error; err != nil {
					return err
				}
			case link.Role == models.VulnRoleVerifier && vuln.Status == models.StatusUnderReview:
				if err := tx.Model(&vuln).Update("status", models.StatusInProgress).Error; err != nil {
					return err
				}
			}
		}

		pid := projectID
		vid := vulnID

		if selfInitiated {
			leadIDs, err := projectLeadIDs(tx, projectID)

			if err != nil {
				return err
			}

			events = append(events, Event{
				Recipients: leadIDs,
				Type:       models.NotifySelfRevoked,
				Message:    fmt.Sprintf("A member withdrew from %q.", vuln.Title),
				ProjectID:  &pid,
				VulnID:     &vid,
			})
		} else {
			events = append(events, Event{
				Recipients: []uint{userID},
				Type:       models.NotifyVulnUnassigned,
				Message:    fmt.Sprintf("You were removed from %q.", vuln.Title),
				ProjectID:  &pid,
				VulnID:     &vid,
			})
		}

		return nil
	})

	if err != nil {
		return err
	}

	Dispatch(events)

	return nil
}

// MarkVerified records a verifier sign-off, moving the vulnerability from
// UNDER_REVIEW to VERIFIED. The actor must hold a VERIFIER link or be a
// project lead. VERIFIED is terminal.
func MarkVerified(actor middleware.AuthenticatedUser, projectID, vulnID uint) error {
	var events []Event

	err := inTransaction(func(tx *gorm.DB) error {
		var vuln models.Vulnerability

		if err := tx.Where("id = ? AND project_id = ?", vulnID, projectID).First(&vuln).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if vuln.Status != models.StatusUnderReview {
			return fmt.Errorf("%w: vulnerability is %s, not %s", ErrForbidden, vuln.Status, models.StatusUnderReview)
		}

		if !actor.IsAdmin() {
			var verifierLink int64

			err := tx.Model(&models.VulnerabilityAssignment{}).
				Where("user_id = ? AND vulnerability_id = ? AND role = ?", actor.ID, vulnID, models.VulnRoleVerifier).
				Count(&verifierLink).Error

			if err != nil {
				return err
			}

			if verifierLink == 0 {
				var lead int64

				err := tx.Model(&models.ProjectMembership{}).
					Where("user_id = ? AND project_id = ? AND role = ?", actor.ID, projectID, models.RoleLead).
					Count(&lead).Error

				if err != nil {
					return err
				}

				if lead == 0 {
					return ErrForbidden
				}
			}
		}

		if err := tx.Model(&vuln).Update("status", models.StatusVerified).Error; err != nil {
			return err
		}

		var participantIDs []uint

		err := tx.Model(&models.VulnerabilityAssignment{}).
			Where("vulnerability_id = ?", vulnID).
			Pluck("user_id", &participantIDs).Error

		if err != nil {
			return err
		}

		pid := projectID
		vid := vulnID

		events = append(events, Event{
			Recipients: participantIDs,
			Type:       models.NotifyVulnStatusChanged,
			Message:    fmt.Sprintf("%q has been verified.", vuln.Title),
			ProjectID:  &pid,
			VulnID:     &vid,
		})

		return nil
	})

	if err != nil {
		return err
	}

	Dispatch(events)

	return nil
}
