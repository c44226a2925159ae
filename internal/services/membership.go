package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/middleware"
	"github.com/brentcodes/clamped/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Warning codes surfaced by the two-phase confirmation protocol. A response
// carrying one of these is not an error: the caller is expected to re-invoke
// the same operation with confirmed=true.
const (
	CodePromotingMemberLead  = "PROMOTING_MEMBER_LEAD"
	CodeAddingMemberLead     = "ADDING_MEMBER_LEAD"
	CodeRemovingMemberLead   = "REMOVING_MEMBER_LEAD"
	CodeSelfRemoveLastMember = "SELF_REMOVE_LAST_MEMBER"
	CodeSelfRemoveLastLead   = "SELF_REMOVE_LAST_LEAD"
	CodeSafeToDelete         = "SAFE_TO_DELETE"
)

type RoleCheckResult struct {
	Warning bool   `json:"warning"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type ProjectMemberResponse struct {
	UserID    uint               `json:"user_id"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Role      models.ProjectRole `json:"role"`
}

// linkCleanup records one stripped assignment link and whether the strip
// reverted the vulnerability's status.
type linkCleanup struct {
	VulnID        uint
	VulnTitle     string
	StatusChanged bool
	NewStatus     models.VulnStatus
}

// inTransaction runs fn in one transaction, retrying once when the database
// reports a serialization conflict. A conflict that survives the retry is
// surfaced as ErrConflict.
func inTransaction(fn func(tx *gorm.DB) error) error {
	err := db.DB.Transaction(fn)

	if isConflict(err) {
		err = db.DB.Transaction(fn)
		if isConflict(err) {
			return ErrConflict
		}
	}

	return err
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	return strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "database is locked")
}

// membershipForUpdate loads one membership row under a row lock so that the
// lead and member counts observed inside the transaction hold at commit time.
func membershipForUpdate(tx *gorm.DB, userID, projectID uint) (*models.ProjectMembership, error) {
	q := tx

	// SQLite serializes writers already and rejects FOR UPDATE.
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var membership models.ProjectMembership

	if err := q.Where("user_id = ? AND project_id = ?", userID, projectID).First(&membership).Error; err != nil {
		return nil, err
	}

	return &membership, nil
}

// ChangeUserRole applies one role transition for the target user, running the
// assignment-link cascade before the new role is written. Promoting to LEAD is
// two-phase: the first, unconfirmed call returns a warning and persists
// nothing. The caller is assumed to have already passed the LEAD gate.
func ChangeUserRole(projectID, targetUserID uint, newRole models.ProjectRole, confirmed bool) (RoleCheckResult, error) {
	var result RoleCheckResult
	var events []Event

	err := inTransaction(func(tx *gorm.DB) error {
		var user models.User

		if err := tx.First(&user, targetUserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		membership, err := membershipForUpdate(tx, targetUserID, projectID)

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		oldRole := membership.Role

		if oldRole == newRole {
			return ErrNoOpTransition
		}

		if newRole == models.RoleLead {
			if !confirmed {
				// Two-phase confirmation: nothing is persisted until the
				// caller re-invokes with confirmed=true.
				result = RoleCheckResult{
					Warning: true,
					Code:    CodePromotingMemberLead,
					Message: "You are about to promote this user to LEAD. This will add an additional project lead.",
				}
				return nil
			}

			// LEAD holds both assignee and verifier capability, so promotion
			// never strips links.
			if err := tx.Model(membership).Update("role", newRole).Error; err != nil {
				return err
			}

			result = RoleCheckResult{Warning: false}
			return nil
		}

		var cleanups []linkCleanup

		// Losing assignee capability strips ASSIGNEE links; losing verifier
		// capability strips VERIFIER links. TESTER keeps verifier capability,
		// PROGRAMMER keeps assignee capability.
		if newRole == models.RoleTester && (oldRole == models.RoleProgrammer || oldRole == models.RoleLead) {
			stripped, err := stripLinks(tx, targetUserID, projectID, models.VulnRoleAssignee)
			if err != nil {
				return err
			}
			cleanups = append(cleanups, stripped...)
		}

		if newRole == models.RoleProgrammer && (oldRole == models.RoleTester || oldRole == models.RoleLead) {
			stripped, err := stripLinks(tx, targetUserID, projectID, models.VulnRoleVerifier)
			if err != nil {
				return err
			}
			cleanups = append(cleanups, stripped...)
		}

		if err := tx.Model(membership).Update("role", newRole).Error; err != nil {
			return err
		}

		pid := projectID

		for i := range cleanups {
			cleanup := cleanups[i]
			vulnID := cleanup.VulnID

			events = append(events, Event{
				Recipients: []uint{targetUserID},
				Type:       models.NotifyVulnUnassigned,
				Message:    fmt.Sprintf("You were unassigned from %q after your project role changed to %s.", cleanup.VulnTitle, newRole),
				ProjectID:  &pid,
				VulnID:     &vulnID,
			})

			if cleanup.StatusChanged {
				leadIDs, err := projectLeadIDs(tx, projectID)
				if err != nil {
					return err
				}

				events = append(events, Event{
					Recipients: leadIDs,
					Type:       models.NotifyVulnStatusChanged,
					Message:    fmt.Sprintf("%q reverted to %s after its last %s left the role.", cleanup.VulnTitle, cleanup.NewStatus, oldRole),
					ProjectID:  &pid,
					VulnID:     &vulnID,
				})
			}
		}

		result = RoleCheckResult{Warning: false}
		return nil
	})

	if err != nil {
		return RoleCheckResult{}, err
	}

	Dispatch(events)

	return result, nil
}

// stripLinks deletes every link of the given relation the user holds on
// vulnerabilities of this project, reverting each vulnerability's status when
// the last holder of that relation disappears. Verified vulnerabilities are
// never touched: verification is final.
func stripLinks(tx *gorm.DB, userID, projectID uint, linkRole models.VulnRole) ([]linkCleanup, error) {
	var links []models.VulnerabilityAssignment

	err := tx.
		Joins("JOIN vulnerabilities ON vulnerabilities.id = vulnerability_assignments.vulnerability_id").
		Where("vulnerability_assignments.user_id = ? AND vulnerabilities.project_id = ? AND vulnerability_assignments.role = ?",
			userID, projectID, linkRole).
		Find(&links).Error

	if err != nil {
		return nil, err
	}

	var cleanups []linkCleanup

	for i := range links {
		link := links[i]

		// Hard delete: a soft-deleted row would keep occupying the unique
		// (user_id, vulnerability_id) key and block any later re-link.
		if err := tx.Unscoped().Delete(&models.VulnerabilityAssignment{}, link.ID).Error; err != nil {
			return nil, err
		}

		var vuln models.Vulnerability

		if err := tx.First(&vuln, link.VulnerabilityID).Error; err != nil {
			return nil, err
		}

		cleanup := linkCleanup{VulnID: vuln.ID, VulnTitle: vuln.Title}

		var remaining int64

		err := tx.Model(&models.VulnerabilityAssignment{}).
			Where("vulnerability_id = ? AND role = ?", vuln.ID, linkRole).
			Count(&remaining).Error

		if err != nil {
			return nil, err
		}

		if remaining == 0 {
			switch {
			case linkRole == models.VulnRoleAssignee && vuln.Status == models.StatusInProgress:
				cleanup.StatusChanged = true
				cleanup.NewStatus = models.StatusReported
			case linkRole == models.VulnRoleVerifier && vuln.Status == models.StatusUnderReview:
				cleanup.StatusChanged = true
				cleanup.NewStatus = models.StatusInProgress
			}

			if cleanup.StatusChanged {
				if err := tx.Model(&vuln).Update("status", cleanup.NewStatus).Error; err != nil {
					return nil, err
				}
			}
		}

		cleanups = append(cleanups, cleanup)
	}

	return cleanups, nil
}

func projectLeadIDs(tx *gorm.DB, projectID uint) ([]uint, error) {
	var leadIDs []uint

	err := tx.Model(&models.ProjectMembership{}).
		Where("project_id = ? AND role = ?", projectID, models.RoleLead).
		Pluck("user_id", &leadIDs).Error

	return leadIDs, err
}

// AddMember inserts a new membership. Adding a LEAD is two-phase like
// promotion: unconfirmed calls warn and persist nothing.
func AddMember(projectID, userID uint, role models.ProjectRole, confirmed bool) (RoleCheckResult, error) {
	var result RoleCheckResult
	var events []Event

	err := inTransaction(func(tx *gorm.DB) error {
		var project models.Project

		if err := tx.First(&project, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var user models.User

		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var existing int64

		err := tx.Model(&models.ProjectMembership{}).
			Where("user_id = ? AND project_id = ?", userID, projectID).
			Count(&existing).Error

		if err != nil {
			return err
		}

		if existing > 0 {
			return ErrAlreadyMember
		}

		if role == models.RoleLead && !confirmed {
			result = RoleCheckResult{
				Warning: true,
				Code:    CodeAddingMemberLead,
				Message: "You are adding a new LEAD to this project. This will grant them full permissions.",
			}
			return nil
		}

		membership := models.ProjectMembership{
			UserID:    userID,
			ProjectID: projectID,
			Role:      role,
		}

		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		pid := projectID

		events = append(events, Event{
			Recipients: []uint{userID},
			Type:       models.NotifyProjectAdded,
			Message:    fmt.Sprintf("You were added to project %q as %s.", project.Name, role),
			ProjectID:  &pid,
		})

		result = RoleCheckResult{Warning: false, Message: "Member successfully added."}
		return nil
	})

	if err != nil {
		return RoleCheckResult{}, err
	}

	Dispatch(events)

	return result, nil
}

// ValidateRemoveMember is the read-only first phase of admin-initiated
// removal: it reports whether removing the target would leave the project
// without a lead.
func ValidateRemoveMember(projectID, targetUserID uint) (RoleCheckResult, error) {
	var membership models.ProjectMembership

	err := db.DB.Where("user_id = ? AND project_id = ?", targetUserID, projectID).First(&membership).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RoleCheckResult{}, ErrNotFound
		}
		return RoleCheckResult{}, err
	}

	if membership.Role == models.RoleLead {
		lastLead, err := isLastLead(db.DB, projectID, targetUserID)
		if err != nil {
			return RoleCheckResult{}, err
		}

		if lastLead {
			return RoleCheckResult{
				Warning: true,
				Code:    CodeRemovingMemberLead,
				Message: "Removing this member will leave the project without a lead.",
			}, nil
		}
	}

	return RoleCheckResult{Warning: false, Code: CodeSafeToDelete}, nil
}

// RemoveMember deletes the target's membership and every assignment link they
// hold in the project. The unconfirmed form re-runs the last-lead check inside
// the transaction and warns instead of deleting; the validate/commit gap is a
// confirmation flow, not a security boundary, so the commit re-verifies.
func RemoveMember(projectID, targetUserID uint, confirmed bool) (RoleCheckResult, error) {
	var result RoleCheckResult
	var events []Event

	err := inTransaction(func(tx *gorm.DB) error {
		membership, err := membershipForUpdate(tx, targetUserID, projectID)

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if !confirmed && membership.Role == models.RoleLead {
			lastLead, err := isLastLead(tx, projectID, targetUserID)
			if err != nil {
				return err
			}

			if lastLead {
				result = RoleCheckResult{
					Warning: true,
					Code:    CodeRemovingMemberLead,
					Message: "Removing this member will leave the project without a lead.",
				}
				return nil
			}
		}

		var project models.Project

		if err := tx.First(&project, projectID).Error; err != nil {
			return err
		}

		if err := removeMembershipAndLinks(tx, membership); err != nil {
			return err
		}

		pid := projectID

		events = append(events, Event{
			Recipients: []uint{targetUserID},
			Type:       models.NotifyProjectRemoved,
			Message:    fmt.Sprintf("You were removed from project %q.", project.Name),
			ProjectID:  &pid,
		})

		// A project must never exist with zero members; recomputed here, at
		// commit time, never from an earlier read.
		if err := deleteProjectIfEmpty(tx, projectID); err != nil {
			return err
		}

		result = RoleCheckResult{Warning: false, Code: CodeSafeToDelete}
		return nil
	})

	if err != nil {
		return RoleCheckResult{}, err
	}

	Dispatch(events)

	return result, nil
}

// ValidateSelfRemove is the read-only first phase of leaving a project.
func ValidateSelfRemove(actor middleware.AuthenticatedUser, projectID uint) (RoleCheckResult, error) {
	var membership models.ProjectMembership

	err := db.DB.Where("user_id = ? AND project_id = ?", actor.ID, projectID).First(&membership).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RoleCheckResult{}, ErrNotAMember
		}
		return RoleCheckResult{}, err
	}

	return selfRemoveCheck(db.DB, &membership)
}

func selfRemoveCheck(tx *gorm.DB, membership *models.ProjectMembership) (RoleCheckResult, error) {
	var others int64

	err := tx.Model(&models.ProjectMembership{}).
		Where("project_id = ? AND user_id <> ?", membership.ProjectID, membership.UserID).
		Count(&others).Error

	if err != nil {
		return RoleCheckResult{}, err
	}

	if others == 0 {
		return RoleCheckResult{
			Warning: true,
			Code:    CodeSelfRemoveLastMember,
			Message: "You are the last member. Leaving will delete the project.",
		}, nil
	}

	if membership.Role == models.RoleLead {
		lastLead, err := isLastLead(tx, membership.ProjectID, membership.UserID)
		if err != nil {
			return RoleCheckResult{}, err
		}

		if lastLead {
			return RoleCheckResult{
				Warning: true,
				Code:    CodeSelfRemoveLastLead,
				Message: "You are the last lead. Promote another member first.",
			}, nil
		}
	}

	return RoleCheckResult{Warning: false, Code: CodeSafeToDelete}, nil
}

// SelfRemove deletes the actor's own membership and assignment links. When the
// departure empties the project, the whole project and everything under it is
// deleted in the same transaction. The unconfirmed form re-runs the validation
// and warns instead of deleting.
func SelfRemove(actor middleware.AuthenticatedUser, projectID uint, confirmed bool) (RoleCheckResult, error) {
	var result RoleCheckResult

	err := inTransaction(func(tx *gorm.DB) error {
		membership, err := membershipForUpdate(tx, actor.ID, projectID)

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotAMember
			}
			return err
		}

		if !confirmed {
			check, err := selfRemoveCheck(tx, membership)
			if err != nil {
				return err
			}

			if check.Warning {
				result = check
				return nil
			}
		}

		if err := removeMembershipAndLinks(tx, membership); err != nil {
			return err
		}

		if err := deleteProjectIfEmpty(tx, projectID); err != nil {
			return err
		}

		result = RoleCheckResult{Warning: false, Code: CodeSafeToDelete}
		return nil
	})

	if err != nil {
		return RoleCheckResult{}, err
	}

	return result, nil
}

// removeMembershipAndLinks deletes one membership row plus all of that user's
// assignment links on vulnerabilities of the same project. Both deletes are
// hard: the composite unique keys must be free for the absent -> add -> remove
// lifecycle to repeat.
func removeMembershipAndLinks(tx *gorm.DB, membership *models.ProjectMembership) error {
	err := tx.Unscoped().
		Where("user_id = ? AND vulnerability_id IN (?)",
			membership.UserID,
			tx.Model(&models.Vulnerability{}).Select("id").Where("project_id = ?", membership.ProjectID)).
		Delete(&models.VulnerabilityAssignment{}).Error

	if err != nil {
		return err
	}

	return tx.Unscoped().Delete(&models.ProjectMembership{}, membership.ID).Error
}

// deleteProjectIfEmpty drops the project and, by cascade, its vulnerabilities,
// assignment links and messages once no membership remains.
func deleteProjectIfEmpty(tx *gorm.DB, projectID uint) error {
	var remaining int64

	err := tx.Model(&models.ProjectMembership{}).
		Where("project_id = ?", projectID).
		Count(&remaining).Error

	if err != nil {
		return err
	}

	if remaining > 0 {
		return nil
	}

	return DeleteProjectCascade(tx, projectID)
}

// DeleteProjectCascade removes a project and everything owned by it. Explicit
// hard deletes rather than relying on database-level cascade: soft-deleted
// rows would keep the composite unique keys occupied and leave live children
// behind soft-deleted parents.
func DeleteProjectCascade(tx *gorm.DB, projectID uint) error {
	err := tx.Unscoped().
		Where("vulnerability_id IN (?)",
			tx.Model(&models.Vulnerability{}).Select("id").Where("project_id = ?", projectID)).
		Delete(&models.VulnerabilityAssignment{}).Error

	if err != nil {
		return err
	}

	if err := tx.Unscoped().Where("project_id = ?", projectID).Delete(&models.Vulnerability{}).Error; err != nil {
		return err
	}

	if err := tx.Unscoped().Where("project_id = ?", projectID).Delete(&models.Message{}).Error; err != nil {
		return err
	}

	if err := tx.Unscoped().Where("project_id = ?", projectID).Delete(&models.ProjectMembership{}).Error; err != nil {
		return err
	}

	return tx.Unscoped().Delete(&models.Project{}, projectID).Error
}

func isLastLead(tx *gorm.DB, projectID, userID uint) (bool, error) {
	var otherLeads int64

	err := tx.Model(&models.ProjectMembership{}).
		Where("project_id = ? AND role = ? AND user_id <> ?", projectID, models.RoleLead, userID).
		Count(&otherLeads).Error

	if err != nil {
		return false, err
	}

	return otherLeads == 0, nil
}

// ListMembers returns every member of the project with their project role.
func ListMembers(projectID uint) ([]ProjectMemberResponse, error) {
	var memberships []models.ProjectMembership

	err := db.DB.Preload("User").
		Where("project_id = ?", projectID).
		Order("created_at asc").
		Find(&memberships).Error

	if err != nil {
		return nil, err
	}

	members := make([]ProjectMemberResponse, 0, len(memberships))

	for _, membership := range memberships {
		members = append(members, ProjectMemberResponse{
			UserID:    membership.UserID,
			FirstName: membership.User.FirstName,
			LastName:  membership.User.LastName,
			Role:      membership.Role,
		})
	}

	return members, nil
}
