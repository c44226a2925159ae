package services

import (
	"testing"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportVulnerabilityLinksReporterAndNotifiesLeads(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	lead := createUser(t, "Lena", "Lead")
	tester := createUser(t, "Tara", "Tester")
	addMembership(t, lead, project, models.RoleLead)
	addMembership(t, tester, project, models.RoleTester)

	vuln := models.Vulnerability{
		ProjectID:   project.ID,
		Title:       "JWT signature not checked",
		Description: "Tokens with alg=none are accepted.",
		Severity:    models.SeverityHigh,
	}

	require.NoError(t, ReportVulnerability(asActor(tester), &vuln))
	require.NotZero(t, vuln.ID)

	assert.Equal(t, models.StatusReported, currentStatus(t, vuln))
	assert.EqualValues(t, 1, linkCount(t, tester, vuln, models.VulnRoleReporter))

	var notifications []models.Notification
	require.NoError(t, db.DB.Where("recipient_id = ? AND type = ?", lead.ID, models.NotifyVulnReported).Find(&notifications).Error)
	assert.Len(t, notifications, 1)
}

func TestAssignUserAdvancesReportedToInProgress(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	programmer := createUser(t, "Paula", "Programmer")
	addMembership(t, programmer, project, models.RoleProgrammer)

	vuln := createVuln(t, project, "Missing rate limit on login", models.StatusReported)

	require.NoError(t, AssignUser(project.ID, vuln.ID, programmer.ID))

	assert.EqualValues(t, 1, linkCount(t, programmer, vuln, models.VulnRoleAssignee))
	assert.Equal(t, models.StatusInProgress, currentStatus(t, vuln))

	var notifications []models.Notification
	require.NoError(t, db.DB.Where("recipient_id = ? AND type = ?", programmer.ID, models.NotifyVulnAssigned).Find(&notifications).Error)
	assert.Len(t, notifications, 1)
}

func TestAssignUserCapabilityChecks(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	tester := createUser(t, "Tara", "Tester")
	outsider := createUser(t, "Olive", "Outsider")
	addMembership(t, tester, project, models.RoleTester)

	vuln := createVuln(t, project, "Default admin password", models.StatusReported)

	// Testers cannot hold ASSIGNEE links.
	assert.ErrorIs(t, AssignUser(project.ID, vuln.ID, tester.ID), ErrForbidden)

	assert.ErrorIs(t, AssignUser(project.ID, vuln.ID, outsider.ID), ErrNotAMember)

	assert.ErrorIs(t, AssignUser(project.ID, 9999, tester.ID), ErrNotFound)

	// A vulnerability from a different project is not reachable through this one.
	other := createProject(t, "other-project")
	foreign := createVuln(t, other, "Foreign finding", models.StatusReported)
	assert.ErrorIs(t, AssignUser(project.ID, foreign.ID, tester.ID), ErrNotFound)
}

func TestAssignUserRejectsDuplicateLinks(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	programmer := createUser(t, "Paula", "Programmer")
	addMembership(t, programmer, project, models.RoleProgrammer)

	vuln := createVuln(t, project, "Cleartext password storage", models.StatusReported)

	require.NoError(t, AssignUser(project.ID, vuln.ID, programmer.ID))

	// One link per user and vulnerability, regardless of role.
	assert.ErrorIs(t, AssignUser(project.ID, vuln.ID, programmer.ID), ErrAlreadyLinked)
}

func TestAddVerifierAdvancesInProgressToUnderReview(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	tester := createUser(t, "Tara", "Tester")
	programmer := createUser(t, "Paula", "Programmer")
	addMembership(t, tester, project, models.RoleTester)
	addMembership(t, programmer, project, models.RoleProgrammer)

	vuln := createVuln(t, project, "SSRF via webhook URL", models.StatusInProgress)

	// Programmers cannot hold VERIFIER links.
	assert.ErrorIs(t, AddVerifier(project.ID, vuln.ID, programmer.ID), ErrForbidden)

	require.NoError(t, AddVerifier(project.ID, vuln.ID, tester.ID))

	assert.EqualValues(t, 1, linkCount(t, tester, vuln, models.VulnRoleVerifier))
	assert.Equal(t, models.StatusUnderReview, currentStatus(t, vuln))
}

func TestSelfAssignRolePicksLinkType(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	lead := createUser(t, "Lena", "Lead")
	programmer := createUser(t, "Paula", "Programmer")
	tester := createUser(t, "Tara", "Tester")
	addMembership(t, lead, project, models.RoleLead)
	addMembership(t, programmer, project, models.RoleProgrammer)
	addMembership(t, tester, project, models.RoleTester)

	vuln := createVuln(t, project, "IDOR on invoice download", models.StatusReported)

	require.NoError(t, SelfAssign(asActor(programmer), project.ID, vuln.ID))
	assert.EqualValues(t, 1, linkCount(t, programmer, vuln, models.VulnRoleAssignee))
	assert.Equal(t, models.StatusInProgress, currentStatus(t, vuln))

	require.NoError(t, SelfAssign(asActor(tester), project.ID, vuln.ID))
	assert.EqualValues(t, 1, linkCount(t, tester, vuln, models.VulnRoleVerifier))
	assert.Equal(t, models.StatusUnderReview, currentStatus(t, vuln))

	var notifications []models.Notification
	require.NoError(t, db.DB.Where("recipient_id = ? AND type = ?", lead.ID, models.NotifySelfAssigned).Find(&notifications).Error)
	assert.Len(t, notifications, 2)
}

func TestRemoveLinkRevertsStatusWhenLastHolderLeaves(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	programmer := createUser(t, "Paula", "Programmer")
	tester := createUser(t, "Tara", "Tester")
	addMembership(t, programmer, project, models.RoleProgrammer)
	addMembership(t, tester, project, models.RoleTester)

	vuln := createVuln(t, project, "Session fixation", models.StatusUnderReview)
	addLinkRow(t, programmer, vuln, models.VulnRoleAssignee)
	addLinkRow(t, tester, vuln, models.VulnRoleVerifier)

	require.NoError(t, RemoveLink(project.ID, vuln.ID, tester.ID, false))
	assert.Equal(t, models.StatusInProgress, currentStatus(t, vuln))

	require.NoError(t, RemoveLink(project.ID, vuln.ID, programmer.ID, false))
	assert.Equal(t, models.StatusReported, currentStatus(t, vuln))

	var notifications []models.Notification
	require.NoError(t, db.DB.Where("type = ?", models.NotifyVulnUnassigned).Find(&notifications).Error)
	assert.Len(t, notifications, 2)
}

func TestRemoveLinkKeepsStatusWithRemainingHolder(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	first := createUser(t, "Paula", "Programmer")
	second := createUser(t, "Peter", "Programmer")
	addMembership(t, first, project, models.RoleProgrammer)
	addMembership(t, second, project, models.RoleProgrammer)

	vuln := createVuln(t, project, "Type confusion in parser", models.StatusInProgress)
	addLinkRow(t, first, vuln, models.VulnRoleAssignee)
	addLinkRow(t, second, vuln, models.VulnRoleAssignee)

	require.NoError(t, RemoveLink(project.ID, vuln.ID, first.ID, false))

	assert.Equal(t, models.StatusInProgress, currentStatus(t, vuln))
	assert.EqualValues(t, 1, linkCount(t, second, vuln, models.VulnRoleAssignee))
}

func TestRemoveLinkLeavesVerifiedFinal(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	tester := createUser(t, "Tara", "Tester")
	addMembership(t, tester, project, models.RoleTester)

	vuln := createVuln(t, project, "Privilege escalation via import", models.StatusVerified)
	addLinkRow(t, tester, vuln, models.VulnRoleVerifier)

	require.NoError(t, RemoveLink(project.ID, vuln.ID, tester.ID, false))

	assert.EqualValues(t, 0, linkCount(t, tester, vuln, models.VulnRoleVerifier))
	assert.Equal(t, models.StatusVerified, currentStatus(t, vuln))
}

func TestReassignAfterUnassign(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	programmer := createUser(t, "Paula", "Programmer")
	addMembership(t, programmer, project, models.RoleProgrammer)

	vuln := createVuln(t, project, "Format string in logger", models.StatusReported)

	require.NoError(t, AssignUser(project.ID, vuln.ID, programmer.ID))
	require.NoError(t, RemoveLink(project.ID, vuln.ID, programmer.ID, false))
	require.Equal(t, models.StatusReported, currentStatus(t, vuln))

	// The removed link may not keep occupying the unique
	// (user_id, vulnerability_id) key.
	require.NoError(t, AssignUser(project.ID, vuln.ID, programmer.ID))

	assert.EqualValues(t, 1, linkCount(t, programmer, vuln, models.VulnRoleAssignee))
	assert.Equal(t, models.StatusInProgress, currentStatus(t, vuln))
}

func TestRemoveLinkSelfInitiatedNotifiesLeads(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	lead := createUser(t, "Lena", "Lead")
	programmer := createUser(t, "Paula", "Programmer")
	addMembership(t, lead, project, models.RoleLead)
	addMembership(t, programmer, project, models.RoleProgrammer)

	vuln := createVuln(t, project, "Stack trace in error page", models.StatusInProgress)
	addLinkRow(t, programmer, vuln, models.VulnRoleAssignee)

	require.NoError(t, RemoveLink(project.ID, vuln.ID, programmer.ID, true))

	var notifications []models.Notification
	require.NoError(t, db.DB.Where("recipient_id = ? AND type = ?", lead.ID, models.NotifySelfRevoked).Find(&notifications).Error)
	assert.Len(t, notifications, 1)
}

func TestMarkVerifiedRequiresUnderReview(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	tester := createUser(t, "Tara", "Tester")
	addMembership(t, tester, project, models.RoleTester)

	vuln := createVuln(t, project, "Cookie without HttpOnly", models.StatusInProgress)
	addLinkRow(t, tester, vuln, models.VulnRoleVerifier)

	err := MarkVerified(asActor(tester), project.ID, vuln.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, models.StatusInProgress, currentStatus(t, vuln))
}

func TestMarkVerifiedByVerifier(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	tester := createUser(t, "Tara", "Tester")
	programmer := createUser(t, "Paula", "Programmer")
	addMembership(t, tester, project, models.RoleTester)
	addMembership(t, programmer, project, models.RoleProgrammer)

	vuln := createVuln(t, project, "Reflected XSS in search", models.StatusUnderReview)
	addLinkRow(t, tester, vuln, models.VulnRoleVerifier)
	addLinkRow(t, programmer, vuln, models.VulnRoleAssignee)

	// A participant without a VERIFIER link cannot sign off.
	assert.ErrorIs(t, MarkVerified(asActor(programmer), project.ID, vuln.ID), ErrForbidden)

	require.NoError(t, MarkVerified(asActor(tester), project.ID, vuln.ID))
	assert.Equal(t, models.StatusVerified, currentStatus(t, vuln))

	// Everyone linked to the vulnerability hears about the sign-off.
	var notifications []models.Notification
	require.NoError(t, db.DB.Where("type = ?", models.NotifyVulnStatusChanged).Find(&notifications).Error)
	assert.Len(t, notifications, 2)
}

func TestMarkVerifiedByLeadWithoutLink(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	lead := createUser(t, "Lena", "Lead")
	tester := createUser(t, "Tara", "Tester")
	addMembership(t, lead, project, models.RoleLead)
	addMembership(t, tester, project, models.RoleTester)

	vuln := createVuln(t, project, "Directory listing enabled", models.StatusUnderReview)
	addLinkRow(t, tester, vuln, models.VulnRoleVerifier)

	require.NoError(t, MarkVerified(asActor(lead), project.ID, vuln.ID))
	assert.Equal(t, models.StatusVerified, currentStatus(t, vuln))
}

func TestMarkVerifiedByAdmin(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	admin := createAdmin(t, "Ada", "Admin")
	tester := createUser(t, "Tara", "Tester")
	addMembership(t, tester, project, models.RoleTester)

	vuln := createVuln(t, project, "Exposed debug endpoint", models.StatusUnderReview)
	addLinkRow(t, tester, vuln, models.VulnRoleVerifier)

	require.NoError(t, MarkVerified(asActor(admin), project.ID, vuln.ID))
	assert.Equal(t, models.StatusVerified, currentStatus(t, vuln))
}
