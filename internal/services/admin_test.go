package services

import (
	"testing"
	"time"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestListUsers(t *testing.T) {
	setupTestDB(t)

	createUser(t, "Lena", "Lead")
	createUser(t, "Tara", "Tester")

	users, err := ListUsers()
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestFindUserByEmail(t *testing.T) {
	setupTestDB(t)

	user := createUser(t, "Lena", "Lead")

	found, err := FindUserByEmail(user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	// Lookup normalizes the address the same way registration does.
	found, err = FindUserByEmail("  " + user.Email + " ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = FindUserByEmail("nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserWithChosenRole(t *testing.T) {
	setupTestDB(t)

	user, err := CreateUser("Ada", "Admin", "Ada@Example.Com", "hunter2hunter2", models.GlobalRoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, models.GlobalRoleAdmin, user.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter2hunter2")))

	_, err = CreateUser("Other", "Person", "ada@example.com", "hunter2hunter2", models.GlobalRoleUser)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestDeleteUserCascade(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	lead := createUser(t, "Lena", "Lead")
	programmer := createUser(t, "Paula", "Programmer")
	addMembership(t, lead, project, models.RoleLead)
	addMembership(t, programmer, project, models.RoleProgrammer)

	vuln := createVuln(t, project, "TOCTOU in file check", models.StatusInProgress)
	addLinkRow(t, programmer, vuln, models.VulnRoleAssignee)

	// A project where the user is the only member goes away entirely.
	solo := createProject(t, "solo-project")
	addMembership(t, programmer, solo, models.RoleLead)

	require.NoError(t, DeleteUserCascade(programmer.ID))

	var userCount int64
	require.NoError(t, db.DB.Model(&models.User{}).Where("id = ?", programmer.ID).Count(&userCount).Error)
	assert.EqualValues(t, 0, userCount)

	assert.EqualValues(t, 0, linkCount(t, programmer, vuln, models.VulnRoleAssignee))
	assert.Equal(t, models.StatusReported, currentStatus(t, vuln))

	var soloCount int64
	require.NoError(t, db.DB.Model(&models.Project{}).Where("id = ?", solo.ID).Count(&soloCount).Error)
	assert.EqualValues(t, 0, soloCount)

	// The shared project and the other member survive.
	assert.Equal(t, models.RoleLead, currentRole(t, lead, project))

	err := DeleteUserCascade(programmer.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteUserCascadeFreesEmail(t *testing.T) {
	setupTestDB(t)

	user, err := CreateUser("Paula", "Programmer", "paula@example.com", "hunter2hunter2", models.GlobalRoleUser)
	require.NoError(t, err)

	require.NoError(t, DeleteUserCascade(user.ID))

	// The unique email key must be free for a fresh registration.
	_, err = CreateUser("Paula", "Programmer", "paula@example.com", "hunter2hunter2", models.GlobalRoleUser)
	require.NoError(t, err)
}

func TestOverdueVulnerabilities(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")

	yesterday := time.Now().Add(-24 * time.Hour)
	nextWeek := time.Now().Add(7 * 24 * time.Hour)

	overdue := createVuln(t, project, "Expired TLS cert pinning", models.StatusInProgress)
	require.NoError(t, db.DB.Model(&overdue).Update("due_at", yesterday).Error)

	verified := createVuln(t, project, "Fixed and verified", models.StatusVerified)
	require.NoError(t, db.DB.Model(&verified).Update("due_at", yesterday).Error)

	upcoming := createVuln(t, project, "Due next week", models.StatusReported)
	require.NoError(t, db.DB.Model(&upcoming).Update("due_at", nextWeek).Error)

	createVuln(t, project, "No due date", models.StatusReported)

	vulns, err := OverdueVulnerabilities()
	require.NoError(t, err)
	require.Len(t, vulns, 1)
	assert.Equal(t, overdue.ID, vulns[0].ID)
}
