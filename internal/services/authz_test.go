package services

import (
	"testing"

	"github.com/brentcodes/clamped/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasProjectRoleMatchesExactly(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	lead := createUser(t, "Lena", "Lead")
	programmer := createUser(t, "Paula", "Programmer")
	outsider := createUser(t, "Olive", "Outsider")
	addMembership(t, lead, project, models.RoleLead)
	addMembership(t, programmer, project, models.RoleProgrammer)

	ok, err := HasProjectRole(asActor(lead), project.ID, models.RoleLead)
	require.NoError(t, err)
	assert.True(t, ok)

	// A lead is not a programmer; project roles do not subsume each other.
	ok, err = HasProjectRole(asActor(lead), project.ID, models.RoleProgrammer)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = HasProjectRole(asActor(programmer), project.ID, models.RoleLead)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = HasProjectRole(asActor(outsider), project.ID, models.RoleTester)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasProjectRoleAdminBypass(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	admin := createAdmin(t, "Ada", "Admin")

	ok, err := HasProjectRole(asActor(admin), project.ID, models.RoleLead)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsProjectMember(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	member := createUser(t, "Tara", "Tester")
	outsider := createUser(t, "Olive", "Outsider")
	admin := createAdmin(t, "Ada", "Admin")
	addMembership(t, member, project, models.RoleTester)

	ok, err := IsProjectMember(asActor(member), project.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsProjectMember(asActor(outsider), project.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = IsProjectMember(asActor(admin), project.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProjectRoleOf(t *testing.T) {
	setupTestDB(t)

	project := createProject(t, "clamped-core")
	tester := createUser(t, "Tara", "Tester")
	outsider := createUser(t, "Olive", "Outsider")
	admin := createAdmin(t, "Ada", "Admin")
	addMembership(t, tester, project, models.RoleTester)

	role, err := ProjectRoleOf(asActor(tester), project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTester, role)

	_, err = ProjectRoleOf(asActor(outsider), project.ID)
	assert.ErrorIs(t, err, ErrNotAMember)

	role, err = ProjectRoleOf(asActor(admin), project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleLead, role)
}
