package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/middleware"
	"github.com/brentcodes/clamped/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB points the package-level db.DB at a fresh in-memory SQLite
// database for one test.
func setupTestDB(t *testing.T) {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db.DB = gdb
	require.NoError(t, db.MigrateDatabase())

	t.Cleanup(func() {
		sqlDB.Close()
		db.DB = nil
	})
}

func createUser(t *testing.T, firstName, lastName string) models.User {
	t.Helper()

	user := models.User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        strings.ToLower(firstName + "." + lastName + "@example.com"),
		PasswordHash: "hashed",
		Role:         models.GlobalRoleUser,
	}
	require.NoError(t, db.DB.Create(&user).Error)

	return user
}

func createAdmin(t *testing.T, firstName, lastName string) models.User {
	t.Helper()

	admin := createUser(t, firstName, lastName)
	require.NoError(t, db.DB.Model(&admin).Update("role", models.GlobalRoleAdmin).Error)
	admin.Role = models.GlobalRoleAdmin

	return admin
}

func createProject(t *testing.T, name string) models.Project {
	t.Helper()

	project := models.Project{Name: name, Description: "test project"}
	require.NoError(t, db.DB.Create(&project).Error)

	return project
}

func addMembership(t *testing.T, user models.User, project models.Project, role models.ProjectRole) {
	t.Helper()

	membership := models.ProjectMembership{
		UserID:    user.ID,
		ProjectID: project.ID,
		Role:      role,
	}
	require.NoError(t, db.DB.Create(&membership).Error)
}

func createVuln(t *testing.T, project models.Project, title string, status models.VulnStatus) models.Vulnerability {
	t.Helper()

	vuln := models.Vulnerability{
		ProjectID: project.ID,
		Title:     title,
		Severity:  models.SeverityHigh,
		Status:    status,
	}
	require.NoError(t, db.DB.Create(&vuln).Error)

	return vuln
}

func addLinkRow(t *testing.T, user models.User, vuln models.Vulnerability, role models.VulnRole) {
	t.Helper()

	link := models.VulnerabilityAssignment{
		UserID:          user.ID,
		VulnerabilityID: vuln.ID,
		Role:            role,
	}
	require.NoError(t, db.DB.Create(&link).Error)
}

func asActor(user models.User) middleware.AuthenticatedUser {
	return middleware.AuthenticatedUser{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Role:      user.Role,
	}
}

func currentRole(t *testing.T, user models.User, project models.Project) models.ProjectRole {
	t.Helper()

	var membership models.ProjectMembership
	require.NoError(t, db.DB.Where("user_id = ? AND project_id = ?", user.ID, project.ID).First(&membership).Error)

	return membership.Role
}

func currentStatus(t *testing.T, vuln models.Vulnerability) models.VulnStatus {
	t.Helper()

	var refreshed models.Vulnerability
	require.NoError(t, db.DB.First(&refreshed, vuln.ID).Error)

	return refreshed.Status
}

func linkCount(t *testing.T, user models.User, vuln models.Vulnerability, role models.VulnRole) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.DB.Model(&models.VulnerabilityAssignment{}).
		Where("user_id = ? AND vulnerability_id = ? AND role = ?", user.ID, vuln.ID, role).
		Count(&count).Error)

	return count
}
