package utils

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/brentcodes/clamped/internal/middleware"
	"github.com/brentcodes/clamped/internal/types"
	"github.com/gin-gonic/gin"
)

func GetCurrentUser(ctx *gin.Context) (middleware.AuthenticatedUser, error) {
	user, exists := ctx.Get(types.ContextUserKey)

	if !exists {
		return middleware.AuthenticatedUser{}, fmt.Errorf("User not authenticated")
	}

	authenticatedUser, ok := user.(middleware.AuthenticatedUser)

	if !ok {
		return middleware.AuthenticatedUser{}, fmt.Errorf("Invalid user type in context")
	}

	return authenticatedUser, nil
}

func GetCurrentUserID(ctx *gin.Context) (uint, error) {
	user, err := GetCurrentUser(ctx)

	if err != nil {
		return 0, err
	}

	return user.ID, nil
}

func GetProjectID(ctx *gin.Context) (uint, error) {
	projectIDStr := ctx.Param("project_id")

	if projectIDStr == "" {
		return 0, errors.New("Project ID not found")
	}

	projectID, err := strconv.ParseUint(projectIDStr, 10, 32)

	if err != nil {
		return 0, errors.New("Invalid Project ID")
	}

	return uint(projectID), nil
}

func GetVulnerabilityID(ctx *gin.Context) (uint, error) {
	vulnIDStr := ctx.Param("vuln_id")

	if vulnIDStr == "" {
		return 0, errors.New("Vulnerability ID not found")
	}

	vulnID, err := strconv.ParseUint(vulnIDStr, 10, 32)

	if err != nil {
		return 0, errors.New("Invalid Vulnerability ID")
	}

	return uint(vulnID), nil
}
