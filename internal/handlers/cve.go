package handlers

import (
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/brentcodes/clamped/internal/services"
	"github.com/gin-gonic/gin"
)

var cveIDPattern = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// LookupCve proxies a CVE identifier to the NVD API, serving cached results
// when available.
func LookupCve(ctx *gin.Context) {
	cveID := strings.ToUpper(strings.TrimSpace(ctx.Param("cve_id")))

	if !cveIDPattern.MatchString(cveID) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid CVE ID format, expected CVE-YYYY-NNNN"})
		return
	}

	details, err := services.LookupCve(ctx.Request.Context(), cveID)

	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "CVE not found: " + cveID})
			return
		}
		log.Printf("CVE lookup failed for %s: %v", cveID, err)
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "Failed to reach the CVE database"})
		return
	}

	ctx.JSON(http.StatusOK, details)
}
