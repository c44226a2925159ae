package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/brentcodes/clamped/db"
	"github.com/go-resty/resty/v2"
)

const (
	nvdBaseURL  = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	cveCacheTTL = 24 * time.Hour
)

var cveClient = resty.New().
	SetBaseURL(nvdBaseURL).
	SetTimeout(10 * time.Second)

type CveDetails struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	CvssScore    *float64 `json:"cvss_score,omitempty"`
	CvssVector   string   `json:"cvss_vector,omitempty"`
	Severity     string   `json:"severity,omitempty"`
	Published    string   `json:"published,omitempty"`
	LastModified string   `json:"last_modified,omitempty"`
}

type nvdResponse struct {
	Vulnerabilities []struct {
		Cve nvdCveItem `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdCveItem struct {
	ID           string `json:"id"`
	Published    string `json:"published"`
	LastModified string `json:"lastModified"`
	Descriptions []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"descriptions"`
	Metrics struct {
		CvssMetricV31 []nvdCvssMetric `json:"cvssMetricV31"`
		CvssMetricV30 []nvdCvssMetric `json:"cvssMetricV30"`
		CvssMetricV2  []nvdCvssMetric `json:"cvssMetricV2"`
	} `json:"metrics"`
}

type nvdCvssMetric struct {
	CvssData struct {
		BaseScore    float64 `json:"baseScore"`
		VectorString string  `json:"vectorString"`
		BaseSeverity string  `json:"baseSeverity"`
	} `json:"cvssData"`
	BaseSeverity string `json:"baseSeverity"`
}

// LookupCve fetches CVE details from the NVD API, answering from the redis
// cache when a fresh entry exists.
func LookupCve(ctx context.Context, cveID string) (*CveDetails, error) {
	cacheKey := "cve:" + cveID

	if db.RDB != nil {
		if cached, err := db.RDB.Get(ctx, cacheKey).Result(); err == nil {
			var details CveDetails
			if err := json.Unmarshal([]byte(cached), &details); err == nil {
				return &details, nil
			}
		}
	}

	var response nvdResponse

	resp, err := cveClient.R().
		SetContext(ctx).
		SetQueryParam("cveId", cveID).
		SetResult(&response).
		Get("")

	if err != nil {
		return nil, fmt.Errorf("failed to contact NVD API: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("NVD API returned status %d", resp.StatusCode())
	}

	if len(response.Vulnerabilities) == 0 {
		return nil, ErrNotFound
	}

	item := response.Vulnerabilities[0].Cve

	details := &CveDetails{
		ID:           item.ID,
		Published:    item.Published,
		LastModified: item.LastModified,
	}

	for _, description := range item.Descriptions {
		if description.Lang == "en" {
			details.Description = description.Value
			break
		}
	}

	// Prefer CVSS v3.1, then v3.0, then v2.
	metrics := item.Metrics.CvssMetricV31

	if len(metrics) == 0 {
		metrics = item.Metrics.CvssMetricV30
	}

	if len(metrics) == 0 {
		metrics = item.Metrics.CvssMetricV2
	}

	if len(metrics) > 0 {
		metric := metrics[0]
		score := metric.CvssData.BaseScore

		details.CvssScore = &score
		details.CvssVector = metric.CvssData.VectorString
		details.Severity = metric.CvssData.BaseSeverity

		if details.Severity == "" {
			details.Severity = metric.BaseSeverity
		}
	}

	if db.RDB != nil {
		if encoded, err := json.Marshal(details); err == nil {
			if err := db.RDB.Set(ctx, cacheKey, encoded, cveCacheTTL).Err(); err != nil {
				log.Printf("Failed to cache CVE %s: %v", cveID, err)
			}
		}
	}

	return details, nil
}
