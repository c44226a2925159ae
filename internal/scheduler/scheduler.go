package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/brentcodes/clamped/db"
	"github.com/brentcodes/clamped/internal/models"
	"github.com/brentcodes/clamped/internal/services"
)

// Scheduler periodically sweeps for vulnerabilities that are due soon or
// overdue and notifies their assignees.
type Scheduler struct {
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

const (
	defaultSweepInterval = time.Hour
	dueSoonWindow        = 24 * time.Hour
)

// NewScheduler initializes a new Scheduler instance
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		interval: defaultSweepInterval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the periodic due-date sweep with an immediate first pass.
func (s *Scheduler) Start() {
	log.Println("Starting due-date scheduler...")

	go func() {
		s.sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop gracefully shuts down the sweep loop
func (s *Scheduler) Stop() {
	log.Println("Stopping due-date scheduler...")
	s.cancel()
}

func (s *Scheduler) sweep() {
	now := time.Now()
	cutoff := now.Add(dueSoonWindow)

	var vulns []models.Vulnerability

	err := db.DB.
		Where("due_at IS NOT NULL AND due_at <= ? AND status <> ?", cutoff, models.StatusVerified).
		Find(&vulns).Error

	if err != nil {
		log.Printf("Due-date sweep failed: %v", err)
		return
	}

	// TODO: record the last reminder per vulnerability so repeated sweeps
	// don't renotify the same assignees every hour.
	for i := range vulns {
		vuln := vulns[i]

		var assigneeIDs []uint

		err := db.DB.Model(&models.VulnerabilityAssignment{}).
			Where("vulnerability_id = ? AND role = ?", vuln.ID, models.VulnRoleAssignee).
			Pluck("user_id", &assigneeIDs).Error

		if err != nil {
			log.Printf("Failed to load assignees for vulnerability %d: %v", vuln.ID, err)
			continue
		}

		if len(assigneeIDs) == 0 {
			continue
		}

		message := fmt.Sprintf("%q is due %s.", vuln.Title, vuln.DueAt.Format("2006-01-02"))

		if vuln.DueAt.Before(now) {
			message = fmt.Sprintf("%q is overdue (due %s).", vuln.Title, vuln.DueAt.Format("2006-01-02"))
		}

		pid := vuln.ProjectID
		vid := vuln.ID

		services.Dispatch([]services.Event{{
			Recipients: assigneeIDs,
			Type:       models.NotifyVulnStatusChanged,
			Message:    message,
			ProjectID:  &pid,
			VulnID:     &vid,
		}})
	}

	log.Printf("Due-date sweep completed, %d vulnerabilities checked", len(vulns))
}
