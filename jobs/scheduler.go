/*
scheduler.go - Cron wiring for recurring jobs

PURPOSE:
  Schedules the daily reminder and monthly report on a robfig/cron
  runner. The schedule strings are configurable so deployments can
  shift jobs to their quiet hours.

SEE ALSO:
  - reports.go: The jobs being scheduled
*/
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Default schedules: reminders at 18:00 UTC daily, reports on the
// first of each month at 06:00 UTC.
const (
	DefaultReminderSchedule = "0 18 * * *"
	DefaultReportSchedule   = "0 6 1 * *"
)

// Scheduler runs the recurring jobs.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.SugaredLogger
}

// NewScheduler registers the reporter's jobs on the given schedules
// and returns an unstarted scheduler.
func NewScheduler(reporter *Reporter, reminderSchedule, reportSchedule string, log *zap.SugaredLogger) (*Scheduler, error) {
	c := cron.New()

	if _, err := c.AddFunc(reminderSchedule, func() {
		if err := reporter.SendDailyReminders(context.Background()); err != nil {
			log.Errorw("daily reminder job failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(reportSchedule, func() {
		if err := reporter.SendMonthlyReports(context.Background()); err != nil {
			log.Errorw("monthly report job failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infow("job scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Infow("job scheduler stopped")
}
