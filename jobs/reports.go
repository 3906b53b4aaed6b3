/*
reports.go - Scheduled reminder and report jobs

PURPOSE:
  Two recurring jobs, both addressed through the Notifier seam:

  Daily reminder:
    Users who still hold an open reservation get a reminder listing
    the running duration per vehicle, so nobody forgets a parked car.

  Monthly report:
    Every user with activity in the previous calendar month receives
    a summary: number of reservations, total amount spent, and their
    most used lot.

SEE ALSO:
  - notifier.go: Delivery seam
  - scheduler.go: Cron wiring
*/
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openlot/parking-engine/parking"
)

// Reporter produces the scheduled reminder and report notifications.
type Reporter struct {
	store    parking.Store
	notifier Notifier
	log      *zap.SugaredLogger

	now func() time.Time
}

// NewReporter creates a reporter.
func NewReporter(store parking.Store, notifier Notifier, log *zap.SugaredLogger) *Reporter {
	return &Reporter{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the reporter's clock. For tests.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// SendDailyReminders notifies every user that still holds an open
// reservation.
func (r *Reporter) SendDailyReminders(ctx context.Context) error {
	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	sent := 0
	for _, u := range users {
		active, err := r.store.ActiveReservationsByUser(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("listing active reservations for %s: %w", u.ID, err)
		}
		if len(active) == 0 {
			continue
		}

		var lines []string
		for _, res := range active {
			hours := r.now().Sub(res.StartedAt).Hours()
			lines = append(lines, fmt.Sprintf("%s parked for %.1f hours", res.VehicleNumber, hours))
		}
		body := "You have open reservations:\n" + strings.Join(lines, "\n")
		if err := r.notifier.Notify(ctx, u, "Parking reminder", body); err != nil {
			r.log.Warnw("reminder delivery failed", "user_id", string(u.ID), "error", err)
			continue
		}
		sent++
	}
	r.log.Infow("daily reminders sent", "count", sent)
	return nil
}

// SendMonthlyReports emails each user a summary of the previous
// calendar month's completed reservations.
func (r *Reporter) SendMonthlyReports(ctx context.Context) error {
	monthEnd := r.now()
	monthStart := time.Date(monthEnd.Year(), monthEnd.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	sent := 0
	for _, u := range users {
		history, err := r.store.ReservationsByUser(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("listing reservations for %s: %w", u.ID, err)
		}

		summary := summarizeMonth(history, monthStart)
		if summary.Count == 0 {
			continue
		}

		body := fmt.Sprintf(
			"Your parking summary for %s:\nReservations: %d\nTotal spent: %s\nMost used lot: %s",
			monthStart.Format("January 2006"), summary.Count, summary.TotalSpent.StringFixed(2), r.lotName(ctx, summary.TopLot),
		)
		if err := r.notifier.Notify(ctx, u, "Monthly parking report", body); err != nil {
			r.log.Warnw("report delivery failed", "user_id", string(u.ID), "error", err)
			continue
		}
		sent++
	}
	r.log.Infow("monthly reports sent", "count", sent)
	return nil
}

// MonthSummary aggregates one user's month.
type MonthSummary struct {
	Count      int
	TotalSpent decimal.Decimal
	TopLot     parking.LotID
}

// summarizeMonth folds completed reservations that started inside the
// month beginning at monthStart.
func summarizeMonth(history []parking.Reservation, monthStart time.Time) MonthSummary {
	monthEnd := monthStart.AddDate(0, 1, 0)
	byLot := make(map[parking.LotID]int)
	summary := MonthSummary{TotalSpent: decimal.Zero}

	for _, res := range history {
		if res.StartedAt.Before(monthStart) || !res.StartedAt.Before(monthEnd) {
			continue
		}
		summary.Count++
		if res.Cost != nil {
			summary.TotalSpent = summary.TotalSpent.Add(*res.Cost)
		}
		byLot[res.LotID]++
		if byLot[res.LotID] > byLot[summary.TopLot] {
			summary.TopLot = res.LotID
		}
	}
	return summary
}

func (r *Reporter) lotName(ctx context.Context, id parking.LotID) string {
	lot, err := r.store.GetLot(ctx, id)
	if err != nil {
		return "Unknown"
	}
	return lot.Name
}
