/*
notifier.go - Outbound notification seam for background jobs

PURPOSE:
  Jobs produce reminders and reports addressed to users. How they are
  delivered (email, chat webhook, SMS) is a deployment concern, so
  jobs only speak to this interface. The default implementation logs
  the message, which is enough for development and for deployments
  that scrape logs into a delivery pipeline.

SEE ALSO:
  - reports.go: Producers of reminder and report messages
*/
package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/openlot/parking-engine/parking"
)

// Notifier delivers a message to a user.
type Notifier interface {
	Notify(ctx context.Context, user parking.User, subject, body string) error
}

// LogNotifier writes notifications to the structured log instead of
// delivering them.
type LogNotifier struct {
	log *zap.SugaredLogger
}

// NewLogNotifier creates a notifier backed by the given logger.
func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, user parking.User, subject, body string) error {
	n.log.Infow("notification",
		"user_id", string(user.ID),
		"email", user.Email,
		"subject", subject,
		"body", body,
	)
	return nil
}
