// ABOUTME: Watch command that prints notifications as they arrive
// ABOUTME: Streams the reconciler queue to stdout until interrupted
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/harperreed/pipedash/dashboard"
	"github.com/harperreed/pipedash/models"
)

// WatchCommand prints each notification the dashboard queues, newest last,
// until ctx is cancelled.
func WatchCommand(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(out)
	asJSON := fs.Bool("json", false, "Print one JSON object per line")
	history := fs.Bool("history", false, "Print queued notifications first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lines := make(chan models.Notification, 64)
	unsub := d.Reconciler().Subscribe(func(n models.Notification) {
		select {
		case lines <- n:
		default:
		}
	})
	defer unsub()

	if *history {
		queue := d.Notifications()
		for i := len(queue) - 1; i >= 0; i-- {
			if err := printNotification(queue[i], *asJSON); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-lines:
			if err := printNotification(n, *asJSON); err != nil {
				return err
			}
		}
	}
}

func printNotification(n models.Notification, asJSON bool) error {
	if asJSON {
		raw, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to encode notification: %w", err)
		}
		_, err = fmt.Fprintln(out, string(raw))
		return err
	}

	marker := "•"
	switch n.Severity {
	case models.SeverityError:
		marker = "✗"
	case models.SeveritySuccess:
		marker = "✓"
	}
	_, err := fmt.Fprintf(out, "%s %s [%s] %s\n",
		n.CreatedAt.Local().Format("15:04:05"), marker, strings.ToUpper(string(n.Source)), n.Message)
	return err
}
