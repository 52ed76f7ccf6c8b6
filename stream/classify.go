// ABOUTME: Severity classification for stream events
// ABOUTME: Prefers the explicit severity field and falls back to matching the event type

package stream

import (
	"strings"

	"github.com/harperreed/pipedash/models"
)

var (
	errorHints   = []string{"error", "fail", "reject", "denied", "expired", "lost"}
	successHints = []string{"success", "succeed", "created", "complete", "done", "won", "closed", "paid"}
)

// Classify returns the toast severity for ev.
func Classify(ev models.StreamEvent) models.Severity {
	switch models.Severity(strings.ToLower(string(ev.Severity))) {
	case models.SeverityError:
		return models.SeverityError
	case models.SeveritySuccess:
		return models.SeveritySuccess
	case models.SeverityInfo:
		return models.SeverityInfo
	}

	t := strings.ToLower(ev.Type)
	for _, h := range errorHints {
		if strings.Contains(t, h) {
			return models.SeverityError
		}
	}
	for _, h := range successHints {
		if strings.Contains(t, h) {
			return models.SeveritySuccess
		}
	}
	return models.SeverityInfo
}
