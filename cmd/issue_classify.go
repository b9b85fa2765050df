package cmd

import (
	"strings"

	"github.com/joescharf/issueboard/internal/models"
)

var (
	highPriorityKeywords = []string{
		"critical", "urgent", "blocker", "crash", "security",
		"data loss", "production down", "p0", "p1",
	}
	lowPriorityKeywords = []string{
		"minor", "nice to have", "cosmetic", "trivial",
		"low priority", "cleanup", "clean up",
	}
)

// classifyIssuePriority infers a priority from the title using keywords.
// High keywords win over low ones. Defaults to medium.
func classifyIssuePriority(title string) models.IssuePriority {
	lower := strings.ToLower(title)
	for _, kw := range highPriorityKeywords {
		if strings.Contains(lower, kw) {
			return models.IssuePriorityHigh
		}
	}
	for _, kw := range lowPriorityKeywords {
		if strings.Contains(lower, kw) {
			return models.IssuePriorityLow
		}
	}
	return models.IssuePriorityMedium
}
