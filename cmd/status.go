package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/output"
	"github.com/joescharf/issueboard/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show issue counts by assignee",
	Long: `Show an overview of tracked issues: open, in progress and done
counts per assignee with the age of the oldest unfinished issue.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusOverviewRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// issueCounts tallies issues by status.
type issueCounts struct {
	Open, InProgress, Done int
	OldestPending          time.Time
}

func (c *issueCounts) add(issue *models.Issue) {
	switch issue.Status {
	case models.IssueStatusOpen:
		c.Open++
	case models.IssueStatusInProgress:
		c.InProgress++
	case models.IssueStatusDone:
		c.Done++
	}
	if issue.Status != models.IssueStatusDone && (c.OldestPending.IsZero() || issue.CreatedAt.Before(c.OldestPending)) {
		c.OldestPending = issue.CreatedAt
	}
}

// countByAssignee groups issues by assignee; the returned names are sorted.
func countByAssignee(issues []*models.Issue) (map[string]*issueCounts, []string) {
	counts := make(map[string]*issueCounts)
	var names []string
	for _, issue := range issues {
		c, ok := counts[issue.AssignedTo]
		if !ok {
			c = &issueCounts{}
			counts[issue.AssignedTo] = c
			names = append(names, issue.AssignedTo)
		}
		c.add(issue)
	}
	sort.Strings(names)
	return counts, names
}

func statusOverviewRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	user, err := currentUser()
	if err != nil {
		return err
	}

	issues, err := svc.List(ctx, user, store.IssueListFilter{})
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		ui.Info("No issues tracked. Use 'issueboard issue add' to get started.")
		return nil
	}

	counts, names := countByAssignee(issues)
	total := &issueCounts{}
	for _, issue := range issues {
		total.add(issue)
	}

	table := ui.Table([]string{"Assigned", "Open", "In Progress", "Done", "Oldest Pending"})
	for _, name := range names {
		c := counts[name]
		_ = table.Append(statusRow(output.Cyan(name), c))
	}
	_ = table.Append(statusRow(output.Bold("total"), total))
	_ = table.Render()
	return nil
}

func statusRow(label string, c *issueCounts) []string {
	oldest := "-"
	if !c.OldestPending.IsZero() {
		oldest = timeAgo(c.OldestPending)
	}
	return []string{
		label,
		fmt.Sprintf("%d", c.Open),
		fmt.Sprintf("%d", c.InProgress),
		fmt.Sprintf("%d", c.Done),
		oldest,
	}
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
