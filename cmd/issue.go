package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issueboard/internal/lifecycle"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/output"
	"github.com/joescharf/issueboard/internal/similarity"
	"github.com/joescharf/issueboard/internal/store"
)

var (
	issueTitle    string
	issueDesc     string
	issuePriority string
	issueAssignee string
	issueYes      bool
	issueReview   bool

	listStatus   string
	listPriority string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Create, list and move issues",
	Long:  "Track issues. New issues are checked for likely duplicates before they are created.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new issue",
	Long: `Add a new issue. Existing issues with similar titles and descriptions
are shown first and you are asked whether to create anyway.
Missing fields are prompted for.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context())
	},
}

var issueCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Show existing issues similar to a proposed one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCheckRun(cmd.Context())
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0])
	},
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id> <status>",
	Short: "Move an issue to open, in_progress or done",
	Long: `Move an issue to a new status. Open issues must be moved to
in_progress before they can be done.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatusRun(cmd.Context(), args[0], args[1])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(cmd.Context(), args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "medium", "Priority: low, medium, high")
	issueAddCmd.Flags().StringVar(&issueAssignee, "assignee", "", "Who the issue is assigned to")
	issueAddCmd.Flags().BoolVarP(&issueYes, "yes", "y", false, "Create even if similar issues exist")

	issueCheckCmd.Flags().StringVar(&issueTitle, "title", "", "Proposed title (required)")
	issueCheckCmd.Flags().StringVar(&issueDesc, "desc", "", "Proposed description")
	issueCheckCmd.Flags().BoolVar(&issueReview, "review", false, "Ask the Anthropic API which matches are real duplicates")
	_ = issueCheckCmd.MarkFlagRequired("title")

	issueListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status: open, in_progress, done")
	issueListCmd.Flags().StringVar(&listPriority, "priority", "", "Filter by priority: low, medium, high")

	issueDeleteCmd.Flags().BoolVarP(&issueYes, "yes", "y", false, "Skip the confirmation prompt")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueCheckCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

// currentUser returns the signed-in user, nil when signed out.
func currentUser() (*models.User, error) {
	sess, err := getSession()
	if err != nil {
		return nil, err
	}
	return sess.CurrentUser(), nil
}

func promptIfEmpty(value *string, label string) error {
	if strings.TrimSpace(*value) != "" {
		return nil
	}
	v, err := ui.Prompt(label)
	if err != nil {
		return fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	*value = v
	return nil
}

func issueAddRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	user, err := currentUser()
	if err != nil {
		return err
	}
	if user == nil {
		return lifecycle.ErrUnauthenticated
	}

	priority, err := models.ParseIssuePriority(issuePriority)
	if err != nil {
		return err
	}
	for _, f := range []struct {
		value *string
		label string
	}{
		{&issueTitle, "Title"},
		{&issueDesc, "Description"},
		{&issueAssignee, "Assigned to"},
	} {
		if err := promptIfEmpty(f.value, f.label); err != nil {
			return err
		}
	}

	draft := lifecycle.NewDraft(svc)
	draft.SetForm(models.Candidate{
		Title:       issueTitle,
		Description: issueDesc,
		Priority:    priority,
		AssignedTo:  issueAssignee,
	})

	res, err := draft.Submit(ctx, user)
	if err != nil {
		return err
	}
	if !res.Created() {
		ui.Warning("Found %d similar issue(s):", len(res.Matches))
		printMatches(res.Matches)

		confirmed := issueYes
		if !confirmed {
			if confirmed, err = ui.Confirm("Create anyway?"); err != nil {
				return err
			}
		}
		if !confirmed {
			draft.Dismiss()
			ui.Info("Not created.")
			return nil
		}
		if res, err = draft.Submit(ctx, user); err != nil {
			return err
		}
	}

	ui.Success("Created issue %s: %s", output.Cyan(shortID(res.Issue.ID)), res.Issue.Title)
	return nil
}

// printMatches shows the top matches with their similarity.
func printMatches(matches []similarity.Match) {
	shown := similarity.Top(matches, viper.GetInt("duplicates.max_shown"))
	table := ui.Table([]string{"ID", "Match", "Title", "Status"})
	for _, m := range shown {
		_ = table.Append([]string{
			shortID(m.Issue.ID),
			output.ScoreColor(similarity.Percent(m.Score)),
			m.Issue.Title,
			output.StatusColor(m.Issue.Status),
		})
	}
	_ = table.Render()
	if hidden := len(matches) - len(shown); hidden > 0 {
		ui.Info("...and %d more", hidden)
	}
}

func issueCheckRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	user, err := currentUser()
	if err != nil {
		return err
	}

	candidate := models.Candidate{Title: issueTitle, Description: issueDesc}
	matches, err := svc.CheckDuplicates(ctx, user, candidate)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		ui.Success("No similar issues found.")
		return nil
	}

	ui.Warning("Found %d similar issue(s):", len(matches))
	printMatches(matches)

	if issueReview {
		return reviewMatches(ctx, candidate, similarity.Top(matches, viper.GetInt("duplicates.max_shown")))
	}
	return nil
}

func issueListRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	user, err := currentUser()
	if err != nil {
		return err
	}

	var filter store.IssueListFilter
	if listStatus != "" {
		if filter.Status, err = models.ParseIssueStatus(listStatus); err != nil {
			return err
		}
	}
	if listPriority != "" {
		if filter.Priority, err = models.ParseIssuePriority(listPriority); err != nil {
			return err
		}
	}

	issues, err := svc.List(ctx, user, filter)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Assigned", "Created"})
	for _, issue := range issues {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			output.StatusColor(issue.Status),
			output.PriorityColor(issue.Priority),
			issue.AssignedTo,
			issue.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(ctx context.Context, id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	user, err := currentUser()
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, svc, user, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), output.Bold(issue.Title))
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(issue.Status))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(issue.Priority))
	fmt.Fprintf(ui.Out, "  Assigned:   %s\n", issue.AssignedTo)
	fmt.Fprintf(ui.Out, "  Created by: %s\n", issue.CreatedBy)
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)
	return nil
}

func issueStatusRun(ctx context.Context, id, status string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	user, err := currentUser()
	if err != nil {
		return err
	}

	to, err := models.ParseIssueStatus(status)
	if err != nil {
		return err
	}
	issue, err := findIssue(ctx, svc, user, id)
	if err != nil {
		return err
	}
	from := issue.Status
	if err := svc.ChangeStatus(ctx, user, issue, to); err != nil {
		return err
	}

	ui.Success("Issue %s: %s → %s", output.Cyan(shortID(issue.ID)), from.Label(), output.StatusColor(issue.Status))
	return nil
}

func issueDeleteRun(ctx context.Context, id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	user, err := currentUser()
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, svc, user, id)
	if err != nil {
		return err
	}
	if !issueYes {
		ok, err := ui.Confirm(fmt.Sprintf("Delete issue %s %q?", shortID(issue.ID), issue.Title))
		if err != nil {
			return err
		}
		if !ok {
			ui.Info("Not deleted.")
			return nil
		}
	}
	if err := svc.Delete(ctx, user, issue.ID); err != nil {
		return err
	}
	ui.Success("Deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

// findIssue finds an issue by full ID or unique prefix.
func findIssue(ctx context.Context, svc *lifecycle.Service, user *models.User, id string) (*models.Issue, error) {
	issue, err := svc.Get(ctx, user, id)
	if err == nil {
		return issue, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}

	upper := strings.ToUpper(id)
	issues, err := svc.List(ctx, user, store.IssueListFilter{})
	if err != nil {
		return nil, err
	}

	var matches []*models.Issue
	for _, issue := range issues {
		if strings.HasPrefix(issue.ID, upper) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, store.Wrap("find issue", fmt.Errorf("issue %s: %w", id, store.ErrNotFound))
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous issue ID %s: matches %d issues", id, len(matches))
	}
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
