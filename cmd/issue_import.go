package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/issueboard/internal/lifecycle"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/output"
	"github.com/joescharf/issueboard/internal/similarity"
)

var (
	importAssignee string
	importDryRun   bool
	importForce    bool
)

var issueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import issues from a markdown file",
	Long: `Import issues from a markdown file.

Each numbered or bulleted list item becomes an issue. Items can be grouped
under "## Assignee <name>" headings; otherwise --assignee is used.
Priority is inferred from keywords in the title.

Items that look like duplicates of existing issues are skipped unless
--force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(cmd.Context(), args[0])
	},
}

func init() {
	issueImportCmd.Flags().StringVar(&importAssignee, "assignee", "", "Assign issues without an Assignee heading to this person")
	issueImportCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview parsed issues without creating them")
	issueImportCmd.Flags().BoolVar(&importForce, "force", false, "Create items even if similar issues exist")
	issueCmd.AddCommand(issueImportCmd)
}

// importItem is one issue parsed from a markdown list.
type importItem struct {
	Assignee string
	Title    string
	Body     string
}

func (it importItem) candidate(defaultAssignee string) models.Candidate {
	assignee := it.Assignee
	if assignee == "" {
		assignee = defaultAssignee
	}
	return models.Candidate{
		Title:       it.Title,
		Description: it.Body,
		Priority:    classifyIssuePriority(it.Title),
		AssignedTo:  assignee,
	}
}

func issueImportRun(ctx context.Context, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}

	items := parseMarkdownIssues(content)
	if len(items) == 0 {
		ui.Info("No issues found in file.")
		return nil
	}

	table := ui.Table([]string{"#", "Assigned", "Title", "Priority"})
	for i, it := range items {
		c := it.candidate(importAssignee)
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			c.AssignedTo,
			c.Title,
			output.PriorityColor(c.Priority),
		})
	}
	_ = table.Render()

	if importDryRun {
		ui.Info("Would import %d issues", len(items))
		return nil
	}

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
	return createImportedIssues(ctx, svc, user, items)
}

// parseSubIssueNumber checks if a line starts with a sub-issue number like "1.1" or "2.3."
// Returns the title text and true if it's a sub-issue, or empty and false otherwise.
func parseSubIssueNumber(line string) (title string, ok bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != '.' {
		return "", false
	}
	i++
	start := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == start {
		return "", false // "1. text" is a regular item
	}
	if i < len(line) && line[i] == '.' {
		i++
	}
	if i >= len(line) || line[i] != ' ' {
		return "", false
	}
	title = strings.TrimSpace(line[i:])
	if title == "" {
		return "", false
	}
	return title, true
}

// listItemTitle returns the text of a "1. text", "- text" or "* text" line.
func listItemTitle(line string) (title string, numbered bool) {
	if len(line) <= 2 {
		return "", false
	}
	for i, c := range line {
		if c == '.' && i > 0 && i < 4 {
			return strings.TrimSpace(line[i+1:]), true
		}
		if c < '0' || c > '9' {
			break
		}
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:]), false
	}
	return "", false
}

// parseMarkdownIssues extracts numbered and bulleted items. Sub-issues
// ("1.1 text") carry their parent line in the body.
func parseMarkdownIssues(content string) []importItem {
	var items []importItem
	assignee := ""
	lastParentLine := ""

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "## ") {
			heading := strings.TrimSpace(strings.TrimPrefix(line, "## "))
			if strings.HasPrefix(strings.ToLower(heading), "assignee ") {
				assignee = strings.TrimSpace(heading[len("assignee "):])
			}
			lastParentLine = ""
			continue
		}

		if subTitle, ok := parseSubIssueNumber(line); ok {
			body := line
			if lastParentLine != "" {
				body = lastParentLine + "\n" + line
			}
			items = append(items, importItem{Assignee: assignee, Title: subTitle, Body: body})
			continue
		}

		title, numbered := listItemTitle(line)
		if title == "" {
			continue
		}
		if numbered {
			lastParentLine = line
		}
		items = append(items, importItem{Assignee: assignee, Title: title, Body: line})
	}

	return items
}

// createImportedIssues creates each item through the duplicate check. Items
// already created earlier in the batch count as existing issues.
func createImportedIssues(ctx context.Context, svc *lifecycle.Service, user *models.User, items []importItem) error {
	created, skipped := 0, 0

	for _, it := range items {
		c := it.candidate(importAssignee)
		if err := svc.Validate(c); err != nil {
			ui.Warning("Skipping %q: %s", it.Title, friendlyError(err))
			skipped++
			continue
		}

		if !importForce {
			matches, err := svc.CheckDuplicates(ctx, user, c)
			if err != nil {
				return err
			}
			if len(matches) > 0 {
				best := matches[0]
				ui.Warning("Skipping %q: %d%% similar to %s %q", it.Title,
					similarity.Percent(best.Score), shortID(best.Issue.ID), best.Issue.Title)
				skipped++
				continue
			}
		}

		if _, err := svc.Create(ctx, user, c); err != nil {
			ui.Warning("Failed to create %q: %s", it.Title, friendlyError(err))
			skipped++
			continue
		}
		created++
	}

	ui.Success("Created %d issues", created)
	if skipped > 0 {
		ui.Warning("Skipped %d issues", skipped)
	}
	return nil
}
