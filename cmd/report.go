package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

var (
	reportFormat   string
	exportStatus   string
	exportPriority string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues as JSON, CSV, or Markdown",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(cmd.Context())
	},
}

func init() {
	exportCmd.Flags().StringVar(&reportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Filter by status: open, in_progress, done")
	exportCmd.Flags().StringVar(&exportPriority, "priority", "", "Filter by priority: low, medium, high")
	rootCmd.AddCommand(exportCmd)
}

func exportRun(ctx context.Context) error {
	switch reportFormat {
	case "json", "csv", "markdown":
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", reportFormat)
	}

	var filter store.IssueListFilter
	var err error
	if exportStatus != "" {
		if filter.Status, err = models.ParseIssueStatus(exportStatus); err != nil {
			return err
		}
	}
	if exportPriority != "" {
		if filter.Priority, err = models.ParseIssuePriority(exportPriority); err != nil {
			return err
		}
	}

	svc, err := getService()
	if err != nil {
		return err
	}
	user, err := currentUser()
	if err != nil {
		return err
	}
	issues, err := svc.List(ctx, user, filter)
	if err != nil {
		return err
	}
	return writeIssues(issues)
}

func writeIssues(issues []*models.Issue) error {
	switch reportFormat {
	case "json":
		if issues == nil {
			issues = []*models.Issue{}
		}
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(issues)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Title", "Description", "Status", "Priority", "AssignedTo", "CreatedBy", "Created"})
		for _, i := range issues {
			_ = w.Write([]string{i.ID, i.Title, i.Description, string(i.Status), string(i.Priority),
				i.AssignedTo, i.CreatedBy, i.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")})
		}
		w.Flush()
		return w.Error()
	default:
		fmt.Fprintln(ui.Out, "# Issues")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Title | Status | Priority | Assigned |")
		fmt.Fprintln(ui.Out, "|-------|--------|----------|----------|")
		for _, i := range issues {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n", markdownCell(i.Title), i.Status.Label(), i.Priority.Label(), markdownCell(i.AssignedTo))
		}
		return nil
	}
}

func markdownCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
