package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/issueboard/internal/models"
)

// UI provides colored output, prompts and a verbose mode.
type UI struct {
	Verbose bool
	In      io.Reader
	Out     io.Writer
	ErrOut  io.Writer

	reader *bufio.Reader
}

// New creates a UI with default stdin/stdout/stderr.
func New() *UI {
	return &UI{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
	bold          = color.New(color.Bold).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// Bold returns a bold string.
func Bold(s string) string { return bold(s) }

// StatusColor returns the status label colored by status.
func StatusColor(status models.IssueStatus) string {
	label := status.Label()
	switch status {
	case models.IssueStatusOpen:
		return green(label)
	case models.IssueStatusInProgress:
		return yellow(label)
	case models.IssueStatusDone:
		return cyan(label)
	default:
		return label
	}
}

// PriorityColor returns the priority label colored by urgency.
func PriorityColor(p models.IssuePriority) string {
	label := p.Label()
	switch p {
	case models.IssuePriorityHigh:
		return red(label)
	case models.IssuePriorityMedium:
		return yellow(label)
	case models.IssuePriorityLow:
		return green(label)
	default:
		return label
	}
}

// ScoreColor renders a similarity percentage, hotter for closer matches.
func ScoreColor(percent int) string {
	s := fmt.Sprintf("%d%%", percent)
	switch {
	case percent >= 80:
		return red(s)
	case percent >= 60:
		return yellow(s)
	default:
		return s
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

// Prompt writes label and reads one trimmed line of input.
func (u *UI) Prompt(label string) (string, error) {
	fmt.Fprintf(u.Out, "%s: ", label)
	if u.reader == nil {
		in := u.In
		if in == nil {
			in = os.Stdin
		}
		u.reader = bufio.NewReader(in)
	}
	line, err := u.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (u *UI) Confirm(question string) (bool, error) {
	answer, err := u.Prompt(question + " [y/N]")
	if err != nil {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}
