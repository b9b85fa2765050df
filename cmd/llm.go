package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/issueboard/internal/llm"
	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/output"
	"github.com/joescharf/issueboard/internal/similarity"
)

var errNoAPIKey = errors.New("no Anthropic API key: set anthropic.api_key or ANTHROPIC_API_KEY")

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

// reviewer is swapped in tests.
var reviewer = func() (duplicateReviewer, error) {
	c := newLLMClient()
	if c == nil {
		return nil, errNoAPIKey
	}
	return c, nil
}

type duplicateReviewer interface {
	ReviewDuplicates(ctx context.Context, candidate models.Candidate, matches []similarity.Match) ([]llm.Verdict, error)
}

func reviewMatches(ctx context.Context, candidate models.Candidate, matches []similarity.Match) error {
	r, err := reviewer()
	if err != nil {
		return err
	}
	ui.VerboseLog("Asking %s to review %d match(es)", viper.GetString("anthropic.model"), len(matches))

	verdicts, err := r.ReviewDuplicates(ctx, candidate, matches)
	if err != nil {
		return fmt.Errorf("review duplicates: %w", err)
	}
	if len(verdicts) == 0 {
		ui.Info("No review returned.")
		return nil
	}

	table := ui.Table([]string{"ID", "Verdict", "Confidence", "Reason"})
	for _, v := range verdicts {
		verdict := output.Green("distinct")
		if v.Duplicate {
			verdict = output.Red("duplicate")
		}
		_ = table.Append([]string{
			shortID(v.IssueID),
			verdict,
			fmt.Sprintf("%.0f%%", v.Confidence*100),
			v.Reason,
		})
	}
	_ = table.Render()
	return nil
}
