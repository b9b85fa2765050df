package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/similarity"
)

// Verdict is the model's opinion on one similarity match.
type Verdict struct {
	IssueID    string  `json:"issue_id"`
	Duplicate  bool    `json:"duplicate"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type completer interface {
	complete(ctx context.Context, system, user string, maxTokens int64) (string, error)
}

type anthropicCompleter struct {
	api   *anthropic.Client
	model anthropic.Model
}

func (a *anthropicCompleter) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in API response")
}

// Client reviews duplicate candidates with the Anthropic API.
type Client struct {
	c completer
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{c: &anthropicCompleter{
		api:   &client,
		model: anthropic.Model(model),
	}}
}

// buildReviewPrompt constructs the system and user prompts for duplicate review.
func buildReviewPrompt(candidate models.Candidate, matches []similarity.Match) (system string, user string) {
	system = `You review possible duplicate issues in an issue tracker. You are given a NEW issue and a list of EXISTING issues that a word-overlap check flagged as similar. For each existing issue decide whether it describes the same problem or request as the new one.

Return ONLY a JSON array with one object per existing issue:
- "issue_id": the id of the existing issue, exactly as given
- "duplicate": true if it is the same problem or request, false otherwise
- "confidence": a number between 0 and 1
- "reason": one short sentence explaining the decision

Rules:
- Shared vocabulary alone does not make a duplicate; the underlying problem must match
- Do not invent ids; only use ids from the list
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("NEW issue\n")
	fmt.Fprintf(&sb, "Title: %s\n", candidate.Title)
	if candidate.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", candidate.Description)
	}
	sb.WriteString("\nEXISTING issues\n")
	for _, m := range matches {
		if m.Issue == nil {
			continue
		}
		fmt.Fprintf(&sb, "\nid: %s (word overlap %d%%, status %s)\n", m.Issue.ID, similarity.Percent(m.Score), m.Issue.Status.Label())
		fmt.Fprintf(&sb, "Title: %s\n", m.Issue.Title)
		if m.Issue.Description != "" {
			fmt.Fprintf(&sb, "Description: %s\n", m.Issue.Description)
		}
	}
	user = sb.String()
	return
}

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// parseVerdicts decodes the model response, keeping only verdicts for known
// match ids in match order.
func parseVerdicts(text string, matches []similarity.Match) ([]Verdict, error) {
	text = stripFence(text)

	var raw []Verdict
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	byID := make(map[string]Verdict, len(raw))
	for _, v := range raw {
		if _, seen := byID[v.IssueID]; !seen {
			byID[v.IssueID] = v
		}
	}

	verdicts := make([]Verdict, 0, len(matches))
	for _, m := range matches {
		if m.Issue == nil {
			continue
		}
		v, ok := byID[m.Issue.ID]
		if !ok {
			continue
		}
		v.Confidence = min(max(v.Confidence, 0), 1)
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}

// ReviewDuplicates asks the model which matches are real duplicates of
// candidate. No matches means no API call.
func (c *Client) ReviewDuplicates(ctx context.Context, candidate models.Candidate, matches []similarity.Match) ([]Verdict, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	systemPrompt, userPrompt := buildReviewPrompt(candidate, matches)
	text, err := c.c.complete(ctx, systemPrompt, userPrompt, 2048)
	if err != nil {
		return nil, err
	}
	return parseVerdicts(text, matches)
}
