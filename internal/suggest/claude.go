package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const DefaultModel = "claude-sonnet-4-5-20250929"

// Claude asks the model to rank accounts for an item.
type Claude struct {
	Logger    *log.Logger
	Model     string
	MaxTokens int64

	client anthropic.Client
}

func NewClaude(apiKey, model string, logger *log.Logger) (*Claude, error) {
	if len(apiKey) == 0 {
		return nil, errors.New("ANTHROPIC_API_KEY not set. Please set it in the environment, .env or config.yaml")
	}
	if len(model) == 0 {
		model = DefaultModel
	}
	return &Claude{
		Logger:    logger,
		Model:     model,
		MaxTokens: 1024,
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

type claudeAnswer struct {
	Accounts []struct {
		Account    string  `json:"account"`
		Confidence float64 `json:"confidence"`
	} `json:"accounts"`
}

func (c *Claude) Suggest(ctx context.Context, item string, accounts []string) ([]Suggestion, error) {
	prompt := Prompt(item, accounts)
	if c.Logger != nil {
		c.Logger.Debug("asking claude", "model", c.Model, "item", item, "prompt_chars", len(prompt))
	}
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.Model),
		MaxTokens: c.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "claude API call failed")
	}
	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParseAnswer(text.String())
}

// Prompt builds the request for item given the known accounts.
func Prompt(item string, accounts []string) string {
	var b strings.Builder
	b.WriteString("You categorise purchases for a ledger-cli journal.\n")
	fmt.Fprintf(&b, "Pick up to %d accounts for the item %q, best first.\n", maxHits, item)
	if len(accounts) > 0 {
		b.WriteString("Prefer these existing accounts:\n")
		for _, a := range accounts {
			b.WriteString("- " + a + "\n")
		}
	}
	b.WriteString(`Answer with JSON only: {"accounts": [{"account": "...", "confidence": 0.0}]}`)
	return b.String()
}

// ParseAnswer reads the JSON object out of the model's reply, which may be
// wrapped in prose or a code fence.
func ParseAnswer(text string) ([]Suggestion, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, errors.Errorf("no JSON found in response: %s", text)
	}
	var ans claudeAnswer
	if err := json.Unmarshal([]byte(text[start:end+1]), &ans); err != nil {
		return nil, errors.Wrap(err, "failed to parse JSON response")
	}
	out := make([]Suggestion, 0, len(ans.Accounts))
	for _, a := range ans.Accounts {
		if strings.TrimSpace(a.Account) == "" {
			continue
		}
		out = append(out, Suggestion{Account: strings.TrimSpace(a.Account), Score: a.Confidence, Source: "claude"})
		if len(out) == maxHits {
			break
		}
	}
	return out, nil
}
