// Package intent decides what a line of input is: a command, a ledger entry or
// neither.
package intent

import (
	"strings"

	"quickledger/internal/ledger"
)

type Kind int

const (
	Unrecognized Kind = iota
	Command
	LedgerEntry
)

func (k Kind) String() string {
	switch k {
	case Command:
		return "command"
	case LedgerEntry:
		return "ledger entry"
	default:
		return "unrecognized"
	}
}

// Intent is the classification of one input.
type Intent struct {
	Kind Kind
	// Name is the lower-cased command word, set for Command.
	Name string
	// Args is the input after the command word.
	Args string
	Text string
}

// Commands reports whether a word names a known command or alias.
type Commands interface {
	Has(name string) bool
}

type Classifier struct {
	commands Commands
}

func NewClassifier(commands Commands) *Classifier {
	return &Classifier{commands: commands}
}

// Classify matches the first word exactly against the command names. Prefixes
// never match. Blank input is Unrecognized.
func (c *Classifier) Classify(input string) Intent {
	text := strings.TrimSpace(input)
	if text == "" {
		return Intent{Kind: Unrecognized}
	}
	word, rest := text, ""
	if idx := strings.IndexAny(text, " \t\r\n"); idx >= 0 {
		word, rest = text[:idx], strings.TrimSpace(text[idx+1:])
	}
	word = strings.ToLower(word)
	if c.commands != nil && c.commands.Has(word) {
		return Intent{Kind: Command, Name: word, Args: rest, Text: text}
	}
	if ledger.RecognizeEntry(strings.Trim(input, "\n")) {
		return Intent{Kind: LedgerEntry, Text: strings.Trim(input, "\n")}
	}
	return Intent{Kind: Unrecognized, Text: text}
}
