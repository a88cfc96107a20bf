package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type names map[string]bool

func (n names) Has(name string) bool { return n[name] }

func classifier() *Classifier {
	return NewClassifier(names{"balance": true, "bal": true, "add": true, "help": true, "?": true})
}

func TestClassifyCommand(t *testing.T) {
	c := classifier()
	in := c.Classify("balance")
	assert.Equal(t, Command, in.Kind)
	assert.Equal(t, "balance", in.Name)
	assert.Empty(t, in.Args)

	in = c.Classify("  ADD coffee 10 @ Starbucks ")
	require.Equal(t, Command, in.Kind)
	assert.Equal(t, "add", in.Name)
	assert.Equal(t, "coffee 10 @ Starbucks", in.Args)

	assert.Equal(t, Command, c.Classify("bal 2025-09").Kind)
	assert.Equal(t, Command, c.Classify("?").Kind)
}

func TestClassifyNoPrefixMatch(t *testing.T) {
	c := classifier()
	assert.Equal(t, Unrecognized, c.Classify("bala").Kind)
	assert.Equal(t, Unrecognized, c.Classify("balances").Kind)
}

func TestClassifyLedgerEntry(t *testing.T) {
	in := classifier().Classify("2025/09/15 Coffee\n    Expenses:Food  5.00 USD\n    Assets:Bank  -5.00 USD")
	assert.Equal(t, LedgerEntry, in.Kind)
	assert.Contains(t, in.Text, "Assets:Bank")
}

func TestClassifyUnrecognized(t *testing.T) {
	c := classifier()
	for _, in := range []string{"", "   ", "\n\t", "hello there", "2025/9/5 Coffee\n    Expenses:Food  5.00"} {
		assert.Equal(t, Unrecognized, c.Classify(in).Kind, "%q", in)
	}
	assert.Equal(t, "unrecognized", Unrecognized.String())
}

func TestClassifyWithoutCommands(t *testing.T) {
	assert.Equal(t, Unrecognized, NewClassifier(nil).Classify("balance").Kind)
}
