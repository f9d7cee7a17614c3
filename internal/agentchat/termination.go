package agentchat

import (
	"fmt"
	"slices"
	"strings"
)

// TerminationCondition decides when a group chat stops. Conditions are
// stateful per run and are not safe for concurrent use.
type TerminationCondition interface {
	// Check inspects the messages produced since the previous call and
	// returns a non-empty reason when the chat must stop.
	Check(delta []Message) string
	// Reset clears state accumulated by earlier checks.
	Reset()
}

// TextMention stops when any message contains Text.
type TextMention struct {
	Text string
	// Sources, when set, restricts which speakers are inspected.
	Sources []string
}

func (c *TextMention) Check(delta []Message) string {
	for _, m := range delta {
		if len(c.Sources) > 0 && !slices.Contains(c.Sources, m.Source()) {
			continue
		}
		if strings.Contains(m.Text(), c.Text) {
			return fmt.Sprintf("Text '%s' mentioned", c.Text)
		}
	}
	return ""
}

func (c *TextMention) Reset() {}

// MaxMessages stops once Max messages have been observed.
type MaxMessages struct {
	Max   int
	count int
}

func (c *MaxMessages) Check(delta []Message) string {
	c.count += len(delta)
	if c.count >= c.Max {
		return fmt.Sprintf("Maximum number of messages %d reached, current message count: %d", c.Max, c.count)
	}
	return ""
}

func (c *MaxMessages) Reset() { c.count = 0 }

// AnyOf stops when any of its conditions stops. Every condition sees every
// delta so that counters stay accurate.
type AnyOf []TerminationCondition

func (c AnyOf) Check(delta []Message) string {
	var reasons []string
	for _, cond := range c {
		if r := cond.Check(delta); r != "" {
			reasons = append(reasons, r)
		}
	}
	return strings.Join(reasons, ", ")
}

func (c AnyOf) Reset() {
	for _, cond := range c {
		cond.Reset()
	}
}
