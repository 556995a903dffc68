package testfixtures

import (
	"context"
	"fmt"
	"sync"
)

// StubModel is a suggestion model double returning a canned reply.
type StubModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
}

// NewStubModel returns a model that answers every prompt with reply.
func NewStubModel(reply string) *StubModel {
	return &StubModel{reply: reply}
}

// ReplyWith returns a model whose reply is the JSON object the engine expects.
func ReplyWith(date, reason string) *StubModel {
	return NewStubModel(fmt.Sprintf(`{"date": %q, "reason": %q}`, date, reason))
}

// Generate implements suggestion.Model.
func (m *StubModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

// Fail makes subsequent calls return err.
func (m *StubModel) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Calls reports how many prompts the model has received.
func (m *StubModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the most recent prompt, or "" when none was sent.
func (m *StubModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}
