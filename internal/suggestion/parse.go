package suggestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrParse is returned by ParseReply when the model reply does not carry a usable result.
var ErrParse = errors.New("suggestion: reply could not be parsed")

const (
	// FallbackDate is proposed when the meeting has no candidate slots at all.
	FallbackDate = "2024-01-01T00:00:00+09:00"
	// FallbackReason explains that the automated reply was unusable.
	FallbackReason = "AI response could not be parsed. Please try again."
)

// ParseReply extracts a Result from the raw model text. A surrounding code fence, with or
// without a language tag, is stripped first.
func ParseReply(raw string) (Result, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return Result{}, fmt.Errorf("%w: empty reply", ErrParse)
	}

	var payload struct {
		Date   string `json:"date"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	date := strings.TrimSpace(payload.Date)
	reason := strings.TrimSpace(payload.Reason)
	if date == "" || reason == "" {
		return Result{}, fmt.Errorf("%w: date and reason are required", ErrParse)
	}
	if _, err := time.Parse(time.RFC3339, date); err != nil {
		return Result{}, fmt.Errorf("%w: date %q is not RFC 3339", ErrParse, date)
	}

	return Result{Date: date, Reason: reason}, nil
}

// Fallback returns the deterministic result used when a reply cannot be parsed.
func Fallback(timeSlots []string) Result {
	date := FallbackDate
	if len(timeSlots) > 0 {
		date = timeSlots[0]
	}
	return Result{Date: date, Reason: FallbackReason}
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Language tag, with or without a trailing newline.
	text = strings.TrimLeftFunc(text, func(r rune) bool {
		return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
	})
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
