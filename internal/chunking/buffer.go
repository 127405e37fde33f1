// Package chunking implements the token-aware streaming buffer that turns a
// stream of (role, text) events into ~300-token chunks with overlap,
// splitting at sentence boundaries when one falls in the search window.
package chunking

import (
	"fmt"
	"regexp"
	"strings"

	"vaultmemory/pkg/types"
)

const (
	targetTokens  = 300
	overlapTokens = 30
	charsPerToken = 4

	targetChars  = targetTokens * charsPerToken  // 1200
	overlapChars = overlapTokens * charsPerToken  // 120
	windowLow    = 0.8 * targetChars
	windowHigh   = 1.1 * targetChars
	spaceFloor   = 0.7 * targetChars
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s`)

// Buffer is the per-Vault chunk assembler. It holds exactly the pending
// (unemitted) text; callers are responsible for persisting Content/Tokens
// through internal/persistence after every Append/Flush/Clear.
type Buffer struct {
	Content string
}

// New creates a buffer, optionally seeded from a persisted pending-buffer
// row (e.g. after hydrating a hibernated Vault).
func New(seed string) *Buffer {
	return &Buffer{Content: seed}
}

// Tokens reports the char/4 token estimate of the current pending content.
func (b *Buffer) Tokens() int {
	return types.TokenCountEstimate(b.Content)
}

// Append folds a role-tagged line into the buffer and emits zero or more
// chunks if the buffer has grown to or past the target size. The caller
// passes role already validated (types.Role.Valid()).
func (b *Buffer) Append(role types.Role, text string) []string {
	tagged := fmt.Sprintf("[%s] %s", strings.ToUpper(string(role)), text)
	if b.Content == "" {
		b.Content = tagged
	} else {
		b.Content = b.Content + "\n\n" + tagged
	}

	var chunks []string
	for types.TokenCountEstimate(b.Content) >= targetTokens {
		split := splitPoint(b.Content)
		chunks = append(chunks, b.Content[:split])
		b.Content = carryOver(b.Content[:split]) + b.Content[split:]
	}
	return chunks
}

// Flush forces emission of the entire remaining buffer as a single
// under-sized chunk (possibly empty, which the caller should skip).
func (b *Buffer) Flush() string {
	out := b.Content
	b.Content = ""
	return out
}

// Clear discards the pending buffer without emitting anything.
func (b *Buffer) Clear() {
	b.Content = ""
}

// splitPoint picks where to cut buf per the search-window heuristic:
// prefer the last sentence boundary in [0.8*target, 1.1*target] chars,
// else the last space at or past 0.7*target, else the hard char mark.
func splitPoint(buf string) int {
	low := clampInt(windowLow, len(buf))
	high := clampInt(windowHigh, len(buf))
	if low > high {
		low = high
	}

	window := buf[low:high]
	if loc := lastSentenceBoundary(window); loc >= 0 {
		return low + loc
	}

	floor := clampInt(spaceFloor, len(buf))
	if idx := strings.LastIndex(buf[floor:high], " "); idx >= 0 {
		return floor + idx + 1
	}

	return clampInt(targetChars, len(buf))
}

func lastSentenceBoundary(window string) int {
	matches := sentenceBoundary.FindAllStringIndex(window, -1)
	if len(matches) == 0 {
		return -1
	}
	last := matches[len(matches)-1]
	return last[1] // split after the matched punctuation + whitespace
}

func clampInt(f float64, max int) int {
	n := int(f)
	if n > max {
		return max
	}
	if n < 0 {
		return 0
	}
	return n
}

// carryOver returns the trailing overlapChars of an emitted chunk, trimmed
// of leading whitespace, to seed the next buffer.
func carryOver(emitted string) string {
	start := len(emitted) - overlapChars
	if start < 0 {
		start = 0
	}
	return strings.TrimLeft(emitted[start:], " \t\n\r")
}
