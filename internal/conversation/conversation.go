// Package conversation holds the chat transcript threaded into every prompt.
package conversation

import (
	"strings"
	"sync"
)

// DefaultGreeting opens every new transcript.
const DefaultGreeting = "Hello, I am SQL Assistant"

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Label is the role tag used when a turn is serialized into a prompt.
func (r Role) Label() string {
	switch r {
	case RoleHuman:
		return "Human"
	case RoleAssistant:
		return "AI"
	default:
		return string(r)
	}
}

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func Human(text string) Turn {
	return Turn{Role: RoleHuman, Text: text}
}

func Assistant(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// Transcript is an append-only, insertion-ordered list of turns.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

// New starts a transcript with one assistant greeting turn. An empty greeting
// falls back to DefaultGreeting.
func New(greeting string) *Transcript {
	if strings.TrimSpace(greeting) == "" {
		greeting = DefaultGreeting
	}
	return &Transcript{turns: []Turn{Assistant(greeting)}}
}

func (t *Transcript) AppendHuman(text string) {
	t.append(Human(text))
}

func (t *Transcript) AppendAssistant(text string) {
	t.append(Assistant(text))
}

func (t *Transcript) append(turn Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
}

// Turns returns a copy so callers can never rewrite history.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Render serializes turns verbatim, one "<Role>: <text>" line per turn.
func Render(turns []Turn) string {
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(turn.Role.Label())
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}
