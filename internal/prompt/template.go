// Package prompt serializes chat histories into the single prompt string a
// text-completion endpoint expects.
package prompt

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Template is the delimiter set of one model family's chat format.
type Template struct {
	Name      string
	BOS       string // begin turn
	EOS       string // end turn
	BeginInst string
	EndInst   string
	BeginSys  string
	EndSys    string
}

// Llama2 is the chat template of the Llama-2 chat models.
var Llama2 = Template{
	Name:      "LLAMA2",
	BOS:       "<s>",
	EOS:       "</s>",
	BeginInst: "[INST]",
	EndInst:   "[/INST]",
	BeginSys:  "<<SYS>>\n",
	EndSys:    "\n<</SYS>>\n\n",
}

type turn struct {
	instruction string
	answer      string
	closed      bool
}

// Format renders history as one prompt. A leading system message is fused
// into the instruction of the first turn. Every user message answered by an
// assistant message becomes a closed turn; a trailing unanswered user message
// is left open for the model to complete.
func (t Template) Format(history []Message) string {
	if len(history) == 0 {
		return ""
	}

	var system string
	hasSystem := false
	if history[0].Role == RoleSystem {
		system = t.BeginSys + history[0].Content + t.EndSys
		hasSystem = true
		history = history[1:]
	}

	var turns []turn
	var pending *string
	for i := range history {
		msg := history[i]
		switch msg.Role {
		case RoleUser:
			if pending != nil {
				turns = append(turns, turn{instruction: *pending, closed: true})
			}
			content := msg.Content
			pending = &content
		case RoleAssistant:
			instruction := ""
			if pending != nil {
				instruction = *pending
				pending = nil
			}
			turns = append(turns, turn{instruction: instruction, answer: msg.Content, closed: true})
		}
		// later system messages carry no turn
	}
	if pending != nil {
		turns = append(turns, turn{instruction: *pending})
	}

	if hasSystem {
		if len(turns) == 0 {
			turns = append(turns, turn{})
		}
		turns[0].instruction = system + turns[0].instruction
	}

	var b strings.Builder
	for _, tr := range turns {
		b.WriteString(t.BOS)
		b.WriteString(t.BeginInst)
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(tr.instruction))
		b.WriteString(" ")
		b.WriteString(t.EndInst)
		if tr.closed {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(tr.answer))
			b.WriteString(" ")
			b.WriteString(t.EOS)
		}
	}
	return b.String()
}

// Digest returns a hex SHA-256 fingerprint of a rendered prompt
func Digest(prompt string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(prompt)))
}
