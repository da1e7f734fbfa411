package agent

import (
	"errors"
	"strings"
)

// Definition declares an agent: everything needed to run one is configuration,
// not code.
type Definition struct {
	Name        string
	Model       string
	Description string
	Instruction string
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("agent name is required")
	}
	if strings.TrimSpace(d.Model) == "" {
		return errors.New("agent model is required")
	}
	return nil
}

// SystemPrompt renders the static part of the agent's system prompt.
func (d Definition) SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(d.Name)
	b.WriteString(".")
	if d.Description != "" {
		b.WriteString(" ")
		b.WriteString(d.Description)
	}
	if d.Instruction != "" {
		b.WriteString("\n\n")
		b.WriteString(d.Instruction)
	}
	return b.String()
}
