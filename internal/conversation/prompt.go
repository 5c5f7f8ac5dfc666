package conversation

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
)

// BuildSystemPrompt renders the system prompt for agent speaking inside sc. guidance, when set,
// describes how the user currently sounds and how the reply should adapt.
func BuildSystemPrompt(sc *scenario.Scenario, agent scenario.Agent, guidance string) string {
	var b strings.Builder

	if sc != nil && strings.TrimSpace(sc.SystemPrompt) != "" {
		b.WriteString(strings.TrimSpace(sc.SystemPrompt))
		b.WriteString("\n\n")
	}

	name := agent.DisplayName
	if name == "" {
		name = agent.ID
	}
	fmt.Fprintf(&b, "You are %s", name)
	if agent.Role != "" {
		fmt.Fprintf(&b, ", %s", agent.Role)
	}
	b.WriteString(".")

	if len(agent.PersonaTraits) > 0 {
		fmt.Fprintf(&b, "\nPersonality: %s.", strings.Join(agent.PersonaTraits, ", "))
	}
	if agent.PromptHint != "" {
		fmt.Fprintf(&b, "\nFocus: %s", agent.PromptHint)
	}

	if sc != nil && len(sc.Agents) > 1 {
		others := make([]string, 0, len(sc.Agents)-1)
		for _, other := range sc.Agents {
			if other.ID == agent.ID {
				continue
			}
			others = append(others, other.DisplayName)
		}
		fmt.Fprintf(&b, "\nOther participants: %s. Do not speak for them.", strings.Join(others, ", "))
	}

	if guidance = strings.TrimSpace(guidance); guidance != "" {
		fmt.Fprintf(&b, "\nUser state: %s Adapt your wording to it while staying in character.", guidance)
	}

	fmt.Fprintf(&b, "\nReply only as %s, in plain spoken sentences without stage directions.", name)
	return b.String()
}
