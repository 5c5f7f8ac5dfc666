package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
)

// Strategy names an agent selection policy.
type Strategy string

const (
	// StrategyActiveHost avoids back-to-back replies from the same agent and favours whoever has
	// been quiet the longest.
	StrategyActiveHost Strategy = scenario.StrategyActiveHost
	// StrategyRoundRobin rotates through agents in list order.
	StrategyRoundRobin Strategy = scenario.StrategyRoundRobin
)

// ErrInvalidStrategy is returned for unknown strategy names.
var ErrInvalidStrategy = errors.New("invalid selection strategy")

// ParseStrategy validates a strategy name. An empty value is accepted and resolved per scenario.
func ParseStrategy(raw string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case "", StrategyActiveHost, StrategyRoundRobin:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, raw)
	}
}

// SelectAgentToSpeak picks the next agent. It returns nil when there are no agents and depends only
// on its arguments.
func SelectAgentToSpeak(history []chat.Message, sc *scenario.Scenario, agents []scenario.Agent, strategy Strategy) *scenario.Agent {
	if len(agents) == 0 {
		return nil
	}
	if len(agents) == 1 {
		agent := agents[0]
		return &agent
	}

	if strategy == "" && sc != nil {
		strategy = Strategy(sc.Strategy)
	}

	switch strategy {
	case StrategyRoundRobin:
		return selectRoundRobin(history, agents)
	default:
		return selectActiveHost(history, agents)
	}
}

func selectActiveHost(history []chat.Message, agents []scenario.Agent) *scenario.Agent {
	lastSpoken := make(map[string]int, len(agents))
	for i, msg := range history {
		if msg.FromUser() {
			continue
		}
		lastSpoken[msg.SpeakerID] = i
	}
	previous := lastAgentSpeaker(history)

	best := -1
	bestRank := 0
	for i, agent := range agents {
		if agent.ID == previous {
			continue
		}
		rank, ok := lastSpoken[agent.ID]
		if !ok {
			rank = -1
		}
		if best == -1 || rank < bestRank {
			best = i
			bestRank = rank
		}
	}

	// every listed agent shares the previous speaker's id
	if best == -1 {
		best = 0
	}
	agent := agents[best]
	return &agent
}

func selectRoundRobin(history []chat.Message, agents []scenario.Agent) *scenario.Agent {
	previous := lastAgentSpeaker(history)
	next := 0
	for i, agent := range agents {
		if agent.ID == previous {
			next = (i + 1) % len(agents)
			break
		}
	}
	agent := agents[next]
	return &agent
}

func lastAgentSpeaker(history []chat.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].FromUser() {
			return history[i].SpeakerID
		}
	}
	return ""
}
