// Package conversation implements the per-session turn-taking engine: the conversation state
// machine, the turn gate, agent selection, response scheduling and the session driver that ties
// them together.
package conversation

// State tracks whose turn it is. Transitions return new values and never mutate the receiver.
type State struct {
	TurnIndex         int    `json:"turnIndex"`
	AwaitingAgentTurn bool   `json:"awaitingAgentTurn"`
	LastAgentID       string `json:"lastAgentId,omitempty"`
}

// InitState returns the state of a freshly started session.
func InitState() State {
	return State{}
}

// UpdateOnUserMessage opens a pending agent turn. The turn index is not consumed until an agent
// answers.
func UpdateOnUserMessage(s State) State {
	s.AwaitingAgentTurn = true
	return s
}

// AdvanceAfterAgentResponse completes the pending turn on behalf of agentID.
func AdvanceAfterAgentResponse(s State, agentID string) State {
	s.TurnIndex++
	s.AwaitingAgentTurn = false
	s.LastAgentID = agentID
	return s
}
