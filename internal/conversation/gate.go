package conversation

// CanGenerateAgentResponse reports whether an agent reply may be produced for s.
func CanGenerateAgentResponse(s State) bool {
	return s.AwaitingAgentTurn
}

// IsStale reports whether work captured for capturedTurn must be discarded given the current state.
func IsStale(capturedTurn int, current State) bool {
	return !CanGenerateAgentResponse(current) || capturedTurn != current.TurnIndex
}
