package chat

import "time"

// Session captures a transient practice session bound to a scenario.
type Session struct {
	ID         string    `json:"id"`
	ScenarioID string    `json:"scenarioId"`
	Difficulty string    `json:"difficulty"`
	Strategy   string    `json:"strategy"`
	CreatedAt  time.Time `json:"createdAt"`
}
