package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownStrategy is returned when a scenario names a selection strategy that does not exist.
var ErrUnknownStrategy = errors.New("unknown selection strategy")

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadFile reads scenarios from a YAML file. An empty path yields the seed scenarios.
func LoadFile(path string) ([]Scenario, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Seed(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario document and validates it.
func Parse(data []byte) ([]Scenario, error) {
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("scenarios file defines no scenarios")
	}

	seen := make(map[string]struct{}, len(file.Scenarios))
	for i, sc := range file.Scenarios {
		if sc.ID == "" {
			return nil, fmt.Errorf("scenario #%d: id is required", i)
		}
		if _, dup := seen[sc.ID]; dup {
			return nil, fmt.Errorf("scenario %q defined twice", sc.ID)
		}
		seen[sc.ID] = struct{}{}

		switch strategy := strings.ToLower(strings.TrimSpace(sc.Strategy)); strategy {
		case "", StrategyActiveHost, StrategyRoundRobin:
			file.Scenarios[i].Strategy = strategy
		default:
			return nil, fmt.Errorf("scenario %q: %w %q", sc.ID, ErrUnknownStrategy, sc.Strategy)
		}

		agentIDs := make(map[string]struct{}, len(sc.Agents))
		for _, agent := range sc.Agents {
			if agent.ID == "" || agent.ID == "user" {
				return nil, fmt.Errorf("scenario %q: invalid agent id %q", sc.ID, agent.ID)
			}
			if _, dup := agentIDs[agent.ID]; dup {
				return nil, fmt.Errorf("scenario %q: agent %q defined twice", sc.ID, agent.ID)
			}
			agentIDs[agent.ID] = struct{}{}
		}
	}
	return file.Scenarios, nil
}
