package scenario

// Selection strategies a scenario may declare. An empty value leaves the choice to the session.
const (
	StrategyActiveHost = "active-host"
	StrategyRoundRobin = "round-robin"
)

// Agent is a simulated participant. Agents are read-only for the session lifetime.
type Agent struct {
	ID            string   `json:"id" yaml:"id"`
	DisplayName   string   `json:"displayName" yaml:"displayName"`
	Role          string   `json:"role" yaml:"role"`
	PersonaTraits []string `json:"personaTraits,omitempty" yaml:"personaTraits"`
	PromptHint    string   `json:"promptHint,omitempty" yaml:"promptHint"`
	VoiceHandle   string   `json:"voiceHandle,omitempty" yaml:"voiceHandle"`
}

// Scenario is a predefined practice context that parameterizes agents and prompts.
type Scenario struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Category     string   `json:"category" yaml:"category"`
	Description  string   `json:"description,omitempty" yaml:"description"`
	SystemPrompt string   `json:"-" yaml:"systemPrompt"`
	OpeningLine  string   `json:"openingLine,omitempty" yaml:"openingLine"`
	Strategy     string   `json:"strategy,omitempty" yaml:"strategy"`
	Agents       []Agent  `json:"agents" yaml:"agents"`
	Questions    []string `json:"-" yaml:"questions"`
}

// FindAgent looks up a participant by identifier.
func (s *Scenario) FindAgent(id string) (Agent, bool) {
	if s == nil {
		return Agent{}, false
	}
	for _, agent := range s.Agents {
		if agent.ID == id {
			return agent, true
		}
	}
	return Agent{}, false
}

// Seed provides the built-in practice scenarios.
func Seed() []Scenario {
	return []Scenario{
		{
			ID:          "job-interview",
			Title:       "Job Interview Panel",
			Category:    "interview",
			Description: "A two-person panel interview for a software engineering role.",
			SystemPrompt: "You are part of a hiring panel interviewing a candidate for a software engineer position. " +
				"Ask one question at a time, react briefly to the previous answer, and keep replies under three sentences.",
			OpeningLine: "Thanks for joining us today. To start, could you tell us a little about yourself?",
			Strategy:    "active-host",
			Agents: []Agent{
				{
					ID:            "sarah",
					DisplayName:   "Sarah Chen",
					Role:          "Engineering Manager",
					PersonaTraits: []string{"warm", "structured", "curious about teamwork"},
					PromptHint:    "Focus on collaboration, ownership and how the candidate handles conflict.",
					VoiceHandle:   "en-US-female-1",
				},
				{
					ID:            "marcus",
					DisplayName:   "Marcus Reed",
					Role:          "Staff Engineer",
					PersonaTraits: []string{"direct", "technical", "skeptical"},
					PromptHint:    "Probe technical depth: trade-offs, debugging stories and system design.",
					VoiceHandle:   "en-US-male-1",
				},
			},
			Questions: []string{
				"What drew you to this role?",
				"Tell us about a project you are proud of. What was your part in it?",
				"Describe a time you disagreed with a teammate. How did you resolve it?",
				"Walk us through how you would debug a service that suddenly became slow.",
				"What is a technical decision you made that you would make differently today?",
				"Where do you want to grow over the next two years?",
			},
		},
		{
			ID:          "presentation",
			Title:       "Presentation Q&A",
			Category:    "presentation",
			Description: "Field questions from an audience after presenting a quarterly update.",
			SystemPrompt: "You are an audience member after a quarterly business presentation. " +
				"Ask pointed follow-up questions about what the presenter said. Keep each question short.",
			OpeningLine: "Thanks for the overview. Could you summarize the single most important takeaway?",
			Strategy:    "active-host",
			Agents: []Agent{
				{
					ID:            "priya",
					DisplayName:   "Priya Nair",
					Role:          "Finance Director",
					PersonaTraits: []string{"numbers-driven", "concise"},
					PromptHint:    "Ask about costs, budgets and measurable outcomes.",
					VoiceHandle:   "en-GB-female-1",
				},
				{
					ID:            "tom",
					DisplayName:   "Tom Alvarez",
					Role:          "Product Lead",
					PersonaTraits: []string{"enthusiastic", "customer-focused"},
					PromptHint:    "Ask about customer impact and the roadmap.",
					VoiceHandle:   "en-US-male-2",
				},
				{
					ID:            "lena",
					DisplayName:   "Lena Hoffmann",
					Role:          "Operations",
					PersonaTraits: []string{"pragmatic", "risk-aware"},
					PromptHint:    "Ask about risks, dependencies and timelines.",
					VoiceHandle:   "en-US-female-2",
				},
			},
			Questions: []string{
				"How confident are you in those numbers?",
				"What would you cut if the budget shrank by twenty percent?",
				"Which customers benefit first?",
				"What is the biggest risk to the timeline?",
				"How will we know this worked by next quarter?",
			},
		},
		{
			ID:          "salary-negotiation",
			Title:       "Salary Negotiation",
			Category:    "negotiation",
			Description: "Negotiate an offer with a recruiter.",
			SystemPrompt: "You are a recruiter negotiating a job offer. Be friendly but protect the budget. " +
				"Respond to the candidate's points and make concrete counter-offers.",
			OpeningLine: "We're excited to extend you an offer. Before we finalize, what are your expectations?",
			Strategy:    "active-host",
			Agents: []Agent{
				{
					ID:            "jordan",
					DisplayName:   "Jordan Blake",
					Role:          "Recruiter",
					PersonaTraits: []string{"friendly", "firm on budget"},
					PromptHint:    "Anchor on the initial offer and trade non-salary benefits before cash.",
					VoiceHandle:   "en-US-male-3",
				},
			},
			Questions: []string{
				"How did you arrive at that number?",
				"If we can't move on base salary, what else would matter to you?",
				"Would a signing bonus close the gap?",
				"When would you be able to start?",
			},
		},
	}
}
