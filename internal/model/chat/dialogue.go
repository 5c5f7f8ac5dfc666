package chat

// Role values used by the conversational endpoint.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one history entry exchanged with the conversational endpoint.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 对话接口请求体
type Request struct {
	UserInput           string `json:"userInput"`
	ConversationHistory []Turn `json:"conversationHistory"`
	CustomSystemPrompt  string `json:"customSystemPrompt,omitempty"`
}

// Response 对话接口响应体
type Response struct {
	Response            string `json:"response"`
	ConversationHistory []Turn `json:"conversationHistory"`
}

// HistoryFromMessages converts a transcript into endpoint turns. Agent messages become model turns
// and error notices are skipped.
func HistoryFromMessages(messages []Message) []Turn {
	if len(messages) == 0 {
		return nil
	}

	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		if msg.IsError {
			continue
		}
		role := RoleModel
		if msg.FromUser() {
			role = RoleUser
		}
		turns = append(turns, Turn{Role: role, Content: msg.Content})
	}
	return turns
}
