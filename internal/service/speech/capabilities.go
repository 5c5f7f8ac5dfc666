package speech

// RecognitionUnavailableNotice is shown for the rest of the session when the browser cannot
// recognise speech. Text input keeps working.
const RecognitionUnavailableNotice = "Speech recognition is not available in this browser; continue with text input."

// Capabilities 浏览器上报的语音能力
type Capabilities struct {
	SpeechRecognition *bool `json:"speechRecognition,omitempty"`
	SpeechSynthesis   *bool `json:"speechSynthesis,omitempty"`
}

// RecognitionUnavailable reports whether the browser said it cannot recognise speech. A missing
// field means unknown and is not treated as unavailable.
func (c Capabilities) RecognitionUnavailable() bool {
	return c.SpeechRecognition != nil && !*c.SpeechRecognition
}

// SynthesisUnavailable reports whether the browser said it cannot speak.
func (c Capabilities) SynthesisUnavailable() bool {
	return c.SpeechSynthesis != nil && !*c.SpeechSynthesis
}
